package layout

import "fmt"

// Tensor is a dense 4-D float32 tensor, row-major with batch as the leading
// axis. The trailing axes are whatever AxisOrder produced it.
type Tensor struct {
	store DenseStore
}

// NewTensor wraps data, which must hold exactly shape.Count() elements in
// row-major order. The slice is used in place, not copied.
func NewTensor(shape Shape, data []float32) (*Tensor, error) {
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative extent in %v", ErrShapeOverflow, shape)
		}
	}
	if int64(len(data)) != shape.Count() {
		return nil, fmt.Errorf("%w: got %d elements for shape %v", ErrShapeOverflow, len(data), shape)
	}
	return &Tensor{store: newFlatStore(shape, data)}, nil
}

// Shape returns (batch, a, b, c).
func (t *Tensor) Shape() Shape { return t.store.Shape() }

// Len returns the number of elements.
func (t *Tensor) Len() int64 { return t.store.Shape().Count() }

// At returns the element at (batch, a, b, c).
func (t *Tensor) At(batch, a, b, c int) float32 {
	return t.store.Get(Index{batch, a, b, c})
}

// Nested reports whether the tensor is held in the nested fallback layout.
func (t *Tensor) Nested() bool {
	_, ok := t.store.(*nestedStore)
	return ok
}

// Float32s returns the elements in row-major order. Flat tensors return
// their backing slice; nested tensors return a fresh copy.
func (t *Tensor) Float32s() []float32 {
	if s, ok := t.store.(*flatStore); ok {
		return s.data
	}
	return t.store.(*nestedStore).flatten()
}
