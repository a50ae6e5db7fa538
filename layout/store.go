package layout

import "math"

// DefaultFlatLimit is the largest element count kept in a single flat slice.
// Anything larger is held in per-axis nested slices so that no single
// allocation has to be addressed past a 32-bit signed index.
const DefaultFlatLimit int64 = math.MaxInt32

// Shape is a 4-D tensor shape: batch followed by three trailing extents.
type Shape [4]int

// Count returns the number of elements, computed in 64 bits.
func (s Shape) Count() int64 {
	return int64(s[0]) * int64(s[1]) * int64(s[2]) * int64(s[3])
}

// Index addresses one tensor element as (batch, a, b, c).
type Index [4]int

// DenseStore holds the elements of a 4-D float32 tensor. Implementations
// differ only in memory layout; Get and Set address the same logical element
// for the same Index.
type DenseStore interface {
	Shape() Shape
	Get(i Index) float32
	Set(i Index, v float32)
}

// newStore allocates a zeroed store for shape, choosing the nested layout
// when the element count exceeds limit.
func newStore(shape Shape, limit int64) DenseStore {
	if shape.Count() > limit {
		return newNestedStore(shape)
	}
	return newFlatStore(shape, make([]float32, shape.Count()))
}

// flatStore keeps elements in one row-major slice. Strides are derived from
// the store's own trailing extents.
type flatStore struct {
	shape   Shape
	strides [3]int
	data    []float32
}

func newFlatStore(shape Shape, data []float32) *flatStore {
	return &flatStore{
		shape:   shape,
		strides: rowMajorStrides(shape[1], shape[2], shape[3]),
		data:    data,
	}
}

// rowMajorStrides returns the batch, first and second axis strides for
// trailing extents (a, b, c); the last axis has stride 1.
func rowMajorStrides(a, b, c int) [3]int {
	return [3]int{c * b * a, c * b, c}
}

func (s *flatStore) Shape() Shape { return s.shape }

func (s *flatStore) linear(i Index) int {
	return i[0]*s.strides[0] + i[1]*s.strides[1] + i[2]*s.strides[2] + i[3]
}

func (s *flatStore) Get(i Index) float32    { return s.data[s.linear(i)] }
func (s *flatStore) Set(i Index, v float32) { s.data[s.linear(i)] = v }

// nestedStore keeps one slice per innermost row.
type nestedStore struct {
	shape Shape
	data  [][][][]float32
}

func newNestedStore(shape Shape) *nestedStore {
	data := make([][][][]float32, shape[0])
	for b := range data {
		data[b] = make([][][]float32, shape[1])
		for i := range data[b] {
			data[b][i] = make([][]float32, shape[2])
			for j := range data[b][i] {
				data[b][i][j] = make([]float32, shape[3])
			}
		}
	}
	return &nestedStore{shape: shape, data: data}
}

func (s *nestedStore) Shape() Shape { return s.shape }

func (s *nestedStore) Get(i Index) float32    { return s.data[i[0]][i[1]][i[2]][i[3]] }
func (s *nestedStore) Set(i Index, v float32) { s.data[i[0]][i[1]][i[2]][i[3]] = v }

// flatten copies the nested rows into one row-major slice.
func (s *nestedStore) flatten() []float32 {
	out := make([]float32, 0, s.shape.Count())
	for _, batch := range s.data {
		for _, plane := range batch {
			for _, row := range plane {
				out = append(out, row...)
			}
		}
	}
	return out
}
