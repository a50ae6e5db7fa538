package layout

import "fmt"

// ValidateBatch returns the shape shared by every image in buffers. It fails
// with a *ShapeMismatchError naming the first image that differs from
// buffers[0], and with ErrEmptyBatch when there is nothing to check.
func ValidateBatch(buffers []*ImageBuffer) (ImageShape, error) {
	if len(buffers) == 0 {
		return ImageShape{}, ErrEmptyBatch
	}
	var want ImageShape
	for i, m := range buffers {
		if !m.wellFormed() {
			return ImageShape{}, fmt.Errorf("%w: image %d", ErrMalformedImage, i)
		}
		got := m.Shape()
		if i == 0 {
			want = got
			continue
		}
		if got != want {
			return ImageShape{}, &ShapeMismatchError{Index: i, Want: want, Got: got}
		}
	}
	if !want.Kind.Valid() {
		return ImageShape{}, fmt.Errorf("%w: %s", ErrUnsupportedSampleWidth, want.Kind)
	}
	return want, nil
}
