package layout

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBatch reports that there were no images to convert. Callers
	// usually treat it as "nothing to do" rather than a failure.
	ErrEmptyBatch = errors.New("layout: empty image batch")

	ErrShapeMismatch          = errors.New("layout: conflicting image shape in batch")
	ErrUnsupportedSampleWidth = errors.New("layout: unsupported sample width")
	ErrChannelOverflow        = errors.New("layout: tensor has more than 3 channels")
	ErrInvalidFlowChannels    = errors.New("layout: flow tensor must have exactly 2 channels")
	ErrInvalidAxisOrder       = errors.New("layout: axis order is not a permutation of height, width, channel")
	ErrMalformedImage         = errors.New("layout: image buffer does not match its declared shape")
	ErrShapeOverflow          = errors.New("layout: tensor data length does not match its shape")
)

// ShapeMismatchError names the first image in a batch whose shape differs
// from the first image. It matches ErrShapeMismatch under errors.Is.
type ShapeMismatchError struct {
	Index int
	Want  ImageShape
	Got   ImageShape
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("layout: conflicting image shape (height, width, channels, kind): expected %s, got %s at image %d",
		e.Want, e.Got, e.Index)
}

func (e *ShapeMismatchError) Is(target error) bool {
	return target == ErrShapeMismatch
}
