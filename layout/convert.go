// Package layout converts between image rasters and the 4-D float32 tensors
// consumed and produced by inference graphs, and encodes optical-flow tensors
// as KITTI 16-bit flow images.
package layout

import (
	"errors"
	"fmt"

	"github.com/stevecastle/raftflow/logger"
)

// Converter transcodes images and tensors. The zero value is ready to use.
type Converter struct {
	// FlatLimit is the largest element count stored as one flat slice.
	// Zero means DefaultFlatLimit.
	FlatLimit int64

	// Log, if set, receives a warning whenever the nested layout is used.
	Log logger.Logger
}

func (c *Converter) newStore(shape Shape) DenseStore {
	limit := c.FlatLimit
	if limit <= 0 {
		limit = DefaultFlatLimit
	}
	if shape.Count() > limit && c.Log != nil {
		c.Log.Warn("tensor exceeds flat buffer limit, using nested layout",
			"elements", shape.Count(), "limit", limit)
	}
	return newStore(shape, limit)
}

// ImagesToTensor packs buffers into a (batch, a, b, c) tensor whose trailing
// axes are the images' (height, width, channel) axes rearranged by order.
// Every sample is normalized to float32. An empty batch yields a nil tensor
// and a nil error.
func (c *Converter) ImagesToTensor(buffers []*ImageBuffer, order AxisOrder) (*Tensor, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	shape, err := ValidateBatch(buffers)
	if errors.Is(err, ErrEmptyBatch) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dims := order.permute([3]int{shape.Height, shape.Width, shape.Channels})
	store := c.newStore(Shape{len(buffers), dims[0], dims[1], dims[2]})

	var idx [3]int
	for b, m := range buffers {
		for y := 0; y < shape.Height; y++ {
			idx[Height] = y
			for x := 0; x < shape.Width; x++ {
				idx[Width] = x
				for ch := 0; ch < shape.Channels; ch++ {
					idx[Channel] = ch
					v, err := Normalize(shape.Kind, m.Bits(y, x, ch))
					if err != nil {
						return nil, err
					}
					p := order.permute(idx)
					store.Set(Index{b, p[0], p[1], p[2]}, v)
				}
			}
		}
	}
	return &Tensor{store: store}, nil
}

// TensorToImages unpacks a channel-first (batch, channel, height, width)
// tensor into one 3-channel SampleF32 image per batch element. Tensors with
// fewer than three channels leave the remaining image channels zero.
func (c *Converter) TensorToImages(t *Tensor) ([]*ImageBuffer, error) {
	if t == nil {
		return nil, ErrEmptyBatch
	}
	shape := t.Shape()
	batch, channels, height, width := shape[0], shape[1], shape[2], shape[3]
	if channels > 3 {
		return nil, fmt.Errorf("%w: got %d", ErrChannelOverflow, channels)
	}

	images := make([]*ImageBuffer, batch)
	for b := range images {
		m := NewImageBuffer(height, width, 3, SampleF32)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				for ch := 0; ch < channels; ch++ {
					m.Set(y, x, ch, t.At(b, ch, y, x))
				}
			}
		}
		images[b] = m
	}
	return images, nil
}

var defaultConverter Converter

// ImageToTensor packs a single image into a batch-1 tensor.
func ImageToTensor(m *ImageBuffer, order AxisOrder) (*Tensor, error) {
	return defaultConverter.ImagesToTensor([]*ImageBuffer{m}, order)
}

// ImagesToTensor packs a batch of images using the default converter.
func ImagesToTensor(buffers []*ImageBuffer, order AxisOrder) (*Tensor, error) {
	return defaultConverter.ImagesToTensor(buffers, order)
}

// TensorToImages unpacks a channel-first tensor using the default converter.
func TensorToImages(t *Tensor) ([]*ImageBuffer, error) {
	return defaultConverter.TensorToImages(t)
}

// FlowTensorToKittiImages encodes every batch element of a flow tensor.
func FlowTensorToKittiImages(t *Tensor, order AxisOrder) ([]*KittiImage, error) {
	return defaultConverter.FlowTensorToKittiImages(t, order)
}

// FlowTensorToKittiImage encodes the first batch element of a flow tensor.
func FlowTensorToKittiImage(t *Tensor, order AxisOrder) (*KittiImage, error) {
	return defaultConverter.FlowTensorToKittiImage(t, order)
}
