package layout

import (
	"fmt"
	"math"
)

// KITTI stores flow as round(x*64 + 2^15) in 16 bits.
const (
	kittiScale  = 64.0
	kittiOffset = 32768.0
)

// EncodeKittiSample returns the stored 16-bit pattern for one flow
// component. The scaled value is clamped to [-65535, 65535] and then folded
// into the signed 16-bit range before rounding, so out-of-range flow wraps
// rather than saturating: 1024.0 encodes as 0xFFFF. NaN encodes as 0.
func EncodeKittiSample(x float32) uint16 {
	y := float32(math.Min(float64(x)*kittiScale+kittiOffset, 65535))
	y = float32(math.Max(-65535, float64(y)))
	if y > 32767 {
		y -= 65536
	}
	if math.IsNaN(float64(y)) {
		return 0
	}
	return uint16(int32(math.Floor(float64(y) + 0.5)))
}

// FlowTensorToKittiImages encodes a (batch, a, b, c) flow tensor laid out by
// order into one KITTI image per batch element. The channel axis must have
// extent 2 holding (u, v); each output pixel is (1, enc(v), enc(u)).
// No invalid-flow masking is done: the validity sample is always 1.
func (c *Converter) FlowTensorToKittiImages(t *Tensor, order AxisOrder) ([]*KittiImage, error) {
	if t == nil {
		return nil, ErrEmptyBatch
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	shape := t.Shape()
	extent := func(a Axis) int { return shape[1+order.Position(a)] }
	channels := extent(Channel)
	if channels != 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFlowChannels, channels)
	}
	height, width := extent(Height), extent(Width)

	images := make([]*KittiImage, shape[0])
	var idx [3]int
	for b := range images {
		k := NewKittiImage(height, width)
		for y := 0; y < height; y++ {
			idx[Height] = y
			for x := 0; x < width; x++ {
				idx[Width] = x
				var enc [2]uint16
				for ch := 0; ch < 2; ch++ {
					idx[Channel] = ch
					p := order.permute(idx)
					enc[ch] = EncodeKittiSample(t.store.Get(Index{b, p[0], p[1], p[2]}))
				}
				k.Set(y, x, 1, enc[1], enc[0])
			}
		}
		images[b] = k
	}
	return images, nil
}

// FlowTensorToKittiImage encodes only the first batch element.
func (c *Converter) FlowTensorToKittiImage(t *Tensor, order AxisOrder) (*KittiImage, error) {
	images, err := c.FlowTensorToKittiImages(t, order)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, ErrEmptyBatch
	}
	return images[0], nil
}
