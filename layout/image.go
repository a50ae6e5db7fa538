package layout

import (
	"encoding/binary"
	"fmt"
)

// ImageShape is the (height, width, channels, sample kind) tuple shared by
// every image in a batch.
type ImageShape struct {
	Height   int
	Width    int
	Channels int
	Kind     SampleKind
}

func (s ImageShape) String() string {
	return fmt.Sprintf("[%d, %d, %d, %s]", s.Height, s.Width, s.Channels, s.Kind)
}

// ImageBuffer is a dense height x width x channels raster. Samples are stored
// row-major in Pix, each little-endian and Kind.Size() bytes wide.
type ImageBuffer struct {
	Height   int
	Width    int
	Channels int
	Kind     SampleKind
	Pix      []byte
}

// NewImageBuffer allocates a zeroed image.
func NewImageBuffer(height, width, channels int, kind SampleKind) *ImageBuffer {
	return &ImageBuffer{
		Height:   height,
		Width:    width,
		Channels: channels,
		Kind:     kind,
		Pix:      make([]byte, height*width*channels*kind.Size()),
	}
}

// Shape returns the image's shape tuple.
func (m *ImageBuffer) Shape() ImageShape {
	return ImageShape{Height: m.Height, Width: m.Width, Channels: m.Channels, Kind: m.Kind}
}

func (m *ImageBuffer) offset(y, x, c int) int {
	return ((y*m.Width+x)*m.Channels + c) * m.Kind.Size()
}

// Bits returns the stored bit pattern of the sample at (y, x, c).
func (m *ImageBuffer) Bits(y, x, c int) uint32 {
	i := m.offset(y, x, c)
	switch m.Kind.Size() {
	case 1:
		return uint32(m.Pix[i])
	case 2:
		return uint32(binary.LittleEndian.Uint16(m.Pix[i:]))
	default:
		return binary.LittleEndian.Uint32(m.Pix[i:])
	}
}

// SetBits stores the low Kind.Size()*8 bits of bits at (y, x, c).
func (m *ImageBuffer) SetBits(y, x, c int, bits uint32) {
	i := m.offset(y, x, c)
	switch m.Kind.Size() {
	case 1:
		m.Pix[i] = uint8(bits)
	case 2:
		binary.LittleEndian.PutUint16(m.Pix[i:], uint16(bits))
	default:
		binary.LittleEndian.PutUint32(m.Pix[i:], bits)
	}
}

// Set stores v converted to the image's sample kind.
func (m *ImageBuffer) Set(y, x, c int, v float32) {
	m.SetBits(y, x, c, encodeSample(m.Kind, v))
}

// Value returns the normalized sample at (y, x, c).
func (m *ImageBuffer) Value(y, x, c int) (float32, error) {
	return Normalize(m.Kind, m.Bits(y, x, c))
}

func (m *ImageBuffer) wellFormed() bool {
	if m == nil || m.Height < 0 || m.Width < 0 || m.Channels <= 0 {
		return false
	}
	if !m.Kind.Valid() {
		// Kind is reported separately as ErrUnsupportedSampleWidth.
		return true
	}
	return len(m.Pix) == m.Height*m.Width*m.Channels*m.Kind.Size()
}

// KittiChannels is the number of samples per KITTI flow pixel.
const KittiChannels = 3

// KittiImage is a KITTI-encoded flow field. Each pixel holds three uint16
// samples in the order (valid, v, u).
type KittiImage struct {
	Height int
	Width  int
	Pix    []uint16
}

// NewKittiImage allocates a zeroed KITTI image.
func NewKittiImage(height, width int) *KittiImage {
	return &KittiImage{
		Height: height,
		Width:  width,
		Pix:    make([]uint16, height*width*KittiChannels),
	}
}

// At returns (valid, v, u) at row y, column x.
func (k *KittiImage) At(y, x int) (valid, v, u uint16) {
	i := (y*k.Width + x) * KittiChannels
	return k.Pix[i], k.Pix[i+1], k.Pix[i+2]
}

// Set stores (valid, v, u) at row y, column x.
func (k *KittiImage) Set(y, x int, valid, v, u uint16) {
	i := (y*k.Width + x) * KittiChannels
	k.Pix[i] = valid
	k.Pix[i+1] = v
	k.Pix[i+2] = u
}

// Flow decodes the stored pixel back to displacement in pixels. Samples
// that wrapped on encode do not decode to their original value.
func (k *KittiImage) Flow(y, x int) (u, v float32, valid bool) {
	ok, rv, ru := k.At(y, x)
	return (float32(ru) - kittiOffset) / kittiScale, (float32(rv) - kittiOffset) / kittiScale, ok != 0
}
