// Package rasterio reads image files into layout.ImageBuffer values and
// writes KITTI flow images as 16-bit PNGs.
package rasterio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/stevecastle/raftflow/layout"
)

var (
	ErrNotPNG         = errors.New("output path must end in .png")
	ErrNotKitti       = errors.New("png is not a 16-bit KITTI flow image")
	ErrUnknownChannel = errors.New("unknown channel order")
)

// ChannelOrder selects how colour samples are laid out in a 3-channel
// buffer.
type ChannelOrder int

const (
	// BGR matches the OpenCV convention the bundled flow models were
	// exported with.
	BGR ChannelOrder = iota
	RGB
)

func (o ChannelOrder) String() string {
	if o == RGB {
		return "RGB"
	}
	return "BGR"
}

// ParseChannelOrder accepts "bgr" or "rgb" in any case; "" means BGR.
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "BGR":
		return BGR, nil
	case "RGB":
		return RGB, nil
	}
	return BGR, fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

// Options controls decoding. The zero value decodes at native size in BGR.
type Options struct {
	Order ChannelOrder
	// Width and Height, when both positive, resize the decoded image.
	Width, Height int
	// Interpolation names the resampling filter used by Resize.
	Interpolation string
}

// Read decodes the image file at path.
func Read(path string, opts Options) (*layout.ImageBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Decode(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Decode reads any registered image format from r.
func Decode(r io.Reader, opts Options) (*layout.ImageBuffer, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	if opts.Width > 0 && opts.Height > 0 {
		img = Resize(img, opts.Width, opts.Height, opts.Interpolation)
	}
	return FromImage(img, opts.Order), nil
}

// FromImage converts img to a buffer. Grayscale sources stay single
// channel; everything else becomes three channels with transparency
// flattened over white. 16-bit sources keep their depth.
func FromImage(img image.Image, order ChannelOrder) *layout.ImageBuffer {
	b := img.Bounds()
	switch src := img.(type) {
	case *image.Gray:
		m := layout.NewImageBuffer(b.Dy(), b.Dx(), 1, layout.SampleU8)
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				m.SetBits(y, x, 0, uint32(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
		return m
	case *image.Gray16:
		m := layout.NewImageBuffer(b.Dy(), b.Dx(), 1, layout.SampleU16)
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				m.SetBits(y, x, 0, uint32(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
		return m
	case *image.RGBA64, *image.NRGBA64:
		flat := image.NewRGBA64(image.Rect(0, 0, b.Dx(), b.Dy()))
		flattenOverWhite(flat, img)
		m := layout.NewImageBuffer(b.Dy(), b.Dx(), 3, layout.SampleU16)
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				c := flat.RGBA64At(x, y)
				setColour(m, y, x, order, uint32(c.R), uint32(c.G), uint32(c.B))
			}
		}
		return m
	}

	flat := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	flattenOverWhite(flat, img)
	m := layout.NewImageBuffer(b.Dy(), b.Dx(), 3, layout.SampleU8)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := flat.RGBAAt(x, y)
			setColour(m, y, x, order, uint32(c.R), uint32(c.G), uint32(c.B))
		}
	}
	return m
}

func flattenOverWhite(dst draw.Image, src image.Image) {
	r := dst.Bounds()
	draw.Draw(dst, r, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, r, src, src.Bounds().Min, draw.Over)
}

func setColour(m *layout.ImageBuffer, y, x int, order ChannelOrder, r, g, b uint32) {
	if order == RGB {
		m.SetBits(y, x, 0, r)
		m.SetBits(y, x, 2, b)
	} else {
		m.SetBits(y, x, 0, b)
		m.SetBits(y, x, 2, r)
	}
	m.SetBits(y, x, 1, g)
}
