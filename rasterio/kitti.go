package rasterio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/stevecastle/raftflow/layout"
)

// EncodeKitti writes k as an opaque 16-bit PNG with R = u, G = v and
// B = valid, the KITTI flow file layout.
func EncodeKitti(w io.Writer, k *layout.KittiImage) error {
	img := image.NewRGBA64(image.Rect(0, 0, k.Width, k.Height))
	for y := 0; y < k.Height; y++ {
		for x := 0; x < k.Width; x++ {
			valid, v, u := k.At(y, x)
			img.SetRGBA64(x, y, color.RGBA64{R: u, G: v, B: valid, A: 0xffff})
		}
	}
	return png.Encode(w, img)
}

// WriteKitti encodes k to path, which must have a .png extension.
func WriteKitti(path string, k *layout.KittiImage) (err error) {
	if !strings.EqualFold(filepath.Ext(path), ".png") {
		return fmt.Errorf("%w: %s", ErrNotPNG, path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return EncodeKitti(f, k)
}

// DecodeKitti reads a PNG written by EncodeKitti.
func DecodeKitti(r io.Reader) (*layout.KittiImage, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, err
	}
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64:
	default:
		return nil, fmt.Errorf("%w: got %T", ErrNotKitti, img)
	}
	b := img.Bounds()
	k := layout.NewKittiImage(b.Dy(), b.Dx())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.RGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA64)
			k.Set(y, x, c.B, c.G, c.R)
		}
	}
	return k, nil
}

// ReadKitti decodes the KITTI PNG at path.
func ReadKitti(path string) (*layout.KittiImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeKitti(f)
}
