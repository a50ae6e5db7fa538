package rasterio

import (
	"image"
	"strings"

	resize "github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Resize scales img to w x h. "bicubic" uses a true bicubic kernel; other
// names select an x/image/draw scaler, CatmullRom by default. Grayscale and
// 16-bit sources keep their pixel type.
func Resize(img image.Image, w, h int, interpolation string) image.Image {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img
	}
	if strings.EqualFold(strings.TrimSpace(interpolation), "bicubic") {
		return resize.Resize(uint(w), uint(h), img, resize.Bicubic)
	}
	dst := newLike(img, image.Rect(0, 0, w, h))
	chooseScaler(interpolation).Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func newLike(img image.Image, r image.Rectangle) draw.Image {
	switch img.(type) {
	case *image.Gray:
		return image.NewGray(r)
	case *image.Gray16:
		return image.NewGray16(r)
	case *image.RGBA64, *image.NRGBA64:
		return image.NewRGBA64(r)
	}
	return image.NewRGBA(r)
}

func chooseScaler(name string) draw.Scaler {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bilinear":
		return draw.BiLinear
	case "nearest":
		return draw.NearestNeighbor
	case "approx", "approxbilinear":
		return draw.ApproxBiLinear
	default:
		return draw.CatmullRom
	}
}
