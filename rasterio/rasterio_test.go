package rasterio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stevecastle/raftflow/layout"
)

func bits(t *testing.T, m *layout.ImageBuffer, y, x, c int) uint32 {
	t.Helper()
	return m.Bits(y, x, c)
}

func TestFromImageChannelOrder(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.SetRGBA(1, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	tests := []struct {
		order  ChannelOrder
		c0, c2 uint32
	}{
		{BGR, 30, 10},
		{RGB, 10, 30},
	}
	for _, tt := range tests {
		m := FromImage(src, tt.order)
		if m.Channels != 3 || m.Kind != layout.SampleU8 {
			t.Fatalf("%v: shape = %v", tt.order, m.Shape())
		}
		if got := bits(t, m, 0, 1, 0); got != tt.c0 {
			t.Errorf("%v: channel 0 = %d; want %d", tt.order, got, tt.c0)
		}
		if got := bits(t, m, 0, 1, 1); got != 20 {
			t.Errorf("%v: channel 1 = %d; want 20", tt.order, got)
		}
		if got := bits(t, m, 0, 1, 2); got != tt.c2 {
			t.Errorf("%v: channel 2 = %d; want %d", tt.order, got, tt.c2)
		}
	}
}

func TestFromImageFlattensAlphaOverWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 0})
	m := FromImage(src, BGR)
	for c := 0; c < 3; c++ {
		if got := bits(t, m, 0, 0, c); got != 255 {
			t.Errorf("channel %d = %d; want 255", c, got)
		}
	}
}

func TestFromImageGray(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 3, 2))
	g.SetGray(2, 1, color.Gray{Y: 77})
	m := FromImage(g, BGR)
	if m.Channels != 1 || m.Kind != layout.SampleU8 || m.Height != 2 || m.Width != 3 {
		t.Fatalf("shape = %v", m.Shape())
	}
	if got := bits(t, m, 1, 2, 0); got != 77 {
		t.Errorf("sample = %d; want 77", got)
	}

	g16 := image.NewGray16(image.Rect(0, 0, 2, 2))
	g16.SetGray16(1, 0, color.Gray16{Y: 40000})
	m = FromImage(g16, BGR)
	if m.Channels != 1 || m.Kind != layout.SampleU16 {
		t.Fatalf("shape = %v", m.Shape())
	}
	if got := bits(t, m, 0, 1, 0); got != 40000 {
		t.Errorf("sample = %d; want 40000", got)
	}
}

func TestFromImageSixteenBitColour(t *testing.T) {
	src := image.NewNRGBA64(image.Rect(0, 0, 1, 1))
	src.SetNRGBA64(0, 0, color.NRGBA64{R: 1000, G: 2000, B: 65000, A: 0xffff})
	m := FromImage(src, BGR)
	if m.Kind != layout.SampleU16 || m.Channels != 3 {
		t.Fatalf("shape = %v", m.Shape())
	}
	if b, g, r := bits(t, m, 0, 0, 0), bits(t, m, 0, 0, 1), bits(t, m, 0, 0, 2); b != 65000 || g != 2000 || r != 1000 {
		t.Errorf("pixel = (%d, %d, %d); want (65000, 2000, 1000)", b, g, r)
	}
}

func TestDecodeAndResize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			src.SetRGBA(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}

	for _, interp := range []string{"bicubic", "bilinear", "nearest", ""} {
		m, err := Decode(bytes.NewReader(buf.Bytes()), Options{Width: 4, Height: 3, Interpolation: interp})
		if err != nil {
			t.Fatalf("%q: Decode error: %v", interp, err)
		}
		if m.Width != 4 || m.Height != 3 {
			t.Errorf("%q: size = %dx%d; want 4x3", interp, m.Width, m.Height)
		}
		// A uniform image stays uniform under every filter.
		if got := bits(t, m, 1, 1, 0); got != 50 {
			t.Errorf("%q: blue = %d; want 50", interp, got)
		}
	}
}

func TestResizeKeepsPixelType(t *testing.T) {
	g16 := image.NewGray16(image.Rect(0, 0, 4, 4))
	if _, ok := Resize(g16, 2, 2, "nearest").(*image.Gray16); !ok {
		t.Error("nearest resize of Gray16 changed pixel type")
	}
	if got := Resize(g16, 4, 4, "bilinear"); got != image.Image(g16) {
		t.Error("same-size resize should return the source")
	}
}

func TestKittiRoundTrip(t *testing.T) {
	k := layout.NewKittiImage(2, 3)
	k.Set(0, 0, 1, 33792, 32768)
	k.Set(1, 2, 1, 0, 65535)

	var buf bytes.Buffer
	if err := EncodeKitti(&buf, k); err != nil {
		t.Fatalf("EncodeKitti error: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	c := color.RGBA64Model.Convert(img.At(0, 0)).(color.RGBA64)
	if c.R != 32768 || c.G != 33792 || c.B != 1 {
		t.Errorf("on-disk pixel = R%d G%d B%d; want R32768 G33792 B1", c.R, c.G, c.B)
	}

	back, err := DecodeKitti(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("DecodeKitti error: %v", err)
	}
	for i := range k.Pix {
		if back.Pix[i] != k.Pix[i] {
			t.Fatalf("sample %d = %d; want %d", i, back.Pix[i], k.Pix[i])
		}
	}
}

func TestWriteKitti(t *testing.T) {
	dir := t.TempDir()
	k := layout.NewKittiImage(1, 1)
	k.Set(0, 0, 1, 32768, 32768)

	if err := WriteKitti(filepath.Join(dir, "flow.jpg"), k); !errors.Is(err, ErrNotPNG) {
		t.Errorf("jpg path error = %v; want ErrNotPNG", err)
	}

	path := filepath.Join(dir, "flow.PNG")
	if err := WriteKitti(path, k); err != nil {
		t.Fatalf("WriteKitti error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
	back, err := ReadKitti(path)
	if err != nil {
		t.Fatalf("ReadKitti error: %v", err)
	}
	if valid, v, u := back.At(0, 0); valid != 1 || v != 32768 || u != 32768 {
		t.Errorf("pixel = (%d, %d, %d)", valid, v, u)
	}
}

func TestDecodeKittiRejectsEightBit(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeKitti(&buf); !errors.Is(err, ErrNotKitti) {
		t.Errorf("error = %v; want ErrNotKitti", err)
	}
}

func TestParseChannelOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    ChannelOrder
		wantErr bool
	}{
		{"", BGR, false},
		{"bgr", BGR, false},
		{" RGB ", RGB, false},
		{"rgba", BGR, true},
	}
	for _, tt := range tests {
		got, err := ParseChannelOrder(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseChannelOrder(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseChannelOrder(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}
