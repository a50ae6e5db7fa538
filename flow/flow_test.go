package flow

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stevecastle/raftflow/layout"
	"github.com/stevecastle/raftflow/rasterio"
)

// fakeRunner returns a constant flow field sized to the first input, in
// NHWC unless channelFirst is set.
type fakeRunner struct {
	output       string
	u, v         float32
	channelFirst bool
	err          error
	calls        int
	seen         map[string]*layout.Tensor
}

func (f *fakeRunner) Run(ctx context.Context, inputs map[string]*layout.Tensor) (map[string]*layout.Tensor, error) {
	f.calls++
	f.seen = inputs
	if f.err != nil {
		return nil, f.err
	}
	in := inputs["image1"].Shape()
	data := make([]float32, 2*in[1]*in[2])
	shape := layout.Shape{1, in[1], in[2], 2}
	if f.channelFirst {
		h, w := in[2], in[3]
		data = make([]float32, 2*h*w)
		for i := 0; i < h*w; i++ {
			data[i] = f.u
			data[h*w+i] = f.v
		}
		shape = layout.Shape{1, 2, h, w}
	} else {
		for i := 0; i < len(data); i += 2 {
			data[i] = f.u
			data[i+1] = f.v
		}
	}
	t, err := layout.NewTensor(shape, data)
	if err != nil {
		return nil, err
	}
	return map[string]*layout.Tensor{f.output: t}, nil
}

func frame(h, w int) *layout.ImageBuffer {
	return layout.NewImageBuffer(h, w, 3, layout.SampleU8)
}

func TestEstimate(t *testing.T) {
	r := &fakeRunner{output: "flow", u: 0, v: 16}
	e := New(r)
	k, err := e.Estimate(context.Background(), frame(4, 6), frame(4, 6))
	if err != nil {
		t.Fatalf("Estimate error: %v", err)
	}
	if got := r.seen["image2"].Shape(); got != (layout.Shape{1, 4, 6, 3}) {
		t.Errorf("image2 tensor shape = %v; want [1 4 6 3]", got)
	}
	if k.Height != 4 || k.Width != 6 {
		t.Fatalf("size = %dx%d; want 4x6", k.Height, k.Width)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			if valid, v, u := k.At(y, x); valid != 1 || v != 33792 || u != 32768 {
				t.Fatalf("(%d,%d) = (%d, %d, %d); want (1, 33792, 32768)", y, x, valid, v, u)
			}
		}
	}
}

func TestEstimateDefaultsToNHWC(t *testing.T) {
	e := New(&fakeRunner{output: "flow", u: -3.5, v: 12.25})
	if e.InputOrder != layout.NaturalOrder || e.FlowOrder != layout.NaturalOrder {
		t.Fatalf("orders = %v, %v; want NHWC", e.InputOrder, e.FlowOrder)
	}
	k, err := e.Estimate(context.Background(), frame(4, 5), frame(4, 5))
	if err != nil {
		t.Fatalf("Estimate error: %v", err)
	}
	if k.Height != 4 || k.Width != 5 {
		t.Fatalf("size = %dx%d; want 4x5", k.Height, k.Width)
	}
	if u, v, valid := k.Flow(3, 4); u != -3.5 || v != 12.25 || !valid {
		t.Errorf("Flow(3,4) = (%v, %v, %v); want (-3.5, 12.25, true)", u, v, valid)
	}
}

func TestEstimateChannelFirst(t *testing.T) {
	r := &fakeRunner{output: "flow", u: 2, v: 1, channelFirst: true}
	e := New(r)
	e.InputOrder, e.FlowOrder = layout.ChannelFirstOrder, layout.ChannelFirstOrder
	k, err := e.Estimate(context.Background(), frame(3, 2), frame(3, 2))
	if err != nil {
		t.Fatalf("Estimate error: %v", err)
	}
	if got := r.seen["image1"].Shape(); got != (layout.Shape{1, 3, 3, 2}) {
		t.Errorf("image1 tensor shape = %v; want [1 3 3 2]", got)
	}
	if u, v, _ := k.Flow(2, 1); u != 2 || v != 1 {
		t.Errorf("Flow(2,1) = (%v, %v); want (2, 1)", u, v)
	}
}

func TestEstimateErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		runner Runner
		output string
		a, b   *layout.ImageBuffer
		want   error
	}{
		{"shape mismatch", &fakeRunner{output: "flow"}, "", frame(4, 6), frame(4, 5), layout.ErrShapeMismatch},
		{"runner error", &fakeRunner{err: boom}, "", frame(2, 2), frame(2, 2), boom},
		{"missing named output", &fakeRunner{output: "flow"}, "flow_up", frame(2, 2), frame(2, 2), ErrMissingOutput},
		{"no runner", nil, "", frame(2, 2), frame(2, 2), ErrNoRunner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.runner)
			e.OutputName = tt.output
			if _, err := e.Estimate(context.Background(), tt.a, tt.b); !errors.Is(err, tt.want) {
				t.Errorf("error = %v; want %v", err, tt.want)
			}
		})
	}
}

func TestEstimateShapeMismatchSkipsRunner(t *testing.T) {
	r := &fakeRunner{output: "flow"}
	if _, err := New(r).Estimate(context.Background(), frame(3, 3), frame(4, 3)); err == nil {
		t.Fatal("expected error")
	}
	if r.calls != 0 {
		t.Errorf("runner called %d times; want 0", r.calls)
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestEstimateFiles(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")
	writePNG(t, a, 5, 3)
	writePNG(t, b, 5, 3)

	e := New(&fakeRunner{output: "flow", u: 1, v: -1})
	save := filepath.Join(dir, "out", "nested", "flow.png")
	res, err := e.EstimateFiles(context.Background(), a, b, save)
	if err != nil {
		t.Fatalf("EstimateFiles error: %v", err)
	}
	if res.Output != save || res.Height != 3 || res.Width != 5 {
		t.Errorf("result = %+v", res)
	}

	k, err := rasterio.ReadKitti(save)
	if err != nil {
		t.Fatalf("ReadKitti error: %v", err)
	}
	u, v, valid := k.Flow(2, 4)
	if u != 1 || v != -1 || !valid {
		t.Errorf("Flow = (%v, %v, %v); want (1, -1, true)", u, v, valid)
	}
}

func TestEstimateFilesRejectsNonPNG(t *testing.T) {
	r := &fakeRunner{output: "flow"}
	_, err := New(r).EstimateFiles(context.Background(), "a.png", "b.png", "out.jpg")
	if !errors.Is(err, rasterio.ErrNotPNG) {
		t.Errorf("error = %v; want ErrNotPNG", err)
	}
	if r.calls != 0 {
		t.Errorf("runner called %d times; want 0", r.calls)
	}
}

func TestEstimateFilesMissingInput(t *testing.T) {
	dir := t.TempDir()
	_, err := New(&fakeRunner{output: "flow"}).EstimateFiles(context.Background(),
		filepath.Join(dir, "nope.png"), filepath.Join(dir, "nope2.png"), filepath.Join(dir, "o.png"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v; want not-exist", err)
	}
}
