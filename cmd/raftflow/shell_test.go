package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stevecastle/raftflow/appconfig"
	"github.com/stevecastle/raftflow/flow"
	"github.com/stevecastle/raftflow/layout"
	"github.com/stevecastle/raftflow/ledger"
	"github.com/stevecastle/raftflow/logger"
	"github.com/stevecastle/raftflow/rasterio"
)

// constRunner returns an NHWC flow of (u, v) everywhere, sized from the
// first input.
type constRunner struct {
	u, v float32
}

func (r constRunner) Run(_ context.Context, inputs map[string]*layout.Tensor) (map[string]*layout.Tensor, error) {
	s := inputs["image1"].Shape()
	h, w := s[1], s[2]
	data := make([]float32, 2*h*w)
	for i := 0; i < len(data); i += 2 {
		data[i] = r.u
		data[i+1] = r.v
	}
	t, err := layout.NewTensor(layout.Shape{1, h, w, 2}, data)
	if err != nil {
		return nil, err
	}
	return map[string]*layout.Tensor{"flow": t}, nil
}

type fakeModel struct {
	*flow.Estimator
	closed bool
}

func (m *fakeModel) Close() error {
	m.closed = true
	return nil
}

type fakeRecorder struct {
	runs []ledger.Run
}

func (r *fakeRecorder) Record(_ context.Context, run ledger.Run) (ledger.Run, error) {
	r.runs = append(r.runs, run)
	return run, nil
}

type shellHarness struct {
	sh     *shell
	out    bytes.Buffer
	logs   bytes.Buffer
	opened []appconfig.ModelConfig
	models []*fakeModel
	runs   *fakeRecorder
}

func newShellHarness() *shellHarness {
	h := &shellHarness{runs: &fakeRecorder{}}
	h.sh = &shell{
		out:  &h.out,
		log:  logger.Text(&h.logs, slog.LevelDebug),
		base: appconfig.ModelConfig{CUDADevice: -1},
		runs: h.runs,
	}
	h.sh.open = func(m appconfig.ModelConfig) (flowModel, error) {
		h.opened = append(h.opened, m)
		fm := &fakeModel{Estimator: flow.New(constRunner{u: 1.5, v: -2})}
		h.models = append(h.models, fm)
		return fm, nil
	}
	return h
}

func (h *shellHarness) run(t *testing.T, script string) {
	t.Helper()
	if err := h.sh.run(context.Background(), strings.NewReader(script)); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func writeFrame(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 50, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// workspace creates a model file and two 4x3 frames in a temp dir.
func workspace(t *testing.T) (dir, model, img1, img2 string) {
	t.Helper()
	dir = t.TempDir()
	model = filepath.Join(dir, "raft.onnx")
	if err := os.WriteFile(model, []byte("onnx"), 0o644); err != nil {
		t.Fatal(err)
	}
	img1, img2 = filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")
	writeFrame(t, img1, 4, 3)
	writeFrame(t, img2, 4, 3)
	return dir, model, img1, img2
}

func TestShellHelpAndQuit(t *testing.T) {
	h := newShellHarness()
	h.run(t, "help\nquit\nhelp\n")
	if n := strings.Count(h.out.String(), "inference <path-to-image1>"); n != 2 {
		t.Errorf("usage printed %d times; want 2", n)
	}
	if len(h.opened) != 0 {
		t.Errorf("opened %d models; want 0", len(h.opened))
	}
}

func TestShellLoadAndInference(t *testing.T) {
	dir, model, img1, img2 := workspace(t)
	save := filepath.Join(dir, "out", "nested", "flow.png")

	h := newShellHarness()
	h.run(t, "load "+model+" 0\ninference "+img1+" "+img2+" "+save+"\nquit\n")

	if len(h.opened) != 1 {
		t.Fatalf("opened %d models; want 1", len(h.opened))
	}
	if got := h.opened[0]; got.Path != model || got.Device() != 0 {
		t.Errorf("opened %q on device %d; want %q on 0", got.Path, got.Device(), model)
	}
	if !h.models[0].closed {
		t.Error("model not released on quit")
	}

	k, err := rasterio.ReadKitti(save)
	if err != nil {
		t.Fatalf("ReadKitti: %v", err)
	}
	if k.Width != 4 || k.Height != 3 {
		t.Fatalf("flow size = %dx%d; want 4x3", k.Width, k.Height)
	}
	if u, v, valid := k.Flow(2, 3); u != 1.5 || v != -2 || !valid {
		t.Errorf("Flow(2,3) = (%v, %v, %v); want (1.5, -2, true)", u, v, valid)
	}
	if !strings.Contains(h.out.String(), "saved "+save) {
		t.Errorf("output %q does not report the saved file", h.out.String())
	}

	if len(h.runs.runs) != 1 {
		t.Fatalf("recorded %d runs; want 1", len(h.runs.runs))
	}
	r := h.runs.runs[0]
	if r.Model != model || r.Output != save || r.Width != 4 || r.Height != 3 || r.Status != "" {
		t.Errorf("recorded run = %+v", r)
	}
}

func TestShellLoadDevice(t *testing.T) {
	_, model, _, _ := workspace(t)
	tests := []struct {
		line string
		want int
	}{
		{"load " + model, -1},
		{"load " + model + " 2", 2},
		{"load " + model + " -3", -1},
	}
	for _, tt := range tests {
		h := newShellHarness()
		h.run(t, tt.line+"\n")
		if len(h.opened) != 1 {
			t.Fatalf("%q: opened %d models; want 1", tt.line, len(h.opened))
		}
		if got := h.opened[0].Device(); got != tt.want {
			t.Errorf("%q: device = %d; want %d", tt.line, got, tt.want)
		}
	}
}

func TestShellReloadReleasesPrevious(t *testing.T) {
	_, model, _, _ := workspace(t)
	h := newShellHarness()
	h.run(t, "load "+model+"\nload "+model+" 1\n")
	if len(h.models) != 2 {
		t.Fatalf("opened %d models; want 2", len(h.models))
	}
	if !h.models[0].closed || !h.models[1].closed {
		t.Error("every loaded model should be released by EOF")
	}
}

func TestShellSkipsInvalidCommands(t *testing.T) {
	dir, model, img1, img2 := workspace(t)
	txt := filepath.Join(dir, "model.txt")
	if err := os.WriteFile(txt, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "missing.png")
	save := filepath.Join(dir, "flow.png")

	tests := []struct {
		name   string
		script string
		log    string
	}{
		{"load without path", "load\n", "expected a model path"},
		{"load non-onnx", "load " + txt + "\n", "only onnx models"},
		{"load missing model", "load " + filepath.Join(dir, "nope.onnx") + "\n", "model does not exist"},
		{"load bad device", "load " + model + " gpu\n", "cuda device must be a number"},
		{"inference too few args", "inference " + img1 + "\n", "expected 3 arguments"},
		{"inference missing image", "inference " + img1 + " " + missing + " " + save + "\n", "image2 does not exist"},
		{"inference without model", "inference " + img1 + " " + img2 + " " + save + "\n", "no model loaded"},
		{"unknown operation", "frobnicate\n", "unknown operation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newShellHarness()
			h.run(t, tt.script)
			if len(h.opened) != 0 {
				t.Errorf("opened %d models; want 0", len(h.opened))
			}
			if len(h.runs.runs) != 0 {
				t.Errorf("recorded %d runs; want 0", len(h.runs.runs))
			}
			if !strings.Contains(h.logs.String(), tt.log) {
				t.Errorf("logs %q do not mention %q", h.logs.String(), tt.log)
			}
		})
	}
	if _, err := os.Stat(save); !os.IsNotExist(err) {
		t.Errorf("flow file written by a skipped command: %v", err)
	}
}

func TestShellRejectsNonPNGOutput(t *testing.T) {
	dir, model, img1, img2 := workspace(t)
	save := filepath.Join(dir, "flow.jpg")
	h := newShellHarness()
	h.run(t, "load "+model+"\ninference "+img1+" "+img2+" "+save+"\n")
	if _, err := os.Stat(save); !os.IsNotExist(err) {
		t.Errorf("non-png output written: %v", err)
	}
	if !strings.Contains(h.logs.String(), "only png output") {
		t.Errorf("logs %q do not mention png", h.logs.String())
	}
}

func TestShellRecordsFailedRun(t *testing.T) {
	dir, model, img1, _ := workspace(t)
	small := filepath.Join(dir, "small.png")
	writeFrame(t, small, 2, 2)
	save := filepath.Join(dir, "flow.png")

	h := newShellHarness()
	h.run(t, "load "+model+"\ninference "+img1+" "+small+" "+save+"\n")
	if len(h.runs.runs) != 1 {
		t.Fatalf("recorded %d runs; want 1", len(h.runs.runs))
	}
	if r := h.runs.runs[0]; r.Status != ledger.StatusFailed || r.Error == "" {
		t.Errorf("recorded run = %+v; want a failure", r)
	}
	if !strings.Contains(h.logs.String(), "inference failed") {
		t.Errorf("logs %q do not mention the failure", h.logs.String())
	}
}
