// Package flow estimates optical flow between two frames with an inference
// runner and encodes the result as a KITTI flow image.
package flow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stevecastle/raftflow/layout"
	"github.com/stevecastle/raftflow/logger"
	"github.com/stevecastle/raftflow/rasterio"
)

var (
	ErrMissingOutput = errors.New("runner returned no flow output")
	ErrNoRunner      = errors.New("no model loaded")
)

// Runner executes a graph on named tensors. *flowrt.Session satisfies it.
type Runner interface {
	Run(ctx context.Context, inputs map[string]*layout.Tensor) (map[string]*layout.Tensor, error)
}

// Estimator turns frame pairs into KITTI flow images.
type Estimator struct {
	Runner Runner

	// InputNames are the graph inputs for the first and second frame.
	InputNames [2]string
	// OutputName selects the flow output. Empty accepts a runner that
	// returns exactly one output.
	OutputName string

	InputOrder layout.AxisOrder
	FlowOrder  layout.AxisOrder

	// Decode controls how EstimateFiles reads frames.
	Decode rasterio.Options

	Converter layout.Converter
	Log       logger.Logger
}

// New returns an Estimator with the two-frame defaults: inputs "image1" and
// "image2", NHWC tensors both ways.
func New(r Runner) *Estimator {
	return &Estimator{
		Runner:     r,
		InputNames: [2]string{"image1", "image2"},
		InputOrder: layout.NaturalOrder,
		FlowOrder:  layout.NaturalOrder,
	}
}

func (e *Estimator) log() logger.Logger {
	if e.Log == nil {
		return logger.Discard()
	}
	return e.Log
}

// Estimate runs the model on two frames of identical shape and returns the
// encoded flow from the first frame to the second.
func (e *Estimator) Estimate(ctx context.Context, img1, img2 *layout.ImageBuffer) (*layout.KittiImage, error) {
	if e.Runner == nil {
		return nil, ErrNoRunner
	}
	if _, err := layout.ValidateBatch([]*layout.ImageBuffer{img1, img2}); err != nil {
		return nil, err
	}

	t1, err := e.Converter.ImagesToTensor([]*layout.ImageBuffer{img1}, e.InputOrder)
	if err != nil {
		return nil, fmt.Errorf("first frame: %w", err)
	}
	t2, err := e.Converter.ImagesToTensor([]*layout.ImageBuffer{img2}, e.InputOrder)
	if err != nil {
		return nil, fmt.Errorf("second frame: %w", err)
	}

	outputs, err := e.Runner.Run(ctx, map[string]*layout.Tensor{
		e.InputNames[0]: t1,
		e.InputNames[1]: t2,
	})
	if err != nil {
		return nil, err
	}
	flow, err := e.pickOutput(outputs)
	if err != nil {
		return nil, err
	}
	return e.Converter.FlowTensorToKittiImage(flow, e.FlowOrder)
}

func (e *Estimator) pickOutput(outputs map[string]*layout.Tensor) (*layout.Tensor, error) {
	if e.OutputName != "" {
		t, ok := outputs[e.OutputName]
		if !ok || t == nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingOutput, e.OutputName)
		}
		return t, nil
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("%w: %d outputs and no output name", ErrMissingOutput, len(outputs))
	}
	for _, t := range outputs {
		if t != nil {
			return t, nil
		}
	}
	return nil, ErrMissingOutput
}

// Result describes one completed EstimateFiles call.
type Result struct {
	Image1   string
	Image2   string
	Output   string
	Height   int
	Width    int
	Elapsed  time.Duration
	Finished time.Time
}

// EstimateFiles reads two image files, estimates flow and writes it to
// save, creating parent directories as needed. save must end in .png.
func (e *Estimator) EstimateFiles(ctx context.Context, img1, img2, save string) (Result, error) {
	if !strings.EqualFold(filepath.Ext(save), ".png") {
		return Result{}, fmt.Errorf("%w: %s", rasterio.ErrNotPNG, save)
	}
	start := time.Now()

	a, err := rasterio.Read(img1, e.Decode)
	if err != nil {
		return Result{}, err
	}
	b, err := rasterio.Read(img2, e.Decode)
	if err != nil {
		return Result{}, err
	}
	k, err := e.Estimate(ctx, a, b)
	if err != nil {
		return Result{}, err
	}

	if dir := filepath.Dir(save); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := rasterio.WriteKitti(save, k); err != nil {
		return Result{}, err
	}

	res := Result{
		Image1:   img1,
		Image2:   img2,
		Output:   save,
		Height:   k.Height,
		Width:    k.Width,
		Elapsed:  time.Since(start),
		Finished: time.Now(),
	}
	e.log().Info("flow written", "output", save, "height", res.Height, "width", res.Width, "elapsed", res.Elapsed)
	return res, nil
}
