package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/stevecastle/raftflow/appconfig"
	"github.com/stevecastle/raftflow/flow"
	"github.com/stevecastle/raftflow/flowrt"
	"github.com/stevecastle/raftflow/layout"
	"github.com/stevecastle/raftflow/ledger"
	"github.com/stevecastle/raftflow/logger"
	"github.com/stevecastle/raftflow/rasterio"
)

var (
	errNoModel    = errors.New("no model path given")
	errNotONNX    = errors.New("only onnx models are supported")
	errInputNames = errors.New("flow models take exactly two image inputs")
)

// flowModel is a loaded estimator the commands can drive and release.
type flowModel interface {
	EstimateFiles(ctx context.Context, img1, img2, save string) (flow.Result, error)
	Close() error
}

// loadedModel pairs an estimator with the session behind it.
type loadedModel struct {
	*flow.Estimator
	Session *flowrt.Session
	Path    string
}

func (m *loadedModel) Close() error { return m.Session.Close() }

// modelPlan is everything needed to open a model, with the sidecar
// manifest already folded in.
type modelPlan struct {
	Path    string
	Options flowrt.Options
	Output  string
	Input   layout.AxisOrder
	Flow    layout.AxisOrder
	Decode  rasterio.Options
}

// planModel validates m and resolves it against the model's manifest. The
// manifest describes the exported graph and wins over configured names and
// layouts; resize settings come from the manifest only when m has none.
func planModel(m appconfig.ModelConfig, manifest *flowrt.Manifest) (modelPlan, error) {
	if m.Path == "" {
		return modelPlan{}, errNoModel
	}
	if !flowrt.IsModelPath(m.Path) {
		return modelPlan{}, fmt.Errorf("%w: %s", errNotONNX, m.Path)
	}

	opts := flowrt.DefaultOptions()
	opts.ORTSharedLibraryPath = m.ORTSharedLibraryPath
	opts.CUDADevice = m.Device()
	opts.OptimizationLevel = m.OptimizationLevel
	opts.IntraOpThreads = m.IntraOpThreads
	if len(m.InputNames) > 0 {
		opts.InputNames = append([]string(nil), m.InputNames...)
	}
	if m.OutputName != "" {
		opts.OutputNames = []string{m.OutputName}
	}
	manifest.ApplyToOptions(&opts)
	if len(opts.InputNames) != 2 {
		return modelPlan{}, fmt.Errorf("%w: got %q", errInputNames, opts.InputNames)
	}

	p := modelPlan{Path: m.Path, Options: opts, Output: m.OutputName}
	if len(opts.OutputNames) == 1 {
		p.Output = opts.OutputNames[0]
	}

	order := m.ChannelOrder
	d := rasterio.Options{Width: m.Width, Height: m.Height, Interpolation: m.Interpolation}
	if manifest != nil {
		if manifest.ChannelOrder != "" {
			order = manifest.ChannelOrder
		}
		if d.Width <= 0 || d.Height <= 0 {
			d.Width, d.Height = manifest.Resize.Width, manifest.Resize.Height
		}
		if manifest.Resize.Interpolation != "" && d.Interpolation == "" {
			d.Interpolation = manifest.Resize.Interpolation
		}
	}

	var err error
	if p.Input, err = manifest.InputOrder(m.InputLayout); err != nil {
		return modelPlan{}, fmt.Errorf("input layout: %w", err)
	}
	if p.Flow, err = manifest.FlowOrder(m.FlowLayout); err != nil {
		return modelPlan{}, fmt.Errorf("flow layout: %w", err)
	}
	if d.Order, err = rasterio.ParseChannelOrder(order); err != nil {
		return modelPlan{}, err
	}
	p.Decode = d
	return p, nil
}

// estimator wires a runner into an Estimator following p.
func (p modelPlan) estimator(r flow.Runner, log logger.Logger) *flow.Estimator {
	e := flow.New(r)
	e.InputNames = [2]string{p.Options.InputNames[0], p.Options.InputNames[1]}
	e.OutputName = p.Output
	e.InputOrder = p.Input
	e.FlowOrder = p.Flow
	e.Decode = p.Decode
	e.Log = log
	return e
}

// openModel loads the model described by m.
func openModel(m appconfig.ModelConfig, log logger.Logger) (*loadedModel, error) {
	if m.Path == "" {
		return nil, errNoModel
	}
	if _, err := os.Stat(m.Path); err != nil {
		return nil, err
	}
	manifest, err := flowrt.ManifestFor(m.Path)
	if err != nil {
		return nil, err
	}
	p, err := planModel(m, manifest)
	if err != nil {
		return nil, err
	}
	p.Options.Log = log

	session, err := flowrt.Open(p.Path, p.Options)
	if err != nil {
		return nil, err
	}
	log.Info("model inputs", "inputs", session.Inputs())
	log.Info("model outputs", "outputs", session.Outputs())
	return &loadedModel{
		Estimator: p.estimator(session, log),
		Session:   session,
		Path:      p.Path,
	}, nil
}

// openLedger opens the run history at path. "off" or "" yields nil.
func openLedger(path string) (*ledger.Ledger, error) {
	if path == "" || path == appconfig.LedgerDisabled {
		return nil, nil
	}
	return ledger.Open(path)
}

// runRecorder is the part of the ledger the commands write to.
type runRecorder interface {
	Record(ctx context.Context, r ledger.Run) (ledger.Run, error)
}

// recordRun stores the outcome of one EstimateFiles call. Failures to
// record are logged, never returned.
func recordRun(ctx context.Context, rec runRecorder, log logger.Logger, model string, img1, img2, save string, res flow.Result, runErr error) {
	if rec == nil {
		return
	}
	r := ledger.Run{
		Model:     model,
		Image1:    img1,
		Image2:    img2,
		Output:    save,
		Height:    res.Height,
		Width:     res.Width,
		ElapsedMS: res.Elapsed.Milliseconds(),
	}
	if runErr != nil {
		r.Status = ledger.StatusFailed
		r.Error = runErr.Error()
	}
	if _, err := rec.Record(ctx, r); err != nil {
		log.Warn("failed to record run", "error", err)
	}
}
