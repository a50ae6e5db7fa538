//go:build cgo
// +build cgo

package flowrt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/stevecastle/raftflow/layout"
)

// The ORT environment is process-wide. Sessions hold a reference and the
// last Close tears it down.
var (
	envMu   sync.Mutex
	envRefs int
)

func acquireEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 && !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		return
	}
	envRefs--
	if envRefs == 0 {
		ort.DestroyEnvironment()
	}
}

// Session is a loaded model. Run may be called concurrently; Close waits for
// in-flight runs.
type Session struct {
	mu       sync.RWMutex
	session  *ort.DynamicAdvancedSession
	inputs   []IOInfo
	outputs  []IOInfo
	inNames  []string
	outNames []string
}

// Open loads the model at modelPath.
func Open(modelPath string, opts Options) (*Session, error) {
	if opts.CUDADevice < -1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDevice, opts.CUDADevice)
	}
	if err := acquireEnvironment(opts.libraryPath()); err != nil {
		return nil, err
	}
	s, err := open(modelPath, opts)
	if err != nil {
		releaseEnvironment()
		return nil, err
	}
	return s, nil
}

func open(modelPath string, opts Options) (*Session, error) {
	rawIn, rawOut, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read model metadata %s: %w", modelPath, err)
	}
	inputs, outputs := convertInfo(rawIn), convertInfo(rawOut)

	inNames, missing, ok := selectNames(opts.InputNames, inputs)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInput, missing)
	}
	outNames, missing, ok := selectNames(opts.OutputNames, outputs)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOutput, missing)
	}

	so, err := sessionOptions(opts)
	if err != nil {
		return nil, err
	}
	defer so.Destroy()

	session, err := ort.NewDynamicAdvancedSession(modelPath, inNames, outNames, so)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	opts.log().Info("model loaded",
		"path", modelPath, "inputs", inNames, "outputs", outNames, "cuda_device", opts.CUDADevice)

	return &Session{
		session:  session,
		inputs:   inputs,
		outputs:  outputs,
		inNames:  inNames,
		outNames: outNames,
	}, nil
}

func sessionOptions(opts Options) (*ort.SessionOptions, error) {
	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	if err := so.SetGraphOptimizationLevel(optimizationLevel(opts.OptimizationLevel)); err != nil {
		so.Destroy()
		return nil, err
	}
	if opts.IntraOpThreads > 0 {
		if err := so.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			so.Destroy()
			return nil, err
		}
	}
	if opts.CUDADevice >= 0 {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			so.Destroy()
			return nil, fmt.Errorf("cuda provider: %w", err)
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(opts.CUDADevice)}); err != nil {
			so.Destroy()
			return nil, fmt.Errorf("cuda provider: %w", err)
		}
		if err := so.AppendExecutionProviderCUDA(cuda); err != nil {
			so.Destroy()
			return nil, fmt.Errorf("cuda provider: %w", err)
		}
	}
	return so, nil
}

func optimizationLevel(name string) ort.GraphOptimizationLevel {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "disable", "none":
		return ort.GraphOptimizationLevelDisableAll
	case "extended":
		return ort.GraphOptimizationLevelEnableExtended
	case "all":
		return ort.GraphOptimizationLevelEnableAll
	default:
		return ort.GraphOptimizationLevelEnableBasic
	}
}

func convertInfo(in []ort.InputOutputInfo) []IOInfo {
	out := make([]IOInfo, len(in))
	for i, info := range in {
		out[i] = IOInfo{
			Name:     info.Name,
			Shape:    append([]int64(nil), info.Dimensions...),
			DataType: info.DataType.String(),
		}
	}
	return out
}

// Inputs describes the graph inputs.
func (s *Session) Inputs() []IOInfo { return s.inputs }

// Outputs describes the graph outputs.
func (s *Session) Outputs() []IOInfo { return s.outputs }

// Run feeds one tensor per configured input name and returns every
// configured output keyed by name.
func (s *Session) Run(ctx context.Context, inputs map[string]*layout.Tensor) (map[string]*layout.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, ErrSessionClosed
	}

	in := make([]ort.Value, 0, len(s.inNames))
	defer func() { destroyValues(in) }()
	for _, name := range s.inNames {
		t, ok := inputs[name]
		if !ok || t == nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingInput, name)
		}
		shape := t.Shape()
		v, err := ort.NewTensor(ort.NewShape(int64(shape[0]), int64(shape[1]), int64(shape[2]), int64(shape[3])), t.Float32s())
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		in = append(in, v)
	}

	// Nil outputs are allocated by the runtime to fit the dynamic shapes.
	out := make([]ort.Value, len(s.outNames))
	defer func() { destroyValues(out) }()
	if err := s.session.Run(in, out); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}

	result := make(map[string]*layout.Tensor, len(out))
	for i, v := range out {
		t, err := toLayoutTensor(v)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", s.outNames[i], err)
		}
		result[s.outNames[i]] = t
	}
	return result, nil
}

func toLayoutTensor(v ort.Value) (*layout.Tensor, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, ErrUnsupportedOutput
	}
	dims := t.GetShape()
	if len(dims) != 4 {
		return nil, fmt.Errorf("%w: shape %v", ErrUnexpectedOutputRank, dims)
	}
	data := append([]float32(nil), t.GetData()...)
	return layout.NewTensor(layout.Shape{int(dims[0]), int(dims[1]), int(dims[2]), int(dims[3])}, data)
}

func destroyValues(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}

// Close releases the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	releaseEnvironment()
	return err
}
