// Package flowrt runs optical-flow graphs through ONNX Runtime and exchanges
// layout.Tensor values with them.
package flowrt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/stevecastle/raftflow/logger"
)

// LibraryPathEnv names the environment variable consulted when
// Options.ORTSharedLibraryPath is empty.
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var (
	ErrCGORequired          = errors.New("flowrt requires CGO support; rebuild with CGO_ENABLED=1")
	ErrSessionClosed        = errors.New("session is closed")
	ErrMissingInput         = errors.New("missing input tensor")
	ErrUnknownInput         = errors.New("model has no such input")
	ErrUnknownOutput        = errors.New("model has no such output")
	ErrUnexpectedOutputRank = errors.New("output tensor is not 4-D")
	ErrUnsupportedOutput    = errors.New("output tensor is not float32")
	ErrInvalidDevice        = errors.New("invalid CUDA device")
)

// Options configures how a session is created.
type Options struct {
	// Path to the onnxruntime shared library (.dll/.so/.dylib). If empty,
	// LibraryPathEnv is respected, then the runtime's own default.
	ORTSharedLibraryPath string

	// InputNames are fed on every Run, in graph order.
	InputNames []string
	// OutputNames are fetched on every Run. Empty means every graph output.
	OutputNames []string

	// CUDADevice selects a GPU. Negative runs on CPU.
	CUDADevice int

	// OptimizationLevel is one of "disable", "basic", "extended" or "all".
	OptimizationLevel string

	// IntraOpThreads bounds the operator thread pool. Zero keeps the
	// runtime default.
	IntraOpThreads int

	Log logger.Logger
}

// DefaultOptions returns the settings for the two-frame flow graphs:
// inputs "image1" and "image2", all outputs, CPU execution.
func DefaultOptions() Options {
	return Options{
		InputNames:        []string{"image1", "image2"},
		CUDADevice:        -1,
		OptimizationLevel: "basic",
	}
}

// IOInfo describes one graph input or output.
type IOInfo struct {
	Name     string  `json:"name"`
	Shape    []int64 `json:"shape"`
	DataType string  `json:"dataType"`
}

// libraryPath resolves the shared library location; "" defers to the
// runtime default.
func (o Options) libraryPath() string {
	if o.ORTSharedLibraryPath != "" {
		return o.ORTSharedLibraryPath
	}
	return os.Getenv(LibraryPathEnv)
}

func (o Options) log() logger.Logger {
	if o.Log == nil {
		return logger.Discard()
	}
	return o.Log
}

// selectNames returns want if every entry appears in have, or all of have
// when want is empty. The first name not found is returned with ok false.
func selectNames(want []string, have []IOInfo) (names []string, missing string, ok bool) {
	if len(want) == 0 {
		names = make([]string, len(have))
		for i, h := range have {
			names[i] = h.Name
		}
		return names, "", true
	}
	for _, w := range want {
		found := false
		for _, h := range have {
			if h.Name == w {
				found = true
				break
			}
		}
		if !found {
			return nil, w, false
		}
	}
	return want, "", true
}

// IsModelPath reports whether path names an .onnx file.
func IsModelPath(path string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSpace(path)), ".onnx")
}
