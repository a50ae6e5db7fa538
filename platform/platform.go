// Package platform provides per-OS directory paths and shared library
// naming.
package platform

import (
	"os"
	"path/filepath"
)

// AppName is the application name used for directory naming
const AppName = "raftflow"

// AppDisplayName is the display name used on Windows and macOS
const AppDisplayName = "Raftflow"

// GetDataDir returns the application data directory.
// Windows: %APPDATA%\Raftflow
// Linux: ~/.local/share/raftflow
// macOS: ~/Library/Application Support/Raftflow
func GetDataDir() string {
	return getDataDir()
}

// GetCacheDir returns the cache directory for downloaded runtimes.
// Windows: %APPDATA%\Raftflow
// Linux: ~/.cache/raftflow
func GetCacheDir() string {
	return getCacheDir()
}

// SharedLibExtension returns the shared library extension for the current platform.
// Windows: ".dll"
// Linux: ".so"
func SharedLibExtension() string {
	return sharedLibExtension()
}

// OnnxRuntimeLibName returns the ONNX Runtime shared library file name,
// e.g. "libonnxruntime.so" or "onnxruntime.dll".
func OnnxRuntimeLibName() string {
	return onnxRuntimePrefix() + "onnxruntime" + sharedLibExtension()
}

// DefaultORTLibraryPath returns the ONNX Runtime library under the cache
// directory when one has been installed there, or "" to let the runtime
// search the system paths.
func DefaultORTLibraryPath() string {
	p := filepath.Join(GetCacheDir(), "onnxruntime", OnnxRuntimeLibName())
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
