//go:build linux
// +build linux

package platform

import (
	"os"
	"path/filepath"
)

func getDataDir() string {
	// Follow XDG Base Directory Specification
	xdgDataHome := os.Getenv("XDG_DATA_HOME")
	if xdgDataHome != "" {
		return filepath.Join(xdgDataHome, AppName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", AppName)
}

func getCacheDir() string {
	xdgCacheHome := os.Getenv("XDG_CACHE_HOME")
	if xdgCacheHome != "" {
		return filepath.Join(xdgCacheHome, AppName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".cache", AppName)
}

func sharedLibExtension() string {
	return ".so"
}

func onnxRuntimePrefix() string {
	return "lib"
}
