//go:build windows
// +build windows

package platform

import (
	"os"
	"path/filepath"
)

func getDataDir() string {
	appDataDir := os.Getenv("APPDATA")
	if appDataDir == "" {
		// Fallback for missing APPDATA
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		return filepath.Join(home, "."+AppName)
	}
	return filepath.Join(appDataDir, AppDisplayName)
}

func getCacheDir() string {
	// On Windows, cache and data are typically in the same location
	return getDataDir()
}

func sharedLibExtension() string {
	return ".dll"
}

func onnxRuntimePrefix() string {
	return ""
}
