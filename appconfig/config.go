package appconfig

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/stevecastle/raftflow/platform"
)

// ModelConfig selects the flow model and how it is run.
type ModelConfig struct {
	Path                 string   `json:"path" yaml:"path"`
	ORTSharedLibraryPath string   `json:"ortSharedLibraryPath" yaml:"ortSharedLibraryPath"`
	UseCUDA              bool     `json:"useCuda" yaml:"useCuda"`
	CUDADevice           int      `json:"cudaDevice" yaml:"cudaDevice"`
	OptimizationLevel    string   `json:"optimizationLevel" yaml:"optimizationLevel"`
	IntraOpThreads       int      `json:"intraOpThreads" yaml:"intraOpThreads"`
	InputNames           []string `json:"inputNames" yaml:"inputNames"`
	OutputName           string   `json:"outputName" yaml:"outputName"`
	InputLayout          string   `json:"inputLayout" yaml:"inputLayout"`
	FlowLayout           string   `json:"flowLayout" yaml:"flowLayout"`
	ChannelOrder         string   `json:"channelOrder" yaml:"channelOrder"`
	Width                int      `json:"width" yaml:"width"`
	Height               int      `json:"height" yaml:"height"`
	Interpolation        string   `json:"interpolation" yaml:"interpolation"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
	// ReadTimeout is a time.Duration string such as "30s".
	ReadTimeout string `json:"readTimeout" yaml:"readTimeout"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Config holds application configuration: model, run ledger, server and
// logging settings.
type Config struct {
	// LedgerPath is the SQLite run history. "off" disables recording.
	LedgerPath string       `json:"ledgerPath" yaml:"ledgerPath"`
	Model      ModelConfig  `json:"model" yaml:"model"`
	Server     ServerConfig `json:"server" yaml:"server"`
	Log        LogConfig    `json:"log" yaml:"log"`
}

// LedgerDisabled is the LedgerPath value that turns run recording off.
const LedgerDisabled = "off"

var (
	cfgMu sync.RWMutex
	cfg   Config
)

// DefaultLedgerPath returns the default run ledger path.
// Uses the platform-specific data directory.
func DefaultLedgerPath() string {
	return filepath.Join(platform.GetDataDir(), "runs.db")
}

// DefaultConfigDir returns the default config directory path.
// Uses the platform-specific data directory.
func DefaultConfigDir() string {
	return platform.GetDataDir()
}

// defaultConfig returns a Config populated with sensible defaults.
func defaultConfig() Config {
	return Config{
		LedgerPath: DefaultLedgerPath(),
		Model: ModelConfig{
			ORTSharedLibraryPath: platform.DefaultORTLibraryPath(),
			OptimizationLevel:    "basic",
			InputNames:           []string{"image1", "image2"},
			InputLayout:          "NHWC",
			FlowLayout:           "NHWC",
			ChannelOrder:         "BGR",
			Interpolation:        "bicubic",
		},
		Server: ServerConfig{
			Addr:        "127.0.0.1:8080",
			ReadTimeout: "30s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "pretty",
		},
	}
}

// Get returns a copy of the current in-memory config.
func Get() Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg
}

// Set replaces the in-memory config.
func Set(c Config) {
	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
}

func isJSONObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func deepMergeJSON(dst, src map[string]json.RawMessage) {
	for k, v := range src {
		if existing, ok := dst[k]; ok && isJSONObject(existing) && isJSONObject(v) {
			var dstObj map[string]json.RawMessage
			var srcObj map[string]json.RawMessage
			if err := json.Unmarshal(existing, &dstObj); err != nil {
				dst[k] = v
				continue
			}
			if err := json.Unmarshal(v, &srcObj); err != nil {
				dst[k] = v
				continue
			}
			deepMergeJSON(dstObj, srcObj)
			merged, err := json.Marshal(dstObj)
			if err != nil {
				dst[k] = v
				continue
			}
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

// mergeDefaults fills empty fields of c from def. It reports whether a
// field that should be persisted was filled.
func mergeDefaults(c *Config, def Config) bool {
	needsSave := false
	if c.LedgerPath == "" {
		c.LedgerPath = def.LedgerPath
		needsSave = true
	}
	m, dm := &c.Model, def.Model
	if m.ORTSharedLibraryPath == "" {
		m.ORTSharedLibraryPath = dm.ORTSharedLibraryPath
	}
	if m.OptimizationLevel == "" {
		m.OptimizationLevel = dm.OptimizationLevel
	}
	if len(m.InputNames) == 0 {
		m.InputNames = dm.InputNames
	}
	if m.InputLayout == "" {
		m.InputLayout = dm.InputLayout
	}
	if m.FlowLayout == "" {
		m.FlowLayout = dm.FlowLayout
	}
	if m.ChannelOrder == "" {
		m.ChannelOrder = dm.ChannelOrder
	}
	if m.Interpolation == "" {
		m.Interpolation = dm.Interpolation
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	return needsSave
}

// getConfigPath returns the full path to the config.json file.
func getConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config from the data directory and updates the in-memory
// config. It returns the config and path. If the config file doesn't exist,
// it creates one with default values.
func Load() (Config, string, error) {
	path := getConfigPath()

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return Config{}, "", fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			def := defaultConfig()
			savedPath, saveErr := Save(def)
			if saveErr != nil {
				return Config{}, path, fmt.Errorf("failed to create default config file: %w", saveErr)
			}
			return def, savedPath, nil
		}
		return Config{}, path, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, path, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// A filled-in ledger path is written back.
	if mergeDefaults(&c, defaultConfig()) {
		if _, err := Save(c); err != nil {
			return c, path, fmt.Errorf("failed to save updated config: %w", err)
		}
	}

	Set(c)
	return c, path, nil
}

// LoadFile reads an explicit config file, YAML when the extension is .yaml
// or .yml and JSON otherwise. Missing fields take default values. The file
// is never written.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	var c Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	mergeDefaults(&c, defaultConfig())
	Set(c)
	return c, nil
}

// Save writes the config to the data directory, keeping unknown keys
// already present in the file. Returns the path.
func Save(c Config) (string, error) {
	path := getConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return path, fmt.Errorf("failed to create config directory: %w", err)
	}
	base := map[string]json.RawMessage{}
	if existing, readErr := os.ReadFile(path); readErr == nil {
		var tmp map[string]json.RawMessage
		if err := json.Unmarshal(existing, &tmp); err == nil {
			base = tmp
		}
	}

	marshaled, err := json.Marshal(c)
	if err != nil {
		return path, fmt.Errorf("failed to marshal config: %w", err)
	}
	incoming := map[string]json.RawMessage{}
	if err := json.Unmarshal(marshaled, &incoming); err != nil {
		return path, fmt.Errorf("failed to map config JSON: %w", err)
	}

	deepMergeJSON(base, incoming)

	mergedData, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return path, fmt.Errorf("failed to marshal merged config: %w", err)
	}
	if err := os.WriteFile(path, mergedData, 0644); err != nil {
		return path, fmt.Errorf("failed to write config file: %w", err)
	}
	Set(c)
	return path, nil
}

// Device returns the CUDA device to run on, or -1 for CPU.
func (m ModelConfig) Device() int {
	if !m.UseCUDA {
		return -1
	}
	return m.CUDADevice
}
