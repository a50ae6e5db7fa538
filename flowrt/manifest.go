package flowrt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/stevecastle/raftflow/layout"
)

// Manifest is the optional JSON sidecar stored next to a model as
// <model>.json. It records how the graph was exported.
type Manifest struct {
	InputNames   []string `json:"input_names"`
	OutputNames  []string `json:"output_names"`
	InputLayout  string   `json:"input_layout"`
	FlowLayout   string   `json:"flow_layout"`
	ChannelOrder string   `json:"channel_order"`
	Resize       struct {
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		Interpolation string `json:"interpolation"`
	} `json:"resize"`
}

// ManifestPath returns the sidecar location for modelPath.
func ManifestPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".json"
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if _, err := m.InputOrder(""); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	if _, err := m.FlowOrder(""); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

// ManifestFor loads the sidecar of modelPath. A missing sidecar is not an
// error: it returns nil, nil.
func ManifestFor(modelPath string) (*Manifest, error) {
	m, err := LoadManifest(ManifestPath(modelPath))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return m, err
}

// ApplyToOptions copies the graph's tensor names into opts.
func (m *Manifest) ApplyToOptions(opts *Options) {
	if m == nil || opts == nil {
		return
	}
	if len(m.InputNames) > 0 {
		opts.InputNames = append([]string(nil), m.InputNames...)
	}
	if len(m.OutputNames) > 0 {
		opts.OutputNames = append([]string(nil), m.OutputNames...)
	}
}

// InputOrder returns the image tensor layout the manifest names, else
// configured, else NHWC.
func (m *Manifest) InputOrder(configured string) (layout.AxisOrder, error) {
	return resolveOrder(m, func(m *Manifest) string { return m.InputLayout }, configured)
}

// FlowOrder returns the flow tensor layout the manifest names, else
// configured, else NHWC.
func (m *Manifest) FlowOrder(configured string) (layout.AxisOrder, error) {
	return resolveOrder(m, func(m *Manifest) string { return m.FlowLayout }, configured)
}

func resolveOrder(m *Manifest, field func(*Manifest) string, configured string) (layout.AxisOrder, error) {
	s := configured
	if m != nil && strings.TrimSpace(field(m)) != "" {
		s = field(m)
	}
	if strings.TrimSpace(s) == "" {
		return layout.NaturalOrder, nil
	}
	return layout.ParseAxisOrder(s)
}
