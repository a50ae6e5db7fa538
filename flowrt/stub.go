//go:build !cgo
// +build !cgo

package flowrt

import (
	"context"

	"github.com/stevecastle/raftflow/layout"
)

// Session is unavailable without CGO; every method reports ErrCGORequired.
type Session struct{}

// Open returns ErrCGORequired.
func Open(modelPath string, opts Options) (*Session, error) {
	return nil, ErrCGORequired
}

func (s *Session) Inputs() []IOInfo  { return nil }
func (s *Session) Outputs() []IOInfo { return nil }

// Run returns ErrCGORequired.
func (s *Session) Run(ctx context.Context, inputs map[string]*layout.Tensor) (map[string]*layout.Tensor, error) {
	return nil, ErrCGORequired
}

func (s *Session) Close() error { return nil }
