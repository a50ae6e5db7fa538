// Package server exposes flow estimation over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/stevecastle/raftflow/flow"
	"github.com/stevecastle/raftflow/flowrt"
	"github.com/stevecastle/raftflow/layout"
	"github.com/stevecastle/raftflow/ledger"
	"github.com/stevecastle/raftflow/logger"
	"github.com/stevecastle/raftflow/rasterio"
)

// ModelInfo describes the loaded graph. *flowrt.Session satisfies it.
type ModelInfo interface {
	Inputs() []flowrt.IOInfo
	Outputs() []flowrt.IOInfo
}

// RunStore persists run history. *ledger.Ledger satisfies it.
type RunStore interface {
	Record(ctx context.Context, r ledger.Run) (ledger.Run, error)
	Recent(ctx context.Context, limit int) ([]ledger.Run, error)
}

// Server holds the handlers' dependencies. Runs is optional.
type Server struct {
	Estimator *flow.Estimator
	Model     ModelInfo
	ModelPath string
	Runs      RunStore
	Log       logger.Logger
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type modelResponse struct {
	Path    string          `json:"path"`
	Inputs  []flowrt.IOInfo `json:"inputs"`
	Outputs []flowrt.IOInfo `json:"outputs"`
}

// Register mounts the API routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/flow", s.handleFlow)
	e.GET("/v1/model", s.handleModel)
	e.GET("/v1/runs", s.handleRuns)
}

func (s *Server) log() logger.Logger {
	if s.Log == nil {
		return logger.Discard()
	}
	return s.Log
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": errorBody{Message: msg, Type: errType},
	})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func (s *Server) handleFlow(c *echo.Context) error {
	if s.Estimator == nil {
		return writeError(c, http.StatusServiceUnavailable, "server_error", "no model loaded")
	}
	start := time.Now()

	frames := make([]*layout.ImageBuffer, 2)
	names := make([]string, 2)
	for i, field := range []string{"image1", "image2"} {
		fh, err := c.FormFile(field)
		if err != nil {
			return writeBadRequest(c, fmt.Sprintf("missing form file %q", field))
		}
		f, err := fh.Open()
		if err != nil {
			return writeBadRequest(c, fmt.Sprintf("%s: %v", field, err))
		}
		m, err := rasterio.Decode(f, s.Estimator.Decode)
		f.Close()
		if err != nil {
			return writeBadRequest(c, fmt.Sprintf("%s: %v", field, err))
		}
		frames[i], names[i] = m, fh.Filename
	}

	ctx := c.Request().Context()
	k, err := s.Estimator.Estimate(ctx, frames[0], frames[1])
	if err != nil {
		s.record(ctx, ledger.Run{
			Image1: names[0], Image2: names[1], Status: ledger.StatusFailed, Error: err.Error(),
			ElapsedMS: time.Since(start).Milliseconds(),
		})
		if errors.Is(err, layout.ErrShapeMismatch) {
			return writeBadRequest(c, err.Error())
		}
		s.log().Error("flow estimation failed", "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}

	var buf bytes.Buffer
	if err := rasterio.EncodeKitti(&buf, k); err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	s.record(ctx, ledger.Run{
		Image1: names[0], Image2: names[1], Height: k.Height, Width: k.Width,
		ElapsedMS: time.Since(start).Milliseconds(),
	})
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

func (s *Server) record(ctx context.Context, r ledger.Run) {
	if s.Runs == nil {
		return
	}
	r.Model = s.ModelPath
	if _, err := s.Runs.Record(ctx, r); err != nil {
		s.log().Warn("failed to record run", "error", err)
	}
}

func (s *Server) handleModel(c *echo.Context) error {
	if s.Model == nil {
		return writeError(c, http.StatusServiceUnavailable, "server_error", "no model loaded")
	}
	return c.JSON(http.StatusOK, modelResponse{
		Path:    s.ModelPath,
		Inputs:  s.Model.Inputs(),
		Outputs: s.Model.Outputs(),
	})
}

func (s *Server) handleRuns(c *echo.Context) error {
	if s.Runs == nil {
		return writeError(c, http.StatusNotFound, "not_found_error", "run history is disabled")
	}
	limit := ledger.DefaultLimit
	if q := c.QueryParam("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			return writeBadRequest(c, fmt.Sprintf("invalid limit %q", q))
		}
		limit = n
	}
	runs, err := s.Runs.Recent(c.Request().Context(), limit)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	if runs == nil {
		runs = []ledger.Run{}
	}
	return c.JSON(http.StatusOK, map[string]any{"data": runs})
}
