package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	colourReset  = "\033[0m"
	colourRed    = "\033[31m"
	colourYellow = "\033[33m"
	colourBlue   = "\033[34m"
	colourGray   = "\033[90m"
	colourCyan   = "\033[36m"
)

// prettyHandler writes "15:04:05 LEVEL msg k=v" lines with ANSI colours.
type prettyHandler struct {
	level slog.Leveler
	mu    *sync.Mutex
	w     io.Writer
	attrs []slog.Attr
}

func newPrettyHandler(w io.Writer, level slog.Leveler) *prettyHandler {
	return &prettyHandler{level: level, mu: &sync.Mutex{}, w: w}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b bytes.Buffer
	b.WriteString(colourGray)
	b.WriteString(r.Time.Format(time.TimeOnly))
	b.WriteString(colourReset + " ")
	fmt.Fprintf(&b, "%s%-5s%s %s", levelColour(r.Level), r.Level, colourReset, r.Message)

	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		b.WriteString(colourCyan)
		for _, a := range h.attrs {
			writeAttr(&b, a)
		}
		r.Attrs(func(a slog.Attr) bool {
			writeAttr(&b, a)
			return true
		})
		b.WriteString(colourReset)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(b.Bytes())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

// WithGroup is a no-op: records are flat.
func (h *prettyHandler) WithGroup(string) slog.Handler { return h }

func levelColour(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colourRed
	case level >= slog.LevelWarn:
		return colourYellow
	case level >= slog.LevelInfo:
		return colourBlue
	}
	return colourGray
}

func writeAttr(b *bytes.Buffer, a slog.Attr) {
	v := a.Value.Resolve()
	b.WriteByte(' ')
	b.WriteString(a.Key)
	b.WriteByte('=')
	s := v.String()
	if strings.ContainsAny(s, " \t\n\"") {
		s = strconv.Quote(s)
	}
	b.WriteString(s)
}
