package diag

import (
	"context"
	"log/slog"
	"runtime"
)

// Attr keys the handler understands on log records.
const (
	// AttrKind overrides the entry kind derived from the record level,
	// letting hosts tag script, shader or plain message diagnostics.
	AttrKind = "gdrb.kind"
	// AttrRationale carries the descriptive explanation attached to an
	// engine error, stored separately from the error text itself.
	AttrRationale = "rationale"
)

// Handler is an slog.Handler that captures warn- and error-level records
// (and any record tagged with AttrKind) into a Ring, then forwards every
// record to the wrapped handler. Install it in front of the host's
// existing handler so game diagnostics become poll-able over the wire
// without changing how they are logged.
type Handler struct {
	ring  *Ring
	next  slog.Handler
	attrs []slog.Attr
}

// NewHandler wraps next with ring capture. next may be nil for hosts that
// only want the ring.
func NewHandler(ring *Ring, next slog.Handler) *Handler {
	return &Handler{ring: ring, next: next}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.next != nil {
		return h.next.Enabled(ctx, level)
	}
	return level >= slog.LevelInfo
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	kind := ""
	switch {
	case rec.Level >= slog.LevelError:
		kind = KindError
	case rec.Level >= slog.LevelWarn:
		kind = KindWarning
	}
	rationale := ""
	scan := func(a slog.Attr) bool {
		switch a.Key {
		case AttrKind:
			kind = a.Value.String()
		case AttrRationale:
			rationale = a.Value.String()
		}
		return true
	}
	for _, a := range h.attrs {
		scan(a)
	}
	rec.Attrs(scan)

	if kind != "" {
		e := Entry{Kind: kind, Code: rec.Message, Rationale: rationale}
		if rec.PC != 0 {
			frame, _ := runtime.CallersFrames([]uintptr{rec.PC}).Next()
			e.File = frame.File
			e.Line = frame.Line
			e.Function = frame.Function
		}
		h.ring.Append(e)
	}
	if h.next != nil {
		return h.next.Handle(ctx, rec)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	return &clone
}
