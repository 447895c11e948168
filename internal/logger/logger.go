package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

var levelVar = new(slog.LevelVar)

var current = newSwapHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: levelVar}))

// L is the global logger. It is never reassigned; SetOutput swaps the
// handler underneath it, so it is safe to use from any goroutine.
var L = slog.New(current)

// swapHandler forwards to a handler that can be replaced at runtime.
// Loggers derived with With or WithGroup keep the handler current at the
// time they were derived.
type swapHandler struct {
	h atomic.Pointer[slog.Handler]
}

func newSwapHandler(h slog.Handler) *swapHandler {
	s := &swapHandler{}
	s.h.Store(&h)
	return s
}

func (s *swapHandler) load() slog.Handler { return *s.h.Load() }

func (s *swapHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return s.load().Enabled(ctx, lvl)
}

func (s *swapHandler) Handle(ctx context.Context, r slog.Record) error {
	return s.load().Handle(ctx, r)
}

func (s *swapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return s.load().WithAttrs(attrs)
}

func (s *swapHandler) WithGroup(name string) slog.Handler {
	return s.load().WithGroup(name)
}

// SetLevel configures the global log level (debug, info, warn, error).
func SetLevel(lvl string) {
	switch strings.ToLower(lvl) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

// SetFormat swaps the global handler between "json" (default) and "text".
func SetFormat(format string) {
	SetOutput(os.Stdout, format)
}

// SetOutput points the global logger at w. Used by the chat REPL so logs do
// not interleave with spoken replies on stdout.
func SetOutput(w io.Writer, format string) {
	opts := &slog.HandlerOptions{Level: levelVar}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	current.h.Store(&h)
}

// WithRequestID stores a request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// FromContext returns L annotated with the request id carried by ctx.
func FromContext(ctx context.Context) *slog.Logger {
	if id := RequestID(ctx); id != "" {
		return L.With("request_id", id)
	}
	return L
}
