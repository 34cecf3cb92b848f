// Package testlog routes log output to the test log, so it shows up next to the failing test.
package testlog

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
)

// Testing is the part of testing.TB the loggers use.
type Testing interface {
	Logf(format string, args ...any)
	Helper()
	Cleanup(func())
}

var useColor = os.Getenv("OP_TESTLOG_DISABLE_COLOR") != "true"

// output is shared by a handler and everything derived from it with WithAttrs or WithGroup.
type output struct {
	t    Testing
	mu   sync.Mutex
	buf  bytes.Buffer
	done atomic.Bool
}

// handler formats records with the geth terminal format and writes each one with t.Logf.
type handler struct {
	out   *output
	inner slog.Handler
}

func newHandler(t Testing, level slog.Level) *handler {
	out := &output{t: t}
	// t.Logf panics once the test has finished, and background goroutines may still log
	t.Cleanup(func() { out.done.Store(true) })
	return &handler{out: out, inner: log.NewTerminalHandlerWithLevel(&out.buf, level, useColor)}
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	h.out.buf.Reset()
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}
	if h.out.done.Load() {
		return nil
	}
	h.out.t.Logf("%s", strings.TrimSuffix(h.out.buf.String(), "\n"))
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{out: h.out, inner: h.inner.WithAttrs(attrs)}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &handler{out: h.out, inner: h.inner.WithGroup(name)}
}

// Logger returns a logger that writes records of at least level to the test log of t.
func Logger(t Testing, level slog.Level) log.Logger {
	return LoggerWithHandlerMod(t, level)
}

// LoggerWithHandlerMod is Logger with each mod wrapped around the test handler, in order.
func LoggerWithHandlerMod(t Testing, level slog.Level, handlerMods ...func(slog.Handler) slog.Handler) log.Logger {
	var h slog.Handler = newHandler(t, level)
	for _, mod := range handlerMods {
		h = mod(h)
	}
	return log.NewLogger(h)
}
