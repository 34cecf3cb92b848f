package testlog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// CapturedRecord is a log record together with the attributes of the logger that emitted it.
type CapturedRecord struct {
	inherited []slog.Attr
	*slog.Record
}

// AttrValue returns the value of the named attribute, looking at the record first.
func (r *CapturedRecord) AttrValue(name string) (v any) {
	found := false
	r.Record.Attrs(func(a slog.Attr) bool {
		if a.Key == name {
			v, found = a.Value.Any(), true
			return false
		}
		return true
	})
	if found {
		return v
	}
	for _, a := range r.inherited {
		if a.Key == name {
			return a.Value.Any()
		}
	}
	return nil
}

type capturedLogs struct {
	mu   sync.Mutex
	logs []*CapturedRecord
}

// CapturingHandler captures every log record and forwards it to a delegate.
// It is safe for concurrent use.
type CapturingHandler struct {
	handler slog.Handler
	shared  *capturedLogs
	attrs   []slog.Attr
}

// CaptureLogger returns a test logger whose records can be inspected afterwards.
func CaptureLogger(t Testing, level slog.Level) (log.Logger, *CapturingHandler) {
	var ch *CapturingHandler
	lgr := LoggerWithHandlerMod(t, level, func(h slog.Handler) slog.Handler {
		ch = &CapturingHandler{handler: h, shared: new(capturedLogs)}
		return ch
	})
	return lgr, ch
}

func (c *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	c.shared.mu.Lock()
	c.shared.logs = append(c.shared.logs, &CapturedRecord{inherited: c.attrs, Record: &r})
	c.shared.mu.Unlock()
	return c.handler.Handle(ctx, r)
}

func (c *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CapturingHandler{
		handler: c.handler.WithAttrs(attrs),
		shared:  c.shared,
		attrs:   append(append([]slog.Attr{}, c.attrs...), attrs...),
	}
}

func (c *CapturingHandler) WithGroup(name string) slog.Handler {
	return &CapturingHandler{
		handler: c.handler.WithGroup(name),
		shared:  c.shared,
		attrs:   c.attrs,
	}
}

func (c *CapturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return c.handler.Enabled(ctx, level)
}

func (c *CapturingHandler) Clear() {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	c.shared.logs = nil
}

type LogFilter func(record *CapturedRecord) bool

func NewLevelFilter(level slog.Level) LogFilter {
	return func(r *CapturedRecord) bool {
		return r.Record.Level == level
	}
}

func NewMessageFilter(message string) LogFilter {
	return func(r *CapturedRecord) bool {
		return r.Record.Message == message
	}
}

func NewAttributesFilter(key, value string) LogFilter {
	return func(r *CapturedRecord) bool {
		v := r.AttrValue(key)
		return v != nil && slog.AnyValue(v).String() == value
	}
}

func (c *CapturingHandler) FindLog(filters ...LogFilter) *CapturedRecord {
	if logs := c.FindLogs(filters...); len(logs) > 0 {
		return logs[0]
	}
	return nil
}

func (c *CapturingHandler) FindLogs(filters ...LogFilter) []*CapturedRecord {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	var logs []*CapturedRecord
outer:
	for _, record := range c.shared.logs {
		for _, filter := range filters {
			if !filter(record) {
				continue outer
			}
		}
		logs = append(logs, record)
	}
	return logs
}

var _ slog.Handler = (*CapturingHandler)(nil)
