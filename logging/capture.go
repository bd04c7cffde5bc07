package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Capture records log output for assertions in tests.
type Capture struct {
	mu      sync.Mutex
	records []slog.Record
	prev    *slog.Logger
	level   slog.Level
}

// CaptureForTest installs a capturing default logger at debug level. Call
// Restore when done.
func CaptureForTest() *Capture {
	c := &Capture{prev: slog.Default(), level: level.Level()}
	slog.SetDefault(slog.New(&captureHandler{c: c}))
	level.Set(slog.LevelDebug)
	return c
}

// Restore puts back the logger that was active before CaptureForTest.
func (c *Capture) Restore() {
	slog.SetDefault(c.prev)
	level.Set(c.level)
}

// Has reports whether a record at l contains msg in its message.
func (c *Capture) Has(l slog.Level, msg string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if r.Level == l && strings.Contains(r.Message, msg) {
			return true
		}
	}
	return false
}

// Count returns the number of records at l.
func (c *Capture) Count(l slog.Level) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.records {
		if r.Level == l {
			n++
		}
	}
	return n
}

type captureHandler struct{ c *Capture }

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	h.c.records = append(h.c.records, r.Clone())
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }
