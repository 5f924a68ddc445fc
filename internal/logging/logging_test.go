package logging

import (
	"context"
	"log/slog"
	"testing"

	"gotest.tools/v3/assert"
)

// countingHandler is a minimal slog.Handler that only counts Handle calls,
// used to verify multiHandler's fan-out behavior.
type countingHandler struct {
	handled int
}

func (c *countingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (c *countingHandler) Handle(context.Context, slog.Record) error {
	c.handled++
	return nil
}
func (c *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c *countingHandler) WithGroup(string) slog.Handler      { return c }

func TestSetupLoggerWithoutSeqURLReturnsConsoleOnly(t *testing.T) {
	logger, closeFn := SetupLogger("", false)
	assert.Assert(t, logger != nil)
	_, isConsole := logger.Handler().(*slog.TextHandler)
	assert.Assert(t, isConsole)

	closeFn()
}

func TestSetupLoggerDebugEnablesDebugLevel(t *testing.T) {
	logger, closeFn := SetupLogger("", true)
	defer closeFn()

	assert.Assert(t, logger.Handler() != nil)
	assert.Assert(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestMultiHandlerForwardsToEveryHandler(t *testing.T) {
	a := &countingHandler{}
	b := &countingHandler{}
	m := &multiHandler{handlers: []slog.Handler{a, b}}

	logger := slog.New(m)
	logger.Info("hello")

	assert.Equal(t, a.handled, 1)
	assert.Equal(t, b.handled, 1)
}

func TestMultiHandlerWithAttrsPropagatesToAllHandlers(t *testing.T) {
	a := &countingHandler{}
	b := &countingHandler{}
	m := &multiHandler{handlers: []slog.Handler{a, b}}

	withAttrs := m.WithAttrs([]slog.Attr{slog.String("k", "v")})
	logger := slog.New(withAttrs)
	logger.Info("hello")

	assert.Equal(t, a.handled, 1)
	assert.Equal(t, b.handled, 1)
}
