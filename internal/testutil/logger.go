// Package testutil provides logging helpers for tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// NewTestLogger returns a logger that writes to t.Log().
// Logs only appear on test failure or when running with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Record is one captured JSON log line.
type Record map[string]any

// Level returns the record level ("INFO", "WARN", ...).
func (r Record) Level() string {
	s, _ := r[slog.LevelKey].(string)
	return s
}

// Message returns the record message.
func (r Record) Message() string {
	s, _ := r[slog.MessageKey].(string)
	return s
}

// LogCapture collects records emitted through the logger it returns.
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewCaptureLogger returns a debug-level JSON logger and the capture that
// receives its output.
func NewCaptureLogger() (*slog.Logger, *LogCapture) {
	c := &LogCapture{}
	return slog.New(slog.NewJSONHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug})), c
}

func (c *LogCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// Records decodes everything captured so far.
func (c *LogCapture) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Record
	dec := json.NewDecoder(bytes.NewReader(c.buf.Bytes()))
	for dec.More() {
		var r Record
		if err := dec.Decode(&r); err != nil {
			break
		}
		out = append(out, r)
	}
	return out
}

// Find returns the captured records at level whose message is msg.
func (c *LogCapture) Find(level slog.Level, msg string) []Record {
	var out []Record
	for _, r := range c.Records() {
		if r.Level() == level.String() && r.Message() == msg {
			out = append(out, r)
		}
	}
	return out
}
