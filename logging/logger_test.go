package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func jsonLogger(buf *bytes.Buffer, level LogLevel) *SimLogger {
	return NewLogger(&LoggerConfig{Level: level, Format: "json", Output: buf})
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{"debug": LogLevelDebug, "": LogLevelInfo, "WARNING": LogLevelWarn, "error": LogLevelError} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestSimLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, LogLevelWarn)
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Equal(t, "shown", gjson.Get(buf.String(), "msg").String())
}

func TestScoped(t *testing.T) {
	var buf bytes.Buffer
	l := Scoped(jsonLogger(&buf, LogLevelDebug), "lock", "abc")
	l.Info("waiting", "mask", "PAUSED")

	line := buf.String()
	assert.Equal(t, "lock", gjson.Get(line, "component").String())
	assert.Equal(t, "abc", gjson.Get(line, "instance_id").String())
	assert.Equal(t, "PAUSED", gjson.Get(line, "mask").String())

	buf.Reset()
	sa := Scoped(NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil))), "transport", "")
	sa.Info("sent")
	assert.Equal(t, "transport", gjson.Get(buf.String(), "component").String())
	assert.False(t, gjson.Get(buf.String(), "instance_id").Exists())

	assert.Equal(t, NoOpLogger{}, Scoped(nil, "x", "y"))
}

func TestRequest(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, LogLevelDebug)

	Request(l, "status", 5*time.Millisecond, nil)
	assert.Equal(t, "Engine request completed", gjson.Get(buf.String(), "msg").String())
	assert.Equal(t, "DEBUG", gjson.Get(buf.String(), "level").String())

	buf.Reset()
	Request(l, "reset", time.Second, errors.New("connection refused"))
	assert.Equal(t, "ERROR", gjson.Get(buf.String(), "level").String())
	assert.Equal(t, "reset", gjson.Get(buf.String(), "operation").String())
	assert.Equal(t, "connection refused", gjson.Get(buf.String(), "error").String())
}

func TestLock(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	Lock(l, "PAUSED|FINISHED", "RUNNING", 5*time.Second, errors.New("timed out"))
	assert.Equal(t, "Lock failed", gjson.Get(buf.String(), "msg").String())
	assert.Equal(t, "RUNNING", gjson.Get(buf.String(), "last_state").String())
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	base := jsonLogger(&buf, LogLevelInfo)
	l := base.WithContext("model", "desk")
	l.Info("a")
	assert.Equal(t, "desk", gjson.Get(buf.String(), "model").String())

	buf.Reset()
	base.Info("b")
	assert.False(t, gjson.Get(buf.String(), "model").Exists())
}
