package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSlogImplementsLogger(t *testing.T) {

	var buf bytes.Buffer
	var log Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	log.Info("frame evicted", "frameId", 3)

	assert.Contains(t, buf.String(), "frame evicted")
	assert.Contains(t, buf.String(), "frameId=3")
}

func TestZapAdapter(t *testing.T) {

	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZap(zap.New(core))

	log.Debug("debug message", "pageId", 1)
	log.Info("info message", "pageId", 2)
	log.Warn("warn message")
	log.Error("error message", "error", "boom")

	entries := logs.All()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, int64(1), entries[0].ContextMap()["pageId"])
	assert.Equal(t, "info message", entries[1].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
}

func TestLogrusAdapter(t *testing.T) {

	var buf bytes.Buffer

	base := logrus.New()
	base.SetOutput(&buf)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	log := NewLogrus(base)
	log.Info("capacity increased", "pages", 32, "dangling")

	out := buf.String()
	assert.Contains(t, out, "capacity increased")
	assert.Contains(t, out, "pages=32")
	assert.NotContains(t, out, "dangling")
}

func TestArgsToFields(t *testing.T) {

	tests := []struct {
		name     string
		args     []any
		expected logrus.Fields
	}{
		{name: "empty", args: nil, expected: logrus.Fields{}},
		{name: "pairs", args: []any{"a", 1, "b", "two"}, expected: logrus.Fields{"a": 1, "b": "two"}},
		{name: "odd length", args: []any{"a", 1, "b"}, expected: logrus.Fields{"a": 1}},
		{name: "non string key", args: []any{7, 1, "b", 2}, expected: logrus.Fields{"b": 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, argsToFields(tt.args))
		})
	}
}

func TestDiscard(t *testing.T) {

	assert.NotPanics(t, func() {
		Discard.Debug("x")
		Discard.Info("x", "k", "v")
		Discard.Warn("x")
		Discard.Error("x")
	})
}
