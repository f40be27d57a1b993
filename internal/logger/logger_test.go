package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleNesting(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Config{Level: "debug", Format: "json"})

	log.Module("session").Module("worker").Info("form done", Int("regions", 20))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "session.worker", rec["module"])
	assert.Equal(t, "form done", rec["msg"])
	assert.InDelta(t, 20, rec["regions"], 0)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Config{Level: "warn"})

	log.Info("hidden")
	log.Debug("hidden too")
	log.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestWithAndContext(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Config{Format: "json"})

	ctx := WithSessionID(context.Background(), "abc-123")
	log.With(String("form", "f1.png")).WithContext(ctx).Error("load failed", Error(errors.New("boom")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "f1.png", rec["form"])
	assert.Equal(t, "abc-123", rec["session_id"])
	assert.Equal(t, "boom", rec["error"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"TRACE", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestDiscard(t *testing.T) {
	log := NewDiscard()
	log.Error("nothing")
	assert.NotNil(t, log.Module("x"))
}

func TestErrorFieldNil(t *testing.T) {
	f := Error(nil)
	assert.Equal(t, "error", f.Key)
	assert.Nil(t, f.Value)
	assert.True(t, strings.HasPrefix(Error(errors.New("x")).Value.(string), "x"))
}
