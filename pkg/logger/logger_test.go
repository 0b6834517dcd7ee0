package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{" WARN ", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"info", LevelInfo},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Format: FormatJSON}).
		With(Component("engine")).
		WithRequestID("req-1")

	log.Debug("hidden")
	log.Info("xp awarded", UserID("u1"), XP(10), Source("task_completion"), Err(errors.New("boom")))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "xp awarded", entry["msg"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "req-1", entry[RequestIDKey])
	assert.Equal(t, "u1", entry["user_id"])
	assert.Equal(t, float64(10), entry["xp"])
	assert.Equal(t, "task_completion", entry["source"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Output: &buf, Format: FormatText}).Warn("lock busy", Streak(4))

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "streak=4")
}

func TestContextRoundTrip(t *testing.T) {
	log := Nop()
	ctx := WithContext(context.Background(), log)

	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
