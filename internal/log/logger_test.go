package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
	assert.Error(t, ValidLevel("nonsense"))
	assert.NoError(t, ValidLevel("Info"))
}

func TestJSONLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", Component: ComponentGateway, Output: &buf})

	l.InfoContext(context.Background(), "record created", FieldUserID, "u1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "record created", rec["msg"])
	assert.Equal(t, ComponentGateway, rec[FieldComponent])
	assert.Equal(t, "u1", rec[FieldUserID])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Output: &buf})
	l.DebugContext(context.Background(), "hidden")
	assert.Zero(t, buf.Len())
}

func TestContextRoundTrip(t *testing.T) {
	l := Discard().WithComponent(ComponentWorker)
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
