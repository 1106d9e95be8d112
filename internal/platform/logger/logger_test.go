package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/phrazzld/clientflow/internal/config"
	"github.com/phrazzld/clientflow/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"Warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logger.ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewWritesJSONAtLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(&buf, slog.LevelWarn)

	l.Info("dropped")
	l.Warn("kept", slog.String("component", "test"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "test", entry["component"])
}

func TestSetup(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	l, err := logger.Setup(config.ServerConfig{LogLevel: "debug"})
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Same(t, l, slog.Default())

	_, err = logger.Setup(config.ServerConfig{LogLevel: "loud"})
	assert.Error(t, err)
}

func TestContextLogger(t *testing.T) {
	var fallbackBuf, ctxBuf bytes.Buffer
	fallback := logger.New(&fallbackBuf, slog.LevelDebug)
	ctxLogger := logger.New(&ctxBuf, slog.LevelDebug)

	t.Run("fallback when absent", func(t *testing.T) {
		assert.Same(t, fallback, logger.FromContextOrDefault(context.Background(), fallback))
	})

	t.Run("stored logger wins", func(t *testing.T) {
		ctx := logger.WithLogger(context.Background(), ctxLogger)
		assert.Same(t, ctxLogger, logger.FromContextOrDefault(ctx, fallback))
	})

	t.Run("request id is attached", func(t *testing.T) {
		fallbackBuf.Reset()
		ctx := logger.WithRequestID(context.Background(), "req-1")
		logger.FromContextOrDefault(ctx, fallback).Info("hello")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(fallbackBuf.Bytes(), &entry))
		assert.Equal(t, "req-1", entry["request_id"])
		assert.Equal(t, "req-1", logger.RequestID(ctx))
	})
}
