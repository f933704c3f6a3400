package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"pathology-records-server/internal/config"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json format at debug level", func(t *testing.T) {
		t.Parallel()
		log, err := New(config.LogConfig{Level: "debug", Format: "json"})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if !log.Core().Enabled(zapcore.DebugLevel) {
			t.Error("expected debug level to be enabled")
		}
	})

	t.Run("console format at warn level", func(t *testing.T) {
		t.Parallel()
		log, err := New(config.LogConfig{Level: "warn", Format: "console"})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if log.Core().Enabled(zapcore.InfoLevel) {
			t.Error("info should be disabled at warn level")
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		t.Parallel()
		if _, err := New(config.LogConfig{Level: "loud", Format: "json"}); err == nil {
			t.Error("expected error for invalid level")
		}
	})
}
