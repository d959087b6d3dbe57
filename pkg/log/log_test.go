package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	testCases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for name, expected := range testCases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, expected, ParseLevel(name))
		})
	}
}

func TestSetupWriter(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer

	logger := SetupWriter(&buf, "warn")
	logger.Info("hidden")
	WithModule("transition_service").Warn("shown", "item_id", "item-1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "module=transition_service")
	assert.Contains(t, buf.String(), "item_id=item-1")
}
