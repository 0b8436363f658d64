package cmd

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kfreiman/feishuingest/internal/config"
)

func TestCreateLogger(t *testing.T) {
	tests := []struct {
		level   string
		enabled slog.Level
		muted   slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
		{"bogus", slog.LevelInfo, slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := createLogger(cmdConfig{Format: "json", Level: tt.level})

			assert.True(t, logger.Enabled(context.Background(), tt.enabled))
			assert.False(t, logger.Enabled(context.Background(), tt.muted))
		})
	}
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	assert.True(t, names["serve"])
	assert.True(t, names["ingest"])
}

func TestProxyHosts(t *testing.T) {
	cfg := config.Config{BaseURL: "https://open.larksuite.com/open-apis", ProxyHosts: []string{"cdn.internal"}}
	assert.Equal(t, []string{"cdn.internal", "open.larksuite.com"}, proxyHosts(cfg))

	assert.Empty(t, proxyHosts(config.Config{BaseURL: "::"}))
}
