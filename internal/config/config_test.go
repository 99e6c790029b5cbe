package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Config{
		DB:          "roomstate.db",
		LogLevel:    "info",
		Format:      "text",
		RoomVersion: "6",
	}, cfg)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("ROOMSTATE_DB", "/tmp/rooms.db")
	t.Setenv("ROOMSTATE_LOG_LEVEL", "debug")
	t.Setenv("ROOMSTATE_FORMAT", "json")
	t.Setenv("ROOMSTATE_ROOM_VERSION", "11")
	t.Setenv("ROOMSTATE_RULES", "rules.cue")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/rooms.db", cfg.DB)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "11", cfg.RoomVersion)
	assert.Equal(t, "rules.cue", cfg.Rules)
}

func TestLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, err := Config{LogLevel: tt.in}.Level()
			require.NoError(t, err)
			assert.Equal(t, tt.want, level)
		})
	}

	_, err := Config{LogLevel: "loud"}.Level()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log level "loud"`)
}

func TestNewLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Config{LogLevel: "warn"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "room", "!a:b")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
	assert.Contains(t, buf.String(), "room=!a:b")
}

func TestRegistry(t *testing.T) {
	reg, err := Config{}.Registry()
	require.NoError(t, err)
	_, err = reg.Lookup("org.example.closed")
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "rules.cue")
	require.NoError(t, os.WriteFile(path, []byte(`versions: "org.example.closed": base: "11"`), 0644))

	reg, err = Config{Rules: path}.Registry()
	require.NoError(t, err)
	rules, err := reg.Lookup("org.example.closed")
	require.NoError(t, err)
	assert.Equal(t, "org.example.closed", rules.ID)

	_, err = Config{Rules: filepath.Join(t.TempDir(), "missing.cue")}.Registry()
	require.Error(t, err)
}
