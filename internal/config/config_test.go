package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Realtime.PresenceGrace)
	assert.Equal(t, 3*time.Second, cfg.Realtime.TypingTimeout)
	assert.Equal(t, 5*time.Second, cfg.Realtime.TypingStaleAfter)
	assert.Equal(t, 24*time.Hour, cfg.Realtime.DeliveryRetention)
	assert.Equal(t, 10, cfg.Realtime.ConnectionRule.Limit)
	assert.Equal(t, 5*time.Minute, cfg.Realtime.ConnectionRule.BlockDuration)
	assert.Equal(t, 60, cfg.Realtime.MessageRule.Limit)
	assert.Equal(t, "/api/realtime", cfg.Server.BasePath)
}

func TestLoad_YamlThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
server:
  port: 9000
  log_level: info
realtime:
  presence_grace: 45s
  message_rule:
    name: message
    limit: 5
    window: 10s
    block_duration: 20s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("TYPING_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Server.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.Realtime.PresenceGrace)
	assert.Equal(t, 2*time.Second, cfg.Realtime.TypingTimeout)
	assert.Equal(t, 5, cfg.Realtime.MessageRule.Limit)
	assert.Equal(t, 10*time.Second, cfg.Realtime.MessageRule.Window)
	// untouched defaults survive a partial file
	assert.Equal(t, 10, cfg.Realtime.ConnectionRule.Limit)
}

func TestLoad_InvalidYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Defaults().Realtime, cfg.Realtime)
	assert.Equal(t, "/api/realtime", cfg.Server.BasePath)
}
