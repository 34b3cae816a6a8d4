package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadParsesConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 15s
openai:
  api_key: "sk-test"
  model: "gpt-4o-mini"
  timeout: 60s
chat:
  max_history_messages: 10
  max_title_length: 20
storage:
  type: "memory"
log:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, 10, cfg.Chat.MaxHistoryMessages)
	assert.Equal(t, 20, cfg.Chat.MaxTitleLength)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
openai:
  model: "gpt-4o-mini"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.Chat.MaxHistoryMessages)
	assert.Equal(t, 80, cfg.Chat.MaxTitleLength)
	assert.Equal(t, 100, cfg.Storage.CacheSize)
	// Title derivation falls back to the main model.
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.TitleModel)
}

func TestLoadFallsBackToEnvAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	path := writeConfig(t, `
server:
  port: 8080
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.OpenAI.APIKey)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
