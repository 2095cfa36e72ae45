package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearCredentials(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TELEGRAM_BOT_TOKEN", "OPENAI_API_KEY", "SUPABASE_URL", "SUPABASE_KEY",
		"LABSAGE_TELEGRAM_TOKEN", "LABSAGE_ANALYSIS_API_KEY", "LABSAGE_STORAGE_URL", "LABSAGE_STORAGE_KEY",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalYAML = `
telegram:
  token: "123456:ABC"
storage:
  url: "https://project.supabase.co"
  key: "service-key"
analysis:
  api_key: "sk-test"
`

func TestLoadConfigDefaults(t *testing.T) {
	clearCredentials(t)

	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "123456:ABC", cfg.Telegram.Token)
	assert.Equal(t, DefaultTelegramWorkers, cfg.Telegram.Workers)
	assert.Equal(t, DefaultLogLevel, cfg.Logger.Level)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 1, cfg.Database.MaxOpenConns)
	assert.Equal(t, DefaultStorageBucket, cfg.Storage.Bucket)
	assert.Equal(t, 60*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, int64(20*1024*1024), cfg.Limits.MaxFileBytes)
	assert.Equal(t, 10000, cfg.Limits.MaxTextChars)
	assert.Equal(t, DefaultAllowedMimeTypes, cfg.Storage.AllowedMimeTypes)
	require.Contains(t, cfg.Scheduler.Tasks, "sql_maintenance")
	assert.True(t, cfg.Scheduler.Tasks["sql_maintenance"].Enabled)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	clearCredentials(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "legacy-token")
	t.Setenv("OPENAI_API_KEY", "legacy-key")
	t.Setenv("SUPABASE_URL", "https://legacy.supabase.co")
	t.Setenv("SUPABASE_KEY", "legacy-storage-key")
	t.Setenv("LABSAGE_LOGGER_LEVEL", "debug")
	t.Setenv("LABSAGE_ANALYSIS_TIMEOUT", "45s")
	t.Setenv("LABSAGE_LIMITS_MAX_TEXT_CHARS", "500")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "legacy-token", cfg.Telegram.Token)
	assert.Equal(t, "legacy-key", cfg.Analysis.APIKey)
	assert.Equal(t, "https://legacy.supabase.co", cfg.Storage.URL)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 45*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, 500, cfg.Limits.MaxTextChars)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing telegram token",
			yaml: `
storage: {url: "https://p.supabase.co", key: "k"}
analysis: {api_key: "sk"}
`,
		},
		{
			name: "unknown provider",
			yaml: minimalYAML + `
  provider: "llama"
`,
		},
		{
			name: "sqlite with a pool",
			yaml: minimalYAML + `
database:
  max_open_conns: 4
`,
		},
		{
			name: "file limit above bucket cap",
			yaml: minimalYAML + `
limits:
  max_file_bytes: 52428800
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearCredentials(t)
			_, err := LoadConfig(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration), "error should wrap ErrConfiguration: %v", err)
		})
	}
}
