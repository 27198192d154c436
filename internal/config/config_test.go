package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "database_url: postgres://localhost/evidengine\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30000, cfg.MinRefreshIntervalMS)
	assert.Equal(t, 2000, cfg.InterMarketDelayMS)
	assert.Equal(t, 15, cfg.IngestBatch)
	assert.Equal(t, 12, cfg.ScoreBatch)
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	path := writeTempConfig(t, "database_url: postgres://localhost/evidengine\npost_source_token: from-file\n")
	t.Setenv("POST_SOURCE_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.PostSourceToken)
}

func TestValidate_RejectsMissingDatabaseURL(t *testing.T) {
	cfg := Config{LogLevel: "info"}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := Config{LogLevel: "verbose", DatabaseURL: "postgres://x"}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateForLiveIngest_RequiresPostSourceToken(t *testing.T) {
	cfg := Config{LogLevel: "info", DatabaseURL: "postgres://x"}
	err := cfg.ValidateForLiveIngest()
	assert.Error(t, err)

	cfg.PostSourceToken = "tok"
	assert.NoError(t, cfg.ValidateForLiveIngest())
}

func TestValidateForScoring_RequiresOracleConfig(t *testing.T) {
	cfg := Config{LogLevel: "info", DatabaseURL: "postgres://x"}
	err := cfg.ValidateForScoring()
	assert.Error(t, err)

	cfg.OracleEndpoint = "https://oracle.example.com"
	cfg.OracleAPIKey = "key"
	assert.NoError(t, cfg.ValidateForScoring())
}
