package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 1000, cfg.Limits.MaxBatchSize)
	assert.Equal(t, 1_000_000, cfg.Limits.MaxTextLength)
	assert.Equal(t, []string{"parser", "ner"}, cfg.Models.DisabledComponents)
	assert.Equal(t, RuntimeNative, cfg.Runtime.Kind)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, filepath.Join("models", ".cache"), cfg.CacheDir())
	assert.Equal(t, filepath.Join("models", ".cache", "packages"), cfg.PackagesDir())
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lemmaserve.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  read_timeout: 10s
limits:
  max_batch_size: 50
models:
  disabled_components: []
runtime:
  kind: spacy
`), 0o644))

	t.Setenv("LEMMASERVE_SERVER_PORT", "9100")
	t.Setenv("LEMMASERVE_LIMITS_MAX_TEXT_LENGTH", "2048")
	t.Setenv("LEMMASERVE_MODELS_CACHE_DIR", "/var/cache/lemmaserve")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "env overrides file")
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 50, cfg.Limits.MaxBatchSize)
	assert.Equal(t, 2048, cfg.Limits.MaxTextLength)
	assert.Empty(t, cfg.Models.DisabledComponents)
	assert.Equal(t, RuntimeSpacy, cfg.Runtime.Kind)
	assert.Equal(t, "/var/cache/lemmaserve", cfg.CacheDir())
}

func TestLoad_EnvList(t *testing.T) {
	t.Setenv("LEMMASERVE_MODELS_DISABLED_COMPONENTS", "parser,ner,textcat")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"parser", "ner", "textcat"}, cfg.Models.DisabledComponents)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"LEMMASERVE_SERVER_PORT":                 "0",
		"LEMMASERVE_LIMITS_MAX_BATCH_SIZE":       "0",
		"LEMMASERVE_LIMITS_MAX_TEXT_LENGTH":      "-1",
		"LEMMASERVE_RUNTIME_KIND":                "tensorflow",
		"LEMMASERVE_LIMITS_PIPELINE_CONCURRENCY": "-2",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load("")
			assert.ErrorContains(t, err, "config validation failed")
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestSettings_ModelsConfigPath(t *testing.T) {
	dir := t.TempDir()
	cfg := &Settings{Models: ModelsConfig{
		Dir:               dir,
		ConfigFile:        "config.json",
		DefaultConfigFile: "config.default.json",
	}}

	assert.Equal(t, "", cfg.ModelsConfigPath())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.default.json"), []byte(`{}`), 0o644))
	assert.Equal(t, filepath.Join(dir, "config.default.json"), cfg.ModelsConfigPath())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{}`), 0o644))
	assert.Equal(t, filepath.Join(dir, "config.json"), cfg.ModelsConfigPath())
}
