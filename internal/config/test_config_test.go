package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "from-native-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Provider.Name)
	assert.Equal(t, "from-native-env", cfg.Provider.APIKey)
	assert.Equal(t, 40, cfg.Sampler.Cap)
	assert.Equal(t, 3, cfg.Analyzer.Concurrency)
	assert.Equal(t, 15*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Cache.MaxAge)
	assert.Equal(t, 256, cfg.Cache.MaxEntries)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUDIT_PROVIDER_NAME", "fake")
	t.Setenv("AUDIT_SAMPLER_CAP", "12")
	t.Setenv("AUDIT_CACHE_BACKEND", "none")
	t.Setenv("AUDIT_RUN_TIMEOUT", "2m")
	t.Setenv("AUDIT_CACHE_MAX_ENTRIES", "16")
	t.Setenv("AUDIT_CACHE_DISK_MAX_BYTES", "4096")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "fake", cfg.Provider.Name)
	assert.Equal(t, 12, cfg.Sampler.Cap)
	assert.Equal(t, "none", cfg.Cache.Backend)
	assert.Equal(t, 2*time.Minute, cfg.RunTimeout)
	assert.Equal(t, 16, cfg.Cache.MaxEntries)
	assert.Equal(t, int64(4096), cfg.Cache.DiskMaxBytes)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "audit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  name: groq\n  model: llama-3.3-70b-versatile\nanalyzer:\n  concurrency: 2\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "groq", cfg.Provider.Name)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.Provider.Model)
	assert.Equal(t, 2, cfg.Analyzer.Concurrency)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUDIT_PROVIDER_NAME", "openai")

	_, err := Load("")
	require.Error(t, err)
}

func TestS3CanUse(t *testing.T) {
	assert.False(t, S3Config{Endpoint: "minio:9000"}.CanUse())
	assert.True(t, S3Config{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "b", Bucket: "c"}.CanUse())
}
