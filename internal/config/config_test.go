package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"NBPREP_NOTEBOOKS_DIR", "NBPREP_CACHE_DB", "NBPREP_LOG_LEVEL", "NBPREP_JOBS"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "notebooks", cfg.Notebooks.Dir)
	assert.Equal(t, "_toc.yml", cfg.Notebooks.TOC)
	assert.Equal(t, 1, cfg.Preprocess.Jobs)
	assert.False(t, cfg.Preprocess.RewriteLinks)
	assert.True(t, cfg.Cache.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sub", DefaultFile)

	cfg := DefaultConfig()
	cfg.Notebooks.Dir = "examples"
	cfg.Preprocess.RewriteLinks = true
	cfg.Preprocess.Jobs = 4
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("preprocess:\n  jobs: 3\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Preprocess.Jobs)
	assert.Equal(t, "_toc.yml", cfg.Notebooks.TOC)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("notebooks: [unterminated"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("all overrides", func(t *testing.T) {
		t.Setenv("NBPREP_NOTEBOOKS_DIR", "nb")
		t.Setenv("NBPREP_CACHE_DB", "/tmp/c.db")
		t.Setenv("NBPREP_LOG_LEVEL", "debug")
		t.Setenv("NBPREP_JOBS", "8")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "nb", cfg.Notebooks.Dir)
		assert.Equal(t, "/tmp/c.db", cfg.Cache.Path)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 8, cfg.Preprocess.Jobs)
	})

	t.Run("non-numeric jobs ignored", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("NBPREP_JOBS", "many")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, 1, cfg.Preprocess.Jobs)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty dir", func(c *Config) { c.Notebooks.Dir = "" }},
		{"empty toc", func(c *Config) { c.Notebooks.TOC = "" }},
		{"zero jobs", func(c *Config) { c.Preprocess.Jobs = 0 }},
		{"cache without path", func(c *Config) { c.Cache.Path = "" }},
		{"bad debounce", func(c *Config) { c.Watch.Debounce = "soon" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetDebounce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Watch.Debounce = "2s"
	assert.Equal(t, 2*time.Second, cfg.GetDebounce())
	cfg.Watch.Debounce = "bogus"
	assert.Equal(t, 500*time.Millisecond, cfg.GetDebounce())
}

func TestCachePath(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("/repo/notebooks", ".nbprep", "exec_cache.db"), cfg.CachePath("/repo/notebooks"))
	cfg.Cache.Path = "/var/cache/nb.db"
	assert.Equal(t, "/var/cache/nb.db", cfg.CachePath("/repo/notebooks"))
}
