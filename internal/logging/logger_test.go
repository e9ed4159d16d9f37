package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCategoryField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Derive("variant %s written", "doc")
	CacheDebug("miss for %s", "abc")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "variant doc written", entries[0].Message)
	assert.Equal(t, "derive", entries[0].ContextMap()["category"])
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, "cache", entries[1].ContextMap()["category"])
}

func TestSetLoggerResetsCategories(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Get(CategoryWatch) // cached against the nop logger
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Watch("change")
	assert.Equal(t, 1, logs.Len())
}

func TestWith(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Get(CategoryPreprocess).With("notebook", "flash_src.ipynb").Info("generated")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "flash_src.ipynb", logs.All()[0].ContextMap()["notebook"])
}

func TestTimerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	StartTimer(CategoryPreprocess, "pass").Stop()
	StartTimer(CategoryCLI, "jupyter-book build").StopWithInfo()
	Boot("config loaded")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Contains(t, entries[1].Message, "jupyter-book build completed in")
	assert.Equal(t, "boot", entries[2].ContextMap()["category"])
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLevelFromVerbosity(t *testing.T) {
	assert.Equal(t, "warn", LevelFromVerbosity(0))
	assert.Equal(t, "info", LevelFromVerbosity(1))
	assert.Equal(t, "debug", LevelFromVerbosity(3))
}

func TestInitializeToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nbprep.log")
	require.NoError(t, Initialize(Options{Level: "info", Format: "json", File: path}))
	t.Cleanup(func() { SetLogger(nil) })

	Boot("hello %d", 42)
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello 42"`)
	assert.Contains(t, string(data), `"category":"boot"`)
}
