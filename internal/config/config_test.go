package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultStoreUser, cfg.Store.User)
	assert.Equal(t, DefaultStoreSource, cfg.Store.Source)
	assert.Equal(t, DefaultStoreAllocMaxAttempts, cfg.Store.AllocMaxAttempts)
	assert.Equal(t, DefaultArchiveBucket, cfg.Archive.Bucket)
	assert.True(t, cfg.Archive.ConsolidateOnArchive)
	assert.False(t, cfg.Archive.CleanupLocal)
	assert.NotEmpty(t, cfg.Store.BasePath)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KIROKU_LOG_LEVEL", "debug")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestDurationOrDefault(t *testing.T) {
	d, err := DurationOrDefault("", DefaultStoreAllocBackoff)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, d)

	d, err = DurationOrDefault("250ms", DefaultStoreAllocBackoff)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = DurationOrDefault("nope", "")
	assert.Error(t, err)
}
