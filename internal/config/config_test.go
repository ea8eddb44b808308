package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvOnlyDefaults(t *testing.T) {
	cfg, err := Load("", true)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, 30*time.Second, cfg.Tawhiri.Timeout)
	assert.Equal(t, "standard_profile", cfg.Prediction.Profile)
	assert.Equal(t, "single", cfg.Prediction.PredType)
	assert.Equal(t, 5, cfg.Queue.MaxRetries)
	assert.Equal(t, 30*time.Minute, cfg.Queue.SweepTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BMCC_SPOT_FEED_ID", "0abcDEF")
	t.Setenv("BMCC_TAWHIRI_TIMEOUT", "5s")

	cfg, err := Load("", true)
	require.NoError(t, err)

	assert.Equal(t, "0abcDEF", cfg.Spot.FeedID)
	assert.Equal(t, 5*time.Second, cfg.Tawhiri.Timeout)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("server:\n  http_addr: \":9090\"\ndb:\n  driver: memory\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "memory", cfg.DB.Driver)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), false)
	require.Error(t, err)
}
