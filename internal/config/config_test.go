package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()
	require.Equal(t, ":8443", cfg.Server.ListenAddr)
	require.Equal(t, "journal", cfg.Storage.Backend)
	require.Equal(t, float64(30), cfg.Recovery.RateLimitPerMinute)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AEGIX_LISTEN_ADDR", ":9000")
	t.Setenv("AEGIX_STORAGE_BACKEND", "postgres")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.ListenAddr)
	require.Equal(t, "postgres", cfg.Storage.Backend)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	require.NoError(t, err)
}

func TestLoadYAMLFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("server:\n  listen_addr: \":1234\"\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := Load(f.Name())
	require.NoError(t, err)
	require.Equal(t, ":1234", cfg.Server.ListenAddr)
}
