package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWith(viper.New(), writeConfig(t, "log:\n  log_level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.LogLevel)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.True(t, cfg.Storage.PrimaryEnabled)
	assert.Equal(t, 500, cfg.Remote.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, int64(10<<20), cfg.Import.MaxFileSize)
	assert.Equal(t, Defaults().Storage, cfg.Storage)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("FBA_STORAGE_DRIVER", "sqlite3")
	t.Setenv("FBA_ACCOUNT_ID", "seller@example.com")
	cfg, err := LoadWith(viper.New(), writeConfig(t, "storage:\n  dir: /tmp/fba\n"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/fba", cfg.Storage.Dir)
	assert.Equal(t, "seller@example.com", cfg.Account.ID)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"batch too large":     "remote:\n  batch_size: 501\n",
		"unknown driver":      "storage:\n  driver: postgres\n",
		"firestore no project": "remote:\n  backend: firestore\n",
		"unknown key":         "storage:\n  engine: sqlite\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadWith(viper.New(), writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
