package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"confidential-revote/encryption"
	"confidential-revote/storage"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	fee, err := cfg.Fee()
	require.NoError(t, err)
	require.Equal(t, "5000000000000000", fee.Dec())

	typ, err := cfg.BallotType()
	require.NoError(t, err)
	require.Equal(t, encryption.Uint8, typ)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revote.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen = "127.0.0.1:9000"
backend = "json"
data_dir = "/tmp/revote"
ballot_width = 16
max_clock_skew = "30s"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Listen)
	require.Equal(t, storage.BackendJSON, cfg.Backend)
	require.Equal(t, 30*time.Second, cfg.MaxClockSkew.Duration)
	require.Equal(t, 2048, cfg.KeyBits)

	typ, err := cfg.BallotType()
	require.NoError(t, err)
	require.Equal(t, encryption.Uint16, typ)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"backend":    func(c *Config) { c.Backend = "redis" },
		"fee":        func(c *Config) { c.MinimumFee = "-1" },
		"width":      func(c *Config) { c.BallotWidth = 12 },
		"key":        func(c *Config) { c.KeyBits = 128 },
		"skew":       func(c *Config) { c.MaxClockSkew = Duration{} },
		"data dir":   func(c *Config) { c.DataDir = "" },
		"difficulty": func(c *Config) { c.Difficulty = 9 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_BadFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`backend = "nowhere"`), 0644))
	_, err = Load(path)
	require.Error(t, err)
}
