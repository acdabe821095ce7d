package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	session "github.com/goliatone/go-auth-session"
	"github.com/goliatone/go-auth-session/config"
	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8572", cfg.Backend.URL)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, config.StorageFile, cfg.Storage.Kind)
	assert.NotEmpty(t, cfg.Storage.Path)
	assert.Equal(t, session.DefaultMaxRetries, cfg.Session.MaxRetries)
	assert.Equal(t, session.DefaultRetryDelay, cfg.Session.RetryDelay)
	assert.Equal(t, session.ProfileGateFromProfile, cfg.Session.GatePolicy())
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeFile(t, "authctl.yaml", `
backend:
  url: https://auth.example.com
storage:
  kind: redis
  redis_addr: cache:6379
session:
  max_retries: 5
  retry_delay: 250ms
  profile_gate: fail_closed
`)

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://auth.example.com", cfg.Backend.URL)
	assert.Equal(t, config.StorageRedis, cfg.Storage.Kind)
	assert.Equal(t, "cache:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, 5, cfg.Session.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.RetryDelay)
	assert.Equal(t, session.ProfileGateFailClosed, cfg.Session.GatePolicy())
	assert.Equal(t, session.DefaultLogoutTimeout, cfg.Session.LogoutTimeout, "untouched keys keep defaults")
}

func TestLoadJSONFile(t *testing.T) {
	path := writeFile(t, "authctl.json", `{"storage": {"kind": "sql", "dsn": "file::memory:"}}`)

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, config.StorageSQL, cfg.Storage.Kind)
	assert.Equal(t, "file::memory:", cfg.Storage.DSN)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, "authctl.yml", "backend:\n  url: https://file.example.com\nsession:\n  max_retries: 4\n")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--config", path,
		"--backend.url", "https://flag.example.com",
		"--storage.kind", "memory",
		"-v",
	}))

	cfg, err := config.Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, "https://flag.example.com", cfg.Backend.URL)
	assert.Equal(t, config.StorageMemory, cfg.Storage.Kind)
	assert.Equal(t, 4, cfg.Session.MaxRetries, "unset flags do not clobber file values")
	assert.True(t, cfg.Log.Verbose)
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	path := writeFile(t, "authctl.toml", "x = 1")

	_, err := config.Load(path, nil)
	require.Error(t, err)

	var rich *goerrors.Error
	require.ErrorAs(t, err, &rich)
	assert.Equal(t, goerrors.CategoryBadInput, rich.Category)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*config.Config) {}},
		{name: "relative url", mutate: func(c *config.Config) { c.Backend.URL = "/api" }, wantErr: true},
		{name: "unknown storage", mutate: func(c *config.Config) { c.Storage.Kind = "etcd" }, wantErr: true},
		{name: "redis without addr", mutate: func(c *config.Config) {
			c.Storage.Kind = config.StorageRedis
			c.Storage.RedisAddr = ""
		}, wantErr: true},
		{name: "file without path", mutate: func(c *config.Config) { c.Storage.Path = "" }, wantErr: true},
		{name: "memory ignores path", mutate: func(c *config.Config) {
			c.Storage.Kind = config.StorageMemory
			c.Storage.Path = ""
		}},
		{name: "zero retries", mutate: func(c *config.Config) { c.Session.MaxRetries = 0 }, wantErr: true},
		{name: "gate alias", mutate: func(c *config.Config) { c.Session.ProfileGate = "open" }},
		{name: "bad gate", mutate: func(c *config.Config) { c.Session.ProfileGate = "sometimes" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("", nil)
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
