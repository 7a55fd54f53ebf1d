package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/point-ledger/ledger"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORS.AllowedOrigins)
	assert.Equal(t, "./data/app.db", cfg.DB.Path)
	assert.Equal(t, ledger.KeyDaily, cfg.Ledger.Policy())
	assert.Equal(t, "1234", cfg.Auth.AdminPIN)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Backup.Enabled)
	assert.Equal(t, time.Hour, cfg.Backup.Interval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_FileAndEnv(t *testing.T) {
	// GIVEN: A file selecting the shift policy and a few env overrides
	path := writeConfig(t, `
server:
  port: 3000
  cors:
    allowed_origins: ["http://localhost:5173"]
ledger:
  key_policy: shift
auth:
  view_password: view
  token_ttl: 30m
backup:
  interval: 15m
log:
  format: console
`)
	t.Setenv("POINTS_DB_PATH", "/tmp/points.db")
	t.Setenv("PORT", "9090")
	t.Setenv("ADMIN_PIN", "9876")

	// WHEN: Loaded
	cfg, err := Load(path)

	// THEN: Env beats file, file beats defaults
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORS.AllowedOrigins)
	assert.Equal(t, "/tmp/points.db", cfg.DB.Path)
	assert.Equal(t, ledger.KeyPerShift, cfg.Ledger.Policy())
	assert.Equal(t, "9876", cfg.Auth.AdminPIN)
	assert.Equal(t, "view", cfg.Auth.ViewPassword)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 15*time.Minute, cfg.Backup.Interval)
	assert.Equal(t, "console", cfg.Log.Logging().Format)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"key policy": "ledger:\n  key_policy: weekly\n",
		"log level":  "log:\n  level: loud\n",
		"short ttl":  "auth:\n  token_ttl: 30s\n",
		"port":       "server:\n  port: 70000\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
