package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigLayers(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "licensehub.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9090

[database]
url = "postgres://file/db"

[auth]
jwt_secret = "from-file-secret-value"
access_ttl = "5m"
`), 0o644))

	t.Setenv("LICENSEHUB_AUTH_JWT_SECRET", "from-env-secret-value")
	t.Setenv("LICENSEHUB_JOBS_SWEEP_INTERVAL", "30m")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://file/db", cfg.Database.URL)
	assert.Equal(t, "from-env-secret-value", cfg.Auth.JWTSecret)
	assert.Equal(t, 5*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 720*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, 30*time.Minute, cfg.Jobs.SweepInterval)
	assert.True(t, cfg.Jobs.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, Validate(cfg))
}

func TestDatabaseURLEnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "licensehub.toml")
	require.NoError(t, os.WriteFile(path, []byte("[database]\nurl = \"postgres://file/db\"\n"), 0o644))
	t.Setenv("DATABASE_URL", "postgres://env/db")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "auth.jwt_secret", envKey("LICENSEHUB_AUTH_JWT_SECRET"))
	assert.Equal(t, "server.port", envKey("LICENSEHUB_SERVER_PORT"))
	assert.Equal(t, "jobs.session_cleanup_interval", envKey("LICENSEHUB_JOBS_SESSION_CLEANUP_INTERVAL"))
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := &Config{}
	cfg.Log.Level = "loud"
	cfg.Jobs.Enabled = true

	err := Validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"server.port",
		"database.url is required",
		"auth.jwt_secret",
		"auth.access_ttl",
		"jobs.max_workers",
		"log.level",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestInitConfigRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licensehub.toml")
	require.NoError(t, InitConfig(path))

	t.Setenv("DATABASE_URL", "")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.NoError(t, Validate(cfg))

	err = InitConfig(path)
	assert.ErrorContains(t, err, "already exists")
}
