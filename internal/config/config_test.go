package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"pkg.mon.icu/oracle/internal/reconcile"
	"pkg.mon.icu/oracle/internal/storage/entity"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestRead_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	c, err := Read()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, c.Storage.Driver)
	assert.Equal(t, int32(5), c.Storage.MaxConns)
	assert.Equal(t, 5*time.Second, c.Storage.Timeout)
	assert.Equal(t, reconcile.PolicySync, c.Reconcile.Policy)
	assert.Equal(t, 3, c.Reconcile.Retries)
	assert.Equal(t, 200*time.Millisecond, c.Reconcile.Backoff)
	assert.Equal(t, 30*time.Second, c.Discord.CacheReadyTimeout)
	assert.Equal(t, zapcore.InfoLevel, c.Logging.Level)
	assert.Equal(t, 240*time.Hour, c.Logging.MaxAge)
	assert.Equal(t, int64(100<<20), c.Logging.MaxSize)
	assert.Nil(t, c.Discord.IgnorePattern)
	assert.Empty(t, c.Discord.Guilds)
}

func TestRead_Environment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BOT_TOKEN", "token")
	t.Setenv("DATABASE_URL", "postgres://localhost/oracle")
	t.Setenv("ORACLE_DISCORD_GUILDS", "100,101")
	t.Setenv("ORACLE_RECONCILE_POLICY", "fetch_or_create")
	t.Setenv("ORACLE_STORAGE_TIMEOUT", "2s")
	t.Setenv("ORACLE_LOGGING_LEVEL", "debug")

	c, err := Read()
	require.NoError(t, err)

	assert.Equal(t, "token", c.Discord.Auth)
	assert.Equal(t, "postgres://localhost/oracle", c.Storage.PostgresDSN)
	assert.Equal(t, []entity.Snowflake{100, 101}, c.Discord.Guilds)
	assert.Equal(t, reconcile.PolicyFetchOrCreate, c.Reconcile.Policy)
	assert.Equal(t, 2*time.Second, c.Storage.Timeout)
	assert.Equal(t, zapcore.DebugLevel, c.Logging.Level)
	assert.NoError(t, c.Validate(true))
}

func TestReadFile(t *testing.T) {
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "oracle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
discord:
  auth: file-token
  channels: ["200", "201"]
  ignorepattern: "^!"
storage:
  driver: memory
reconcile:
  concurrency: 2
  rate: 50
api:
  port: 8080
`), 0o600))

	c, err := ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "file-token", c.Discord.Auth)
	assert.Equal(t, []entity.Snowflake{200, 201}, c.Discord.Channels)
	assert.True(t, c.Discord.IgnorePattern.MatchString("!ping"))
	assert.Equal(t, DriverMemory, c.Storage.Driver)
	assert.Equal(t, 2, c.Reconcile.Concurrency)
	assert.Equal(t, 50.0, c.Reconcile.Rate)
	assert.Equal(t, uint16(8080), c.Api.Port)
	assert.NoError(t, c.Validate(true))

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRead_DotEnv(t *testing.T) {
	chdir(t, t.TempDir())
	require.NoError(t, os.WriteFile(".env", []byte("ORACLE_STORAGE_DRIVER=memory\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("ORACLE_STORAGE_DRIVER") })

	c, err := Read()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, c.Storage.Driver)
}

func TestValidate(t *testing.T) {
	c := &Config{}
	c.Storage.Driver = DriverMemory
	assert.Error(t, c.Validate(true), "auth is required to run")
	assert.NoError(t, c.Validate(false))

	c.Storage.Driver = DriverPostgres
	assert.Error(t, c.Validate(false), "dsn is required by postgres")

	c.Storage.Driver = "sqlite"
	assert.Error(t, c.Validate(false))
}
