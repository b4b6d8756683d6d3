package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"pkg.mon.icu/oracle/internal/config/hook"
	"pkg.mon.icu/oracle/internal/reconcile"
	"pkg.mon.icu/oracle/internal/storage/entity"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Discord struct {
		Auth              string
		Guilds            []entity.Snowflake
		Channels          []entity.Snowflake
		IgnorePattern     *regexp.Regexp
		Intents           int
		CacheReadyTimeout time.Duration
		MaxMessages       int
	}

	Storage struct {
		Driver      string
		PostgresDSN string
		MaxConns    int32
		Timeout     time.Duration
	}

	Reconcile struct {
		Policy      reconcile.Policy
		Concurrency int
		Retries     int
		Backoff     time.Duration
		// Rate limits bulk writes per second; 0 disables the limit.
		Rate float64
	}

	Redis struct {
		DSN      string
		DedupTTL time.Duration
	}

	Logging struct {
		Level   zapcore.Level
		Dir     string
		MaxAge  time.Duration
		MaxSize int64
	}

	Api struct {
		Port uint16
	}
}

// Read loads .env, then config.yaml from the working directory if present, then the environment.
func Read() (*Config, error) {
	return ReadFile("")
}

// ReadFile is Read with an explicit configuration file, which must exist.
func ReadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("couldn't load .env: %w", err)
	}

	v := viper.New()
	configureDefaults(v)
	if err := configureEnv(v); err != nil {
		return nil, err
	}
	configureLocation(v, path)
	return readUnmarshalConfig(v, path != "")
}

func configureDefaults(v *viper.Viper) {
	v.SetDefault("discord.auth", "")
	v.SetDefault("discord.guilds", []string{})
	v.SetDefault("discord.channels", []string{})
	v.SetDefault("discord.ignorepattern", "")
	v.SetDefault("discord.intents", 0)
	v.SetDefault("discord.cachereadytimeout", 30*time.Second)
	v.SetDefault("discord.maxmessages", 100)

	v.SetDefault("storage.driver", DriverPostgres)
	v.SetDefault("storage.postgresdsn", "")
	v.SetDefault("storage.maxconns", 5)
	v.SetDefault("storage.timeout", 5*time.Second)

	v.SetDefault("reconcile.policy", string(reconcile.PolicySync))
	v.SetDefault("reconcile.concurrency", reconcile.DefaultConcurrency)
	v.SetDefault("reconcile.retries", 3)
	v.SetDefault("reconcile.backoff", 200*time.Millisecond)
	v.SetDefault("reconcile.rate", 0)

	v.SetDefault("redis.dsn", "")
	v.SetDefault("redis.dedupttl", time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dir", "logs")
	v.SetDefault("logging.maxage", 240*time.Hour)
	v.SetDefault("logging.maxsize", 100<<20)

	v.SetDefault("api.port", 0)
}

func configureEnv(v *viper.Viper) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("oracle")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.BindEnv("discord.auth", "ORACLE_DISCORD_AUTH", "BOT_TOKEN"); err != nil {
		return err
	}
	return v.BindEnv("storage.postgresdsn", "ORACLE_STORAGE_POSTGRESDSN", "DATABASE_URL")
}

func configureLocation(v *viper.Viper, path string) {
	if path != "" {
		v.SetConfigFile(path)
		return
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
}

func readUnmarshalConfig(v *viper.Viper, fileRequired bool) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if fileRequired || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("couldn't read configuration file: %w", err)
		}
	}
	c := &Config{}
	if err := v.Unmarshal(c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		hook.Snowflakes(), hook.Regexp(), hook.Level(), hook.Policy(),
	))); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the settings needed by the store and, when discord is true, by the gateway.
func (c *Config) Validate(discord bool) error {
	if discord && c.Discord.Auth == "" {
		return errors.New("discord.auth (or BOT_TOKEN) is required")
	}
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgresdsn (or DATABASE_URL) is required by the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Reconcile.Retries < 0 {
		return errors.New("reconcile.retries must not be negative")
	}
	return nil
}
