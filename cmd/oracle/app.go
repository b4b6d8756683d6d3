package main

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"pkg.mon.icu/oracle/internal/api"
	"pkg.mon.icu/oracle/internal/config"
	"pkg.mon.icu/oracle/internal/discord"
	"pkg.mon.icu/oracle/internal/logging"
	"pkg.mon.icu/oracle/internal/reconcile"
	"pkg.mon.icu/oracle/internal/redis"
	"pkg.mon.icu/oracle/internal/storage"
	"pkg.mon.icu/oracle/internal/storage/memory"
)

type app struct {
	ctx    context.Context
	cancel context.CancelFunc

	logConf  zap.Config
	logger   *zap.Logger
	closeLog func() error

	config *config.Config

	storage *storage.Storage
	redis   *redis.Client
	discord *discord.Discord
	api     *api.API
}

// loadConfig reads and validates the configuration and switches the log level to the configured one.
func loadConfig(lcf zap.Config, log *zap.Logger, path string, gateway bool) (*config.Config, error) {
	log.Debug("Loading configuration.")
	c, err := config.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't load configuration: %w", err)
	}
	if err := c.Validate(gateway); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Debug("Successfully loaded configuration (also switching log level.)")
	lcf.Level.SetLevel(c.Logging.Level)
	return c, nil
}

func newApp(ctx context.Context, lcf zap.Config, log *zap.Logger, configPath string) (*app, error) {
	ctx, cancel := context.WithCancel(ctx)
	a := &app{ctx: ctx, cancel: cancel, logConf: lcf, logger: log}
	var err error

	if a.config, err = loadConfig(lcf, log, configPath, true); err != nil {
		return nil, err
	}

	log.Debug("Starting file logging.")
	a.logger, a.closeLog, err = logging.Start(logging.Config{
		Level:   lcf.Level,
		Dir:     a.config.Logging.Dir,
		MaxAge:  a.config.Logging.MaxAge,
		MaxSize: a.config.Logging.MaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't start logging: %w", err)
	}

	a.logger.Debug("Initializing Storage struct.")
	a.storage = storage.NewStorage(ctx, a.logger)

	return a, nil
}

// connectStorage opens the configured store. An unreachable PostgreSQL is fatal: nothing is
// ingested without durable backing.
func (a *app) connectStorage() (storage.Repositories, error) {
	if a.config.Storage.Driver == config.DriverMemory {
		a.logger.Warn("Using in-memory storage, records will not survive a restart.")
		return memory.New().Repositories(), nil
	}

	a.logger.Debug("Connecting to PostgreSQL storage.")
	if err := a.storage.Connect(a.config.Storage.PostgresDSN, a.config.Storage.MaxConns); err != nil {
		return storage.Repositories{}, fmt.Errorf("couldn't connect to storage: %w", err)
	}
	a.logger.Debug("Successfully connected to PostgreSQL storage.")

	if err := a.storage.Migrate(a.ctx); err != nil {
		return storage.Repositories{}, fmt.Errorf("couldn't migrate storage: %w", err)
	}
	return a.storage.Repositories(), nil
}

func (a *app) reconcileOptions() reconcile.Options {
	rc := a.config.Reconcile
	retry := reconcile.DefaultRetryConfig()
	retry.MaxRetries = rc.Retries
	if rc.Backoff > 0 {
		retry.InitialBackoff = rc.Backoff
	}

	opts := reconcile.Options{Policy: rc.Policy, Concurrency: rc.Concurrency, Retry: retry}
	if rc.Rate > 0 {
		burst := rc.Concurrency
		if burst <= 0 {
			burst = reconcile.DefaultConcurrency
		}
		opts.Limiter = rate.NewLimiter(rate.Limit(rc.Rate), burst)
	}
	if a.redis != nil {
		opts.DeadLetters = a.redis
	}
	return opts
}

func (a *app) Run() error {
	defer func() {
		if err := a.closeLog(); err != nil {
			a.logger.Sugar().Errorf("Couldn't close log file: %s.", err)
		}
	}()

	repos, err := a.connectStorage()
	if err != nil {
		return err
	}
	defer func() {
		a.logger.Debug("Closing storage.")
		if err := a.storage.Close(); err != nil {
			a.logger.Sugar().Errorf("Couldn't close storage: %s.", err)
		}
	}()
	repos = storage.Instrument(repos, a.logger, a.config.Storage.Timeout)

	if a.config.Redis.DSN != "" {
		a.logger.Debug("Connecting to Redis.")
		if a.redis, err = redis.New(a.config.Redis.DSN, a.config.Redis.DedupTTL); err != nil {
			return fmt.Errorf("couldn't connect to redis: %w", err)
		}
		defer a.redis.Close()
		a.logger.Debug("Successfully connected to Redis.")
	}

	set := reconcile.NewSet(repos, a.reconcileOptions(), a.logger)

	a.logger.Debug("Initializing Discord struct.")
	dc := a.config.Discord
	a.discord, err = discord.NewDiscord(a.ctx, a.logger, dc.Auth,
		discord.NewConfig(dc.Guilds, dc.Channels, dc.IgnorePattern, discordgo.Intent(dc.Intents), dc.CacheReadyTimeout, dc.MaxMessages), set)
	if err != nil {
		return fmt.Errorf("couldn't initialize Discord struct: %w", err)
	}
	if a.redis != nil {
		a.discord.WithDeduplicator(a.redis).WithDeadLetters(a.redis)
	}

	if a.config.Api.Port != 0 {
		a.api = api.NewAPI(a.ctx, a.logger.Sugar(), repos, api.NewConfig(a.config.Api.Port))
		if a.redis != nil {
			a.api.WithDeadLetters(a.redis)
		}
		a.api.Listen()
		defer func() {
			if err := a.api.Close(); err != nil {
				a.logger.Sugar().Errorf("Couldn't close API: %s.", err)
			}
		}()
	}

	a.logger.Debug("Connecting to Discord API gateway.")
	if err := a.discord.Connect(); err != nil {
		return fmt.Errorf("couldn't connect to Discord: %w", err)
	}
	defer func() {
		a.logger.Debug("Closing connection with Discord API gateway.")
		if err := a.discord.Close(); err != nil {
			a.logger.Sugar().Errorf("Couldn't close Discord: %s.", err)
		}
		a.logger.Debug("Closed connection with Discord API gateway.")
	}()
	a.logger.Debug("Successfully connected to Discord API gateway.")

	a.logger.Info("Launch complete. Send SIGINT to gracefully terminate.")
	<-a.ctx.Done()
	a.logger.Info("SIGINT received, terminating.")

	return a.ctx.Err()
}

// migrate applies the schema to the configured PostgreSQL database.
func migrate(ctx context.Context, lcf zap.Config, log *zap.Logger, configPath string) error {
	c, err := loadConfig(lcf, log, configPath, false)
	if err != nil {
		return err
	}
	if c.Storage.Driver != config.DriverPostgres {
		return fmt.Errorf("nothing to migrate for storage driver %q", c.Storage.Driver)
	}

	s := storage.NewStorage(ctx, log)
	if err := s.Connect(c.Storage.PostgresDSN, c.Storage.MaxConns); err != nil {
		return fmt.Errorf("couldn't connect to storage: %w", err)
	}
	defer s.Close()

	if err := s.Migrate(ctx); err != nil {
		return err
	}
	log.Info("Schema is up to date.")
	return nil
}
