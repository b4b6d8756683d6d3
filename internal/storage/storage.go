package storage

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// DefaultMaxConns is the pool size shared by every reconciliation.
const DefaultMaxConns = 5

type Storage struct {
	ctx    context.Context
	logger *zap.Logger
	pool   *pgxpool.Pool
}

func NewStorage(ctx context.Context, l *zap.Logger) *Storage {
	return &Storage{ctx: ctx, logger: l}
}

// Connect opens the pool and pings it; an unreachable store is reported as an error so the
// caller can refuse to start ingesting.
func (s *Storage) Connect(dsn string, maxConns int32) error {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("couldn't parse PostgreSQL DSN: %w", err)
	}
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	cfg.MaxConns = maxConns

	if s.pool, err = pgxpool.ConnectConfig(s.ctx, cfg); err != nil {
		return err
	}
	if err := s.pool.Ping(s.ctx); err != nil {
		s.pool.Close()
		s.pool = nil
		return err
	}

	s.logger.Sugar().Debugf("Opened PostgreSQL pool with %d max connections.", maxConns)
	return nil
}

func (s *Storage) Begin(ctx context.Context, fn func(pgx.Tx) error) error {
	return s.pool.BeginFunc(ctx, fn)
}

// Migrate applies the embedded schema in one transaction.
func (s *Storage) Migrate(ctx context.Context) error {
	return s.Begin(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("couldn't apply schema: %w", err)
		}
		return nil
	})
}

// Repositories returns repositories that share the pool; each call runs as its own statement.
func (s *Storage) Repositories() Repositories {
	return NewRepositories(s.pool)
}

func (s *Storage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
