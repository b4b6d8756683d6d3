// Package reconcile routes entity records to the store according to a Policy and runs bulk
// reconciliations in which every record succeeds or fails on its own.
package reconcile

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"pkg.mon.icu/oracle/internal/storage"
	"pkg.mon.icu/oracle/internal/storage/entity"
)

// DefaultConcurrency matches the store's default pool size.
const DefaultConcurrency = storage.DefaultMaxConns

// DeadLetters receives every failed result so it can be reprocessed later.
type DeadLetters interface {
	PushDeadLetter(ctx context.Context, runID string, res Result) error
}

type Options struct {
	Policy      Policy
	Concurrency int
	Retry       RetryConfig
	// Limiter throttles bulk runs; nil disables throttling.
	Limiter     *rate.Limiter
	DeadLetters DeadLetters
}

// Result reports the reconciliation of one record.
type Result struct {
	Kind    entity.Kind
	ID      entity.Snowflake
	Outcome Outcome
	Err     error
}

func (r Result) Failed() bool {
	return r.Outcome == Failed
}

type Reconciler[R entity.Record] struct {
	repo   storage.Repository[R]
	kind   entity.Kind
	opts   Options
	logger *zap.SugaredLogger
}

func New[R entity.Record](repo storage.Repository[R], kind entity.Kind, opts Options, log *zap.Logger) *Reconciler[R] {
	if opts.Policy == "" {
		opts.Policy = PolicySync
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Reconciler[R]{repo: repo, kind: kind, opts: opts, logger: log.Sugar()}
}

func (rc *Reconciler[R]) Policy() Policy {
	return rc.opts.Policy
}

// Apply reconciles r with the configured policy.
func (rc *Reconciler[R]) Apply(ctx context.Context, r R) Result {
	switch rc.opts.Policy {
	case PolicyFetchOrCreate:
		return rc.FetchOrCreate(ctx, r)
	case PolicyUpdateOrCreate:
		return rc.UpdateOrCreate(ctx, r)
	default:
		return rc.Sync(ctx, r)
	}
}

// Sync upserts r unconditionally.
func (rc *Reconciler[R]) Sync(ctx context.Context, r R) Result {
	err := rc.retry(ctx, r.RecordID(), func() error {
		_, err := rc.repo.Upsert(ctx, r)
		return err
	})
	return rc.result(r.RecordID(), Upserted, err)
}

// FetchOrCreate creates r if no record with its id exists and otherwise leaves the stored
// record untouched. A create that loses a race with a concurrent delivery counts as unchanged.
func (rc *Reconciler[R]) FetchOrCreate(ctx context.Context, r R) Result {
	id := r.RecordID()

	var found bool
	err := rc.retry(ctx, id, func() (err error) {
		_, found, err = rc.repo.Read(ctx, id)
		return err
	})
	if err != nil {
		return rc.result(id, Failed, err)
	}
	if found {
		return rc.result(id, Unchanged, nil)
	}

	err = rc.retry(ctx, id, func() error {
		_, err := rc.repo.Create(ctx, r)
		return err
	})
	if errors.Is(err, storage.ErrConflict) {
		return rc.result(id, Unchanged, nil)
	}
	return rc.result(id, Created, err)
}

// UpdateOrCreate overwrites the stored record and creates it when the update finds none.
// A create that loses a race with a concurrent delivery falls back to a second update.
func (rc *Reconciler[R]) UpdateOrCreate(ctx context.Context, r R) Result {
	id := r.RecordID()
	update := func() error {
		_, err := rc.repo.Update(ctx, r)
		return err
	}

	err := rc.retry(ctx, id, update)
	if !errors.Is(err, storage.ErrNotFound) {
		return rc.result(id, Updated, err)
	}

	err = rc.retry(ctx, id, func() error {
		_, err := rc.repo.Create(ctx, r)
		return err
	})
	if errors.Is(err, storage.ErrConflict) {
		return rc.result(id, Updated, rc.retry(ctx, id, update))
	}
	return rc.result(id, Created, err)
}

// Delete removes the record with id. Deleting an absent record is not an error.
func (rc *Reconciler[R]) Delete(ctx context.Context, id entity.Snowflake) (bool, error) {
	var found bool
	err := rc.retry(ctx, id, func() (err error) {
		_, found, err = rc.repo.Delete(ctx, id)
		return err
	})
	return found, err
}

func (rc *Reconciler[R]) retry(ctx context.Context, id entity.Snowflake, fn func() error) error {
	return rc.opts.Retry.do(ctx, fn, func(attempt int, wait time.Duration, err error) {
		rc.logger.Debugf("Retrying %s %d in %s (attempt %d): %s.", rc.kind, id, wait, attempt, err)
	})
}

func (rc *Reconciler[R]) result(id entity.Snowflake, ok Outcome, err error) Result {
	if err != nil {
		return Result{Kind: rc.kind, ID: id, Outcome: Failed, Err: err}
	}
	return Result{Kind: rc.kind, ID: id, Outcome: ok}
}

// Set holds one reconciler per entity kind.
type Set struct {
	Users    *Reconciler[*entity.User]
	Guilds   *Reconciler[*entity.Guild]
	Channels *Reconciler[*entity.Channel]
	Messages *Reconciler[*entity.Message]
	Roles    *Reconciler[*entity.Role]
}

func NewSet(repos storage.Repositories, opts Options, log *zap.Logger) *Set {
	return &Set{
		Users:    New(repos.Users, entity.KindUser, opts, log),
		Guilds:   New(repos.Guilds, entity.KindGuild, opts, log),
		Channels: New(repos.Channels, entity.KindChannel, opts, log),
		Messages: New(repos.Messages, entity.KindMessage, opts, log),
		Roles:    New(repos.Roles, entity.KindRole, opts, log),
	}
}
