package storage

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"pkg.mon.icu/oracle/internal/storage/entity"
)

// Instrument wraps every repository so that each operation runs under timeout and reports
// its outcome: mutations at info, failures at error.
func Instrument(repos Repositories, log *zap.Logger, timeout time.Duration) Repositories {
	return Repositories{
		Users:    instrument(repos.Users, entity.KindUser, log, timeout),
		Guilds:   instrument(repos.Guilds, entity.KindGuild, log, timeout),
		Channels: instrument(repos.Channels, entity.KindChannel, log, timeout),
		Messages: instrument(repos.Messages, entity.KindMessage, log, timeout),
		Roles:    instrument(repos.Roles, entity.KindRole, log, timeout),
	}
}

func instrument[R entity.Record](next Repository[R], kind entity.Kind, log *zap.Logger, timeout time.Duration) Repository[R] {
	return &instrumented[R]{next: next, kind: kind, logger: log.With(zap.String("kind", string(kind))), timeout: timeout}
}

type instrumented[R entity.Record] struct {
	next    Repository[R]
	kind    entity.Kind
	logger  *zap.Logger
	timeout time.Duration
}

func (i *instrumented[R]) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, i.timeout)
}

// normalize turns a deadline hit by our own timeout into ErrTimeout for stores that return
// the bare context error.
func (i *instrumented[R]) normalize(id entity.Snowflake, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return NewError(i.kind, id, op, classOf(err), err)
}

func (i *instrumented[R]) report(op string, id entity.Snowflake, found bool, err error) {
	fields := []zap.Field{zap.Int64("id", id), zap.String("op", op)}
	switch {
	case err == nil && !found:
		i.logger.Debug("No record to "+op+".", fields...)
	case err == nil && op == OpRead:
		i.logger.Debug("Read record.", fields...)
	case err == nil:
		i.logger.Info("Stored record.", fields...)
	case errors.Is(err, context.Canceled):
		i.logger.Debug("Store operation canceled.", fields...)
	default:
		i.logger.Error("Store operation failed.", append(fields, zap.Error(err))...)
	}
}

func (i *instrumented[R]) Create(ctx context.Context, r R) (R, error) {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()
	out, err := i.next.Create(ctx, r)
	err = i.normalize(r.RecordID(), OpCreate, err)
	i.report(OpCreate, r.RecordID(), true, err)
	return out, err
}

func (i *instrumented[R]) Upsert(ctx context.Context, r R) (R, error) {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()
	out, err := i.next.Upsert(ctx, r)
	err = i.normalize(r.RecordID(), OpUpsert, err)
	i.report(OpUpsert, r.RecordID(), true, err)
	return out, err
}

func (i *instrumented[R]) Read(ctx context.Context, id entity.Snowflake) (R, bool, error) {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()
	out, ok, err := i.next.Read(ctx, id)
	err = i.normalize(id, OpRead, err)
	i.report(OpRead, id, ok, err)
	return out, ok, err
}

func (i *instrumented[R]) Update(ctx context.Context, r R) (R, error) {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()
	out, err := i.next.Update(ctx, r)
	err = i.normalize(r.RecordID(), OpUpdate, err)
	i.report(OpUpdate, r.RecordID(), true, err)
	return out, err
}

func (i *instrumented[R]) Delete(ctx context.Context, id entity.Snowflake) (R, bool, error) {
	ctx, cancel := i.withTimeout(ctx)
	defer cancel()
	out, ok, err := i.next.Delete(ctx, id)
	err = i.normalize(id, OpDelete, err)
	i.report(OpDelete, id, ok, err)
	return out, ok, err
}
