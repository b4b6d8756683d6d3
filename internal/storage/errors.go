package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"pkg.mon.icu/oracle/internal/storage/entity"
)

var (
	ErrConflict             = errors.New("record already exists")
	ErrNotFound             = errors.New("record not found")
	ErrReferentialViolation = errors.New("referenced record does not exist")
	ErrConnection           = errors.New("store connection failure")
	ErrTimeout              = errors.New("store operation timed out")
	ErrRejected             = errors.New("statement rejected by store")
)

const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlClassConnectionException = "08"
)

// Error is a classified store failure. errors.Is matches both the class sentinel and the
// wrapped driver error.
type Error struct {
	Kind  entity.Kind
	ID    entity.Snowflake
	Op    string
	Class error
	Err   error
}

func NewError(kind entity.Kind, id entity.Snowflake, op string, class, err error) *Error {
	return &Error{Kind: kind, ID: id, Op: op, Class: class, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("couldn't %s %s %d: %s", e.Op, e.Kind, e.ID, e.Class)
	}
	return fmt.Sprintf("couldn't %s %s %d: %s: %s", e.Op, e.Kind, e.ID, e.Class, e.Err)
}

func (e *Error) Is(target error) bool {
	return target == e.Class
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the failure is transient and the single operation may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout)
}

// classify maps a driver error to the store taxonomy.
func classify(kind entity.Kind, id entity.Snowflake, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return NewError(kind, id, op, classOf(err), err)
}

func classOf(err error) error {
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return ErrTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == sqlStateUniqueViolation:
			return ErrConflict
		case pgErr.Code == sqlStateForeignKeyViolation:
			return ErrReferentialViolation
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == sqlClassConnectionException:
			return ErrConnection
		default:
			return ErrRejected
		}
	}

	return ErrConnection
}
