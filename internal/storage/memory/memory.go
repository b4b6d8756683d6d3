// Package memory keeps records in process memory with the same conflict, absence and
// referential rules as the Postgres schema. It backs the "memory" storage driver.
package memory

import (
	"context"
	"errors"
	"sync"

	"pkg.mon.icu/oracle/internal/storage"
	"pkg.mon.icu/oracle/internal/storage/entity"
)

type Store struct {
	mu     sync.Mutex
	tables map[entity.Kind]map[entity.Snowflake]entity.Record
}

func New() *Store {
	s := &Store{tables: make(map[entity.Kind]map[entity.Snowflake]entity.Record, len(entity.Kinds))}
	for _, k := range entity.Kinds {
		s.tables[k] = make(map[entity.Snowflake]entity.Record)
	}
	return s
}

func (s *Store) Repositories() storage.Repositories {
	return storage.Repositories{
		Users:    &repository[*entity.User]{s, entity.KindUser, func(u *entity.User) *entity.User { c := *u; return &c }},
		Guilds:   &repository[*entity.Guild]{s, entity.KindGuild, func(g *entity.Guild) *entity.Guild { c := *g; return &c }},
		Channels: &repository[*entity.Channel]{s, entity.KindChannel, func(ch *entity.Channel) *entity.Channel { c := *ch; return &c }},
		Messages: &repository[*entity.Message]{s, entity.KindMessage, func(m *entity.Message) *entity.Message { c := *m; return &c }},
		Roles:    &repository[*entity.Role]{s, entity.KindRole, func(r *entity.Role) *entity.Role { c := *r; return &c }},
	}
}

// Len returns the number of rows held for a kind.
func (s *Store) Len(k entity.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[k])
}

// missingReference returns the first reference of r that has no row. Callers hold mu.
func (s *Store) missingReference(r entity.Record) (entity.Reference, bool) {
	for _, ref := range r.References() {
		if _, ok := s.tables[ref.Kind][ref.ID]; !ok {
			return ref, true
		}
	}
	return entity.Reference{}, false
}

// referenced reports whether any row points at (k, id). Callers hold mu.
func (s *Store) referenced(k entity.Kind, id entity.Snowflake) bool {
	for _, rows := range s.tables {
		for _, row := range rows {
			for _, ref := range row.References() {
				if ref.Kind == k && ref.ID == id {
					return true
				}
			}
		}
	}
	return false
}

type repository[R entity.Record] struct {
	s     *Store
	kind  entity.Kind
	clone func(R) R
}

func (r *repository[R]) fail(id entity.Snowflake, op string, class error) error {
	return storage.NewError(r.kind, id, op, class, nil)
}

func (r *repository[R]) ctxErr(ctx context.Context, id entity.Snowflake, op string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return storage.NewError(r.kind, id, op, storage.ErrTimeout, err)
	}
	return storage.NewError(r.kind, id, op, context.Canceled, err)
}

func (r *repository[R]) write(ctx context.Context, rec R, op string, exists func(bool) error) (R, error) {
	var zero R
	id := rec.RecordID()
	if err := r.ctxErr(ctx, id, op); err != nil {
		return zero, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, ok := r.s.tables[r.kind][id]
	if err := exists(ok); err != nil {
		return zero, err
	}
	if _, missing := r.s.missingReference(rec); missing {
		return zero, r.fail(id, op, storage.ErrReferentialViolation)
	}
	r.s.tables[r.kind][id] = r.clone(rec)
	return r.clone(rec), nil
}

func (r *repository[R]) Create(ctx context.Context, rec R) (R, error) {
	return r.write(ctx, rec, storage.OpCreate, func(exists bool) error {
		if exists {
			return r.fail(rec.RecordID(), storage.OpCreate, storage.ErrConflict)
		}
		return nil
	})
}

func (r *repository[R]) Upsert(ctx context.Context, rec R) (R, error) {
	return r.write(ctx, rec, storage.OpUpsert, func(bool) error { return nil })
}

func (r *repository[R]) Update(ctx context.Context, rec R) (R, error) {
	return r.write(ctx, rec, storage.OpUpdate, func(exists bool) error {
		if !exists {
			return r.fail(rec.RecordID(), storage.OpUpdate, storage.ErrNotFound)
		}
		return nil
	})
}

func (r *repository[R]) Read(ctx context.Context, id entity.Snowflake) (R, bool, error) {
	var zero R
	if err := r.ctxErr(ctx, id, storage.OpRead); err != nil {
		return zero, false, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.tables[r.kind][id]
	if !ok {
		return zero, false, nil
	}
	return r.clone(row.(R)), true, nil
}

func (r *repository[R]) Delete(ctx context.Context, id entity.Snowflake) (R, bool, error) {
	var zero R
	if err := r.ctxErr(ctx, id, storage.OpDelete); err != nil {
		return zero, false, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.tables[r.kind][id]
	if !ok {
		return zero, false, nil
	}
	if r.s.referenced(r.kind, id) {
		return zero, false, r.fail(id, storage.OpDelete, storage.ErrReferentialViolation)
	}
	delete(r.s.tables[r.kind], id)
	return row.(R), true, nil
}
