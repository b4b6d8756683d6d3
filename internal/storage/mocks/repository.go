package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"pkg.mon.icu/oracle/internal/storage/entity"
)

// Repository is a mock implementation of storage.Repository
type Repository[R entity.Record] struct {
	mock.Mock
}

func (m *Repository[R]) Create(ctx context.Context, r R) (R, error) {
	args := m.Called(ctx, r)
	return record[R](args, 0), args.Error(1)
}

func (m *Repository[R]) Upsert(ctx context.Context, r R) (R, error) {
	args := m.Called(ctx, r)
	return record[R](args, 0), args.Error(1)
}

func (m *Repository[R]) Read(ctx context.Context, id entity.Snowflake) (R, bool, error) {
	args := m.Called(ctx, id)
	return record[R](args, 0), args.Bool(1), args.Error(2)
}

func (m *Repository[R]) Update(ctx context.Context, r R) (R, error) {
	args := m.Called(ctx, r)
	return record[R](args, 0), args.Error(1)
}

func (m *Repository[R]) Delete(ctx context.Context, id entity.Snowflake) (R, bool, error) {
	args := m.Called(ctx, id)
	return record[R](args, 0), args.Bool(1), args.Error(2)
}

func record[R entity.Record](args mock.Arguments, i int) R {
	if r, ok := args.Get(i).(R); ok {
		return r
	}
	var zero R
	return zero
}
