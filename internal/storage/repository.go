package storage

import (
	"context"

	"pkg.mon.icu/oracle/internal/storage/entity"
)

// Repository is the single persistence capability shared by every entity kind.
//
// Upsert is the primary write path and must be one atomic statement. Read and Delete
// report absence through their bool result rather than an error.
type Repository[R entity.Record] interface {
	// Create inserts a new row and fails with ErrConflict if the id exists.
	Create(ctx context.Context, r R) (R, error)
	// Upsert inserts the row or overwrites every mutable column of the existing one.
	Upsert(ctx context.Context, r R) (R, error)
	Read(ctx context.Context, id entity.Snowflake) (R, bool, error)
	// Update overwrites an existing row and fails with ErrNotFound if there is none.
	Update(ctx context.Context, r R) (R, error)
	// Delete removes the row and returns what it held.
	Delete(ctx context.Context, id entity.Snowflake) (R, bool, error)
}

// Repositories bundles one repository per entity kind.
type Repositories struct {
	Users    Repository[*entity.User]
	Guilds   Repository[*entity.Guild]
	Channels Repository[*entity.Channel]
	Messages Repository[*entity.Message]
	Roles    Repository[*entity.Role]
}

const (
	OpCreate = "create"
	OpUpsert = "upsert"
	OpRead   = "read"
	OpUpdate = "update"
	OpDelete = "delete"
)
