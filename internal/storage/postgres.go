package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"pkg.mon.icu/oracle/internal/storage/entity"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type table[R entity.Record] struct {
	kind   entity.Kind
	values func(R) []interface{}
	scan   func(pgx.Row) (R, error)

	insertSQL string
	upsertSQL string
	selectSQL string
	updateSQL string
	deleteSQL string
}

// newTable derives every statement from the column list; columns[0] must be the primary key.
func newTable[R entity.Record](kind entity.Kind, name string, columns []string, values func(R) []interface{}, scan func(pgx.Row) (R, error)) *table[R] {
	cols := strings.Join(columns, ", ")
	params := make([]string, len(columns))
	for i := range columns {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	sets := make([]string, 0, len(columns)-1)
	excluded := make([]string, 0, len(columns)-1)
	for i, c := range columns[1:] {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+2))
		excluded = append(excluded, fmt.Sprintf("%s = excluded.%s", c, c))
	}

	insert := fmt.Sprintf(`insert into %s (%s) values (%s)`, name, cols, strings.Join(params, ", "))
	return &table[R]{
		kind:      kind,
		values:    values,
		scan:      scan,
		insertSQL: insert + ` returning ` + cols,
		upsertSQL: insert + fmt.Sprintf(` on conflict (%s) do update set %s returning %s`, columns[0], strings.Join(excluded, ", "), cols),
		selectSQL: fmt.Sprintf(`select %s from %s where %s = $1`, cols, name, columns[0]),
		updateSQL: fmt.Sprintf(`update %s set %s where %s = $1 returning %s`, name, strings.Join(sets, ", "), columns[0], cols),
		deleteSQL: fmt.Sprintf(`delete from %s where %s = $1 returning %s`, name, columns[0], cols),
	}
}

var (
	userTable = newTable(entity.KindUser, "users",
		[]string{"id", "name", "discriminator", "global_name", "avatar", "bot", "banner", "accent_colour"},
		func(u *entity.User) []interface{} {
			return []interface{}{u.ID, u.Name, u.Discriminator, u.GlobalName, u.Avatar, u.Bot, u.Banner, u.AccentColour}
		},
		func(row pgx.Row) (*entity.User, error) {
			u := &entity.User{}
			err := row.Scan(&u.ID, &u.Name, &u.Discriminator, &u.GlobalName, &u.Avatar, &u.Bot, &u.Banner, &u.AccentColour)
			return u, err
		},
	)

	guildTable = newTable(entity.KindGuild, "guilds",
		[]string{"id", "name", "icon", "icon_hash", "splash", "owner_id"},
		func(g *entity.Guild) []interface{} {
			return []interface{}{g.ID, g.Name, g.Icon, g.IconHash, g.Splash, g.OwnerID}
		},
		func(row pgx.Row) (*entity.Guild, error) {
			g := &entity.Guild{}
			err := row.Scan(&g.ID, &g.Name, &g.Icon, &g.IconHash, &g.Splash, &g.OwnerID)
			return g, err
		},
	)

	channelTable = newTable(entity.KindChannel, "channels",
		[]string{"id", "guild_id", "name", "position", "nsfw"},
		func(c *entity.Channel) []interface{} {
			return []interface{}{c.ID, c.GuildID, c.Name, c.Position, c.NSFW}
		},
		func(row pgx.Row) (*entity.Channel, error) {
			c := &entity.Channel{}
			err := row.Scan(&c.ID, &c.GuildID, &c.Name, &c.Position, &c.NSFW)
			return c, err
		},
	)

	messageTable = newTable(entity.KindMessage, "messages",
		[]string{"id", "channel_id", "author", "content", `"timestamp"`, "pinned", "guild_id"},
		func(m *entity.Message) []interface{} {
			return []interface{}{m.ID, m.ChannelID, m.Author, m.Content, m.Timestamp, m.Pinned, m.GuildID}
		},
		func(row pgx.Row) (*entity.Message, error) {
			m := &entity.Message{}
			err := row.Scan(&m.ID, &m.ChannelID, &m.Author, &m.Content, &m.Timestamp, &m.Pinned, &m.GuildID)
			return m, err
		},
	)

	roleTable = newTable(entity.KindRole, "roles",
		[]string{"id", "guild_id", "mentionable", "name", "position"},
		func(r *entity.Role) []interface{} {
			return []interface{}{r.ID, r.GuildID, r.Mentionable, r.Name, r.Position}
		},
		func(row pgx.Row) (*entity.Role, error) {
			r := &entity.Role{}
			err := row.Scan(&r.ID, &r.GuildID, &r.Mentionable, &r.Name, &r.Position)
			return r, err
		},
	)
)

// NewRepositories binds the Postgres repositories to a pool or a transaction.
func NewRepositories(q Querier) Repositories {
	return Repositories{
		Users:    &pgRepository[*entity.User]{q, userTable},
		Guilds:   &pgRepository[*entity.Guild]{q, guildTable},
		Channels: &pgRepository[*entity.Channel]{q, channelTable},
		Messages: &pgRepository[*entity.Message]{q, messageTable},
		Roles:    &pgRepository[*entity.Role]{q, roleTable},
	}
}

type pgRepository[R entity.Record] struct {
	q Querier
	t *table[R]
}

func (p *pgRepository[R]) Create(ctx context.Context, r R) (R, error) {
	out, err := p.t.scan(p.q.QueryRow(ctx, p.t.insertSQL, p.t.values(r)...))
	if err != nil {
		var zero R
		return zero, classify(p.t.kind, r.RecordID(), OpCreate, err)
	}
	return out, nil
}

func (p *pgRepository[R]) Upsert(ctx context.Context, r R) (R, error) {
	out, err := p.t.scan(p.q.QueryRow(ctx, p.t.upsertSQL, p.t.values(r)...))
	if err != nil {
		var zero R
		return zero, classify(p.t.kind, r.RecordID(), OpUpsert, err)
	}
	return out, nil
}

func (p *pgRepository[R]) Read(ctx context.Context, id entity.Snowflake) (R, bool, error) {
	var zero R
	out, err := p.t.scan(p.q.QueryRow(ctx, p.t.selectSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, false, nil
	} else if err != nil {
		return zero, false, classify(p.t.kind, id, OpRead, err)
	}
	return out, true, nil
}

func (p *pgRepository[R]) Update(ctx context.Context, r R) (R, error) {
	var zero R
	out, err := p.t.scan(p.q.QueryRow(ctx, p.t.updateSQL, p.t.values(r)...))
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, NewError(p.t.kind, r.RecordID(), OpUpdate, ErrNotFound, nil)
	} else if err != nil {
		return zero, classify(p.t.kind, r.RecordID(), OpUpdate, err)
	}
	return out, nil
}

func (p *pgRepository[R]) Delete(ctx context.Context, id entity.Snowflake) (R, bool, error) {
	var zero R
	out, err := p.t.scan(p.q.QueryRow(ctx, p.t.deleteSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, false, nil
	} else if err != nil {
		return zero, false, classify(p.t.kind, id, OpDelete, err)
	}
	return out, true, nil
}
