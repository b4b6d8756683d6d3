package discord

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/discordgo"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pkg.mon.icu/oracle/internal/reconcile"
	oracleredis "pkg.mon.icu/oracle/internal/redis"
	"pkg.mon.icu/oracle/internal/storage"
	"pkg.mon.icu/oracle/internal/storage/entity"
	"pkg.mon.icu/oracle/internal/storage/memory"
)

type dedupMock struct {
	mock.Mock
}

func (m *dedupMock) Seen(ctx context.Context, r entity.Record) (bool, error) {
	args := m.Called(ctx, r)
	return args.Bool(0), args.Error(1)
}

func (m *dedupMock) Forget(ctx context.Context, r entity.Record) error {
	return m.Called(ctx, r).Error(0)
}

type deadLetters struct {
	mu      sync.Mutex
	runIDs  []string
	results []reconcile.Result
}

func (d *deadLetters) PushDeadLetter(_ context.Context, runID string, res reconcile.Result) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runIDs = append(d.runIDs, runID)
	d.results = append(d.results, res)
	return nil
}

func newTestDiscord(t *testing.T, cfg *Config) (*Discord, *memory.Store) {
	t.Helper()
	store := memory.New()
	set := reconcile.NewSet(store.Repositories(), reconcile.Options{}, zap.NewNop())
	d := newDiscord(context.Background(), zap.NewNop(), &discordgo.Session{State: discordgo.NewState()}, cfg, set)
	d.fetchUser = nil
	t.Cleanup(d.ready.stop)
	return d, store
}

var testTime = time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC)

func testGuild() *discordgo.Guild {
	return &discordgo.Guild{
		ID:      "100",
		Name:    "guild",
		OwnerID: "42",
		Members: []*discordgo.Member{
			{GuildID: "100", User: &discordgo.User{ID: "42", Username: "alice"}},
			{GuildID: "100", User: &discordgo.User{ID: "43", Username: "bob"}},
		},
		Roles: []*discordgo.Role{{ID: "500", Name: "mod", Position: 1}},
		Channels: []*discordgo.Channel{{
			ID:      "200",
			GuildID: "100",
			Name:    "general",
			Type:    discordgo.ChannelTypeGuildText,
			Messages: []*discordgo.Message{
				{ID: "300", ChannelID: "200", Content: "hi", Timestamp: testTime, Author: &discordgo.User{ID: "44", Username: "carol"}},
				{ID: "301", ChannelID: "200", Content: "hello", Timestamp: testTime, Author: &discordgo.User{ID: "42", Username: "alice"}},
			},
		}},
	}
}

func TestCollect(t *testing.T) {
	d, _ := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	g := testGuild()

	snap := d.collect([]*discordgo.Guild{g, {ID: "101", Unavailable: true}})

	require.Len(t, snap.Users, 3)
	assert.Equal(t, []string{"42", "43", "44"}, []string{snap.Users[0].ID, snap.Users[1].ID, snap.Users[2].ID})
	require.Len(t, snap.Guilds, 1)
	assert.Nil(t, snap.Guilds[0].Members)
	require.Len(t, snap.Roles, 1)
	assert.Equal(t, "100", snap.Roles[0].GuildID)
	require.Len(t, snap.Channels, 1)
	assert.Nil(t, snap.Channels[0].Messages)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "100", snap.Messages[0].GuildID)
	assert.Empty(t, g.Channels[0].Messages[0].GuildID, "state must not be modified")
}

func TestCollect_Filters(t *testing.T) {
	d, _ := newTestDiscord(t, NewConfig(nil, []entity.Snowflake{201}, regexp.MustCompile(`^!`), 0, 0, 0))
	g := testGuild()
	g.Channels = append(g.Channels, &discordgo.Channel{
		ID: "201", GuildID: "100", Name: "allowed",
		Messages: []*discordgo.Message{{ID: "302", ChannelID: "201", Content: "!command", Author: &discordgo.User{ID: "45"}}},
	})

	snap := d.collect([]*discordgo.Guild{g})

	require.Len(t, snap.Channels, 1)
	assert.Equal(t, "201", snap.Channels[0].ID)
	assert.Empty(t, snap.Messages)
	assert.Len(t, snap.Users, 2)

	d, _ = newTestDiscord(t, NewConfig([]entity.Snowflake{999}, nil, nil, 0, 0, 0))
	assert.Empty(t, d.collect([]*discordgo.Guild{testGuild()}).Guilds)
}

func TestCacheReadySynchronizesState(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, time.Minute, 0))
	g := testGuild()

	d.onReady(d.session, &discordgo.Ready{User: &discordgo.User{ID: "1", Username: "oracle"}, Guilds: []*discordgo.Guild{{ID: "100", Unavailable: true}}})
	for _, k := range entity.Kinds {
		assert.Zero(t, store.Len(k), "ready must not write %s", k)
	}

	require.NoError(t, d.session.State.GuildAdd(g))
	d.onGuildCreate(d.session, &discordgo.GuildCreate{Guild: g})

	assert.Equal(t, 3, store.Len(entity.KindUser))
	assert.Equal(t, 1, store.Len(entity.KindGuild))
	assert.Equal(t, 1, store.Len(entity.KindChannel))
	assert.Equal(t, 1, store.Len(entity.KindRole))
	assert.Equal(t, 2, store.Len(entity.KindMessage))

	m, ok, err := store.Repositories().Messages.Read(context.Background(), 300)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &entity.Message{ID: 300, ChannelID: 200, Author: 44, Content: "hi", Timestamp: testTime, GuildID: 100}, m)
}

func TestGuildJoinAfterReady(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	d.onReady(d.session, &discordgo.Ready{User: &discordgo.User{ID: "1"}})

	g := testGuild()
	require.NoError(t, d.session.State.GuildAdd(g))
	d.onGuildCreate(d.session, &discordgo.GuildCreate{Guild: g})

	assert.Equal(t, 1, store.Len(entity.KindGuild))
	assert.Equal(t, 2, store.Len(entity.KindMessage))
}

func TestGuildOwnerIsFetched(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	d.fetchUser = func(id string) (*discordgo.User, error) {
		assert.Equal(t, "7", id)
		return &discordgo.User{ID: "7", Username: "owner"}, nil
	}
	g := testGuild()
	g.OwnerID = "7"

	d.syncSnapshot(context.Background(), d.collect([]*discordgo.Guild{g}))

	assert.Equal(t, 4, store.Len(entity.KindUser))
	assert.Equal(t, 1, store.Len(entity.KindGuild))
}

func TestGuildOwnerMissing(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	g := testGuild()
	g.OwnerID = "7"

	reports := d.syncSnapshot(context.Background(), d.collect([]*discordgo.Guild{g}))

	require.Len(t, reports, 5)
	assert.Equal(t, entity.KindGuild, reports[1].Kind)
	assert.ErrorIs(t, reports[1].Results[0].Err, storage.ErrReferentialViolation)
	assert.Equal(t, 3, store.Len(entity.KindUser))
	assert.Zero(t, store.Len(entity.KindChannel))
}

// seed stores the guild subtree without going through events.
func seed(t *testing.T, d *Discord) {
	t.Helper()
	d.syncSnapshot(context.Background(), d.collect([]*discordgo.Guild{testGuild()}))
}

func TestMessageCreate_EnsuresAuthor(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	seed(t, d)
	ctx := context.Background()

	d.onMessageCreate(d.session, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "310", ChannelID: "200", GuildID: "100", Content: "new", Timestamp: testTime,
		Author: &discordgo.User{ID: "46", Username: "dave"},
	}})
	d.onMessageCreate(d.session, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "311", ChannelID: "200", GuildID: "100", Content: "again", Timestamp: testTime,
		Author: &discordgo.User{ID: "42", Username: "renamed"},
	}})

	_, ok, err := store.Repositories().Messages.Read(ctx, 310)
	require.NoError(t, err)
	assert.True(t, ok)
	u, _, err := store.Repositories().Users.Read(ctx, 46)
	require.NoError(t, err)
	assert.Equal(t, "dave", u.Name)
	u, _, err = store.Repositories().Users.Read(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Name, "authors are not overwritten by messages")
}

func TestMessageCreate_Skipped(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, regexp.MustCompile(`^!`), 0, 0, 0))
	seed(t, d)

	d.onMessageCreate(d.session, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "320", ChannelID: "900", Content: "dm", Author: &discordgo.User{ID: "46"},
	}})
	d.onMessageCreate(d.session, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "321", ChannelID: "200", GuildID: "100", Content: "!ping", Author: &discordgo.User{ID: "46"},
	}})

	assert.Equal(t, 2, store.Len(entity.KindMessage))
	assert.Equal(t, 3, store.Len(entity.KindUser))
}

func TestMessageUpdate_UsesCachedMessage(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	seed(t, d)
	g := testGuild()
	require.NoError(t, d.session.State.GuildAdd(g))

	cached := g.Channels[0].Messages[0]
	cached.Content = "edited"
	d.onMessageUpdate(d.session, &discordgo.MessageUpdate{Message: &discordgo.Message{ID: "300", ChannelID: "200", GuildID: "100"}})

	m, _, err := store.Repositories().Messages.Read(context.Background(), 300)
	require.NoError(t, err)
	assert.Equal(t, "edited", m.Content)

	d.onMessageUpdate(d.session, &discordgo.MessageUpdate{Message: &discordgo.Message{ID: "399", ChannelID: "200", GuildID: "100"}})
	assert.Equal(t, 2, store.Len(entity.KindMessage))
}

func TestDeletions(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	seed(t, d)

	d.onChannelDelete(d.session, &discordgo.ChannelDelete{Channel: &discordgo.Channel{ID: "200", GuildID: "100"}})
	assert.Equal(t, 1, store.Len(entity.KindChannel), "channel with messages is kept")

	d.onMessageDelete(d.session, &discordgo.MessageDelete{Message: &discordgo.Message{ID: "300", ChannelID: "200", GuildID: "100"}})
	d.onMessageDeleteBulk(d.session, &discordgo.MessageDeleteBulk{Messages: []string{"301", "302"}, ChannelID: "200", GuildID: "100"})
	assert.Zero(t, store.Len(entity.KindMessage))

	d.onChannelDelete(d.session, &discordgo.ChannelDelete{Channel: &discordgo.Channel{ID: "200", GuildID: "100"}})
	assert.Zero(t, store.Len(entity.KindChannel))

	d.onGuildRoleDelete(d.session, &discordgo.GuildRoleDelete{RoleID: "500", GuildID: "100"})
	assert.Zero(t, store.Len(entity.KindRole))
}

func TestIncrementalUpdates(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	seed(t, d)
	ctx := context.Background()

	d.onGuildMemberUpdate(d.session, &discordgo.GuildMemberUpdate{Member: &discordgo.Member{GuildID: "100", User: &discordgo.User{ID: "43", Username: "bobby"}}})
	d.onGuildRoleUpdate(d.session, &discordgo.GuildRoleUpdate{GuildRole: &discordgo.GuildRole{GuildID: "100", Role: &discordgo.Role{ID: "500", Name: "admin"}}})
	d.onChannelUpdate(d.session, &discordgo.ChannelUpdate{Channel: &discordgo.Channel{ID: "200", GuildID: "100", Name: "renamed", NSFW: true}})
	d.onGuildUpdate(d.session, &discordgo.GuildUpdate{Guild: &discordgo.Guild{ID: "100", Name: "new name", OwnerID: "43"}})

	u, _, err := store.Repositories().Users.Read(ctx, 43)
	require.NoError(t, err)
	assert.Equal(t, "bobby", u.Name)
	r, _, err := store.Repositories().Roles.Read(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, "admin", r.Name)
	c, _, err := store.Repositories().Channels.Read(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, &entity.Channel{ID: 200, GuildID: 100, Name: "renamed", NSFW: true}, c)
	g, _, err := store.Repositories().Guilds.Read(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, entity.Snowflake(43), g.OwnerID)
}

func TestIngest_Deduplicates(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	dd := &dedupMock{}
	d.WithDeduplicator(dd)
	dd.On("Seen", mock.Anything, mock.Anything).Return(true, nil).Once()

	res := ingest(d, entity.KindUser, &discordgo.User{ID: "42", Username: "alice"}, entity.NewUserFromDiscord, d.sync.Users.Apply)

	assert.Equal(t, reconcile.Unchanged, res.Outcome)
	assert.Zero(t, store.Len(entity.KindUser))
	dd.AssertExpectations(t)
}

func TestIngest_FailureIsForgottenAndDeadLettered(t *testing.T) {
	d, _ := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	dd := &dedupMock{}
	dl := &deadLetters{}
	d.WithDeduplicator(dd).WithDeadLetters(dl)
	dd.On("Seen", mock.Anything, mock.Anything).Return(false, nil).Once()
	dd.On("Forget", mock.Anything, mock.Anything).Return(nil).Once()

	res := ingest(d, entity.KindChannel, &discordgo.Channel{ID: "200", GuildID: "100"}, entity.NewChannelFromDiscord, d.sync.Channels.Apply)

	assert.ErrorIs(t, res.Err, storage.ErrReferentialViolation)
	dd.AssertExpectations(t)
	require.Len(t, dl.results, 1)
	assert.Equal(t, "", dl.runIDs[0])
	assert.Equal(t, entity.Snowflake(200), dl.results[0].ID)
}

func TestIngest_DedupErrorFallsThrough(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	dd := &dedupMock{}
	d.WithDeduplicator(dd)
	dd.On("Seen", mock.Anything, mock.Anything).Return(false, errors.New("redis down")).Once()

	res := ingest(d, entity.KindUser, &discordgo.User{ID: "42", Username: "alice"}, entity.NewUserFromDiscord, d.sync.Users.Apply)

	assert.Equal(t, reconcile.Upserted, res.Outcome)
	assert.Equal(t, 1, store.Len(entity.KindUser))
}

func TestIngest_MappingFailure(t *testing.T) {
	d, _ := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	dl := &deadLetters{}
	d.WithDeadLetters(dl)

	res := ingest(d, entity.KindRole, &discordgo.GuildRole{Role: &discordgo.Role{ID: "500"}}, entity.NewRoleFromDiscord, d.sync.Roles.Apply)

	assert.ErrorIs(t, res.Err, entity.ErrMissingRequiredRelation)
	assert.Equal(t, entity.Snowflake(500), res.ID)
	assert.Len(t, dl.results, 1)
}

func testThread() *discordgo.Channel {
	return &discordgo.Channel{
		ID:       "700",
		GuildID:  "100",
		ParentID: "200",
		Name:     "thread",
		Type:     discordgo.ChannelTypeGuildPublicThread,
		Messages: []*discordgo.Message{
			{ID: "900", ChannelID: "700", Content: "in thread", Timestamp: testTime, Author: &discordgo.User{ID: "43", Username: "bob"}},
		},
	}
}

func TestCollect_Threads(t *testing.T) {
	d, _ := newTestDiscord(t, NewConfig(nil, []entity.Snowflake{200}, nil, 0, 0, 0))
	g := testGuild()
	g.Threads = []*discordgo.Channel{testThread()}

	snap := d.collect([]*discordgo.Guild{g})

	require.Len(t, snap.Channels, 2)
	assert.Equal(t, "700", snap.Channels[1].ID, "a thread of an allowed channel is allowed")
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "100", snap.Messages[2].GuildID)
}

func TestCacheReadySynchronizesThreads(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	g := testGuild()
	g.Threads = []*discordgo.Channel{testThread()}

	reports := d.syncSnapshot(context.Background(), d.collect([]*discordgo.Guild{g}))

	for _, r := range reports {
		assert.Zero(t, r.Failed, "%s", r.Kind)
	}
	assert.Equal(t, 2, store.Len(entity.KindChannel))
	assert.Equal(t, 3, store.Len(entity.KindMessage))
}

func TestThreadEvents(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	seed(t, d)
	ctx := context.Background()
	thread := testThread()
	thread.Messages = nil

	d.onThreadCreate(d.session, &discordgo.ThreadCreate{Channel: thread})
	c, ok, err := store.Repositories().Channels.Read(ctx, 700)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &entity.Channel{ID: 700, GuildID: 100, Name: "thread"}, c)

	renamed := *thread
	renamed.Name = "renamed"
	d.onThreadUpdate(d.session, &discordgo.ThreadUpdate{Channel: &renamed})
	c, _, err = store.Repositories().Channels.Read(ctx, 700)
	require.NoError(t, err)
	assert.Equal(t, "renamed", c.Name)

	d.onThreadDelete(d.session, &discordgo.ThreadDelete{Channel: thread})
	_, ok, err = store.Repositories().Channels.Read(ctx, 700)
	require.NoError(t, err)
	assert.False(t, ok)

	d.onThreadListSync(d.session, &discordgo.ThreadListSync{GuildID: "100", Threads: []*discordgo.Channel{{ID: "701", Name: "synced", Type: discordgo.ChannelTypeGuildPublicThread}}})
	c, ok, err = store.Repositories().Channels.Read(ctx, 701)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entity.Snowflake(100), c.GuildID)
}

func TestMessageCreate_InUnstoredThread(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	dl := &deadLetters{}
	d.WithDeadLetters(dl)
	seed(t, d)
	require.NoError(t, d.session.State.GuildAdd(testGuild()))
	thread := testThread()
	thread.Messages = nil
	require.NoError(t, d.session.State.ChannelAdd(thread))

	d.onMessageCreate(d.session, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "901", ChannelID: "700", GuildID: "100", Content: "reply", Timestamp: testTime,
		Author: &discordgo.User{ID: "42", Username: "alice"},
	}})

	assert.Empty(t, dl.results)
	assert.Equal(t, 2, store.Len(entity.KindChannel))
	m, ok, err := store.Repositories().Messages.Read(context.Background(), 901)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entity.Snowflake(700), m.ChannelID)
}

func TestMessageDelete_InThreadOfAllowedChannel(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, []entity.Snowflake{200}, nil, 0, 0, 0))
	g := testGuild()
	g.Threads = []*discordgo.Channel{testThread()}
	d.syncSnapshot(context.Background(), d.collect([]*discordgo.Guild{g}))
	require.Equal(t, 3, store.Len(entity.KindMessage))

	require.NoError(t, d.session.State.GuildAdd(testGuild()))
	thread := testThread()
	thread.Messages = nil
	require.NoError(t, d.session.State.ChannelAdd(thread))

	d.onMessageDelete(d.session, &discordgo.MessageDelete{Message: &discordgo.Message{ID: "900", ChannelID: "700", GuildID: "100"}})
	assert.Equal(t, 2, store.Len(entity.KindMessage))
}

func TestGuildUpdate_EnsuresFetchedOwner(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	dl := &deadLetters{}
	d.WithDeadLetters(dl)
	seed(t, d)
	d.fetchUser = func(id string) (*discordgo.User, error) {
		require.Equal(t, "77", id)
		return &discordgo.User{ID: "77", Username: "heir"}, nil
	}

	d.onGuildUpdate(d.session, &discordgo.GuildUpdate{Guild: &discordgo.Guild{ID: "100", Name: "renamed", OwnerID: "77"}})

	assert.Empty(t, dl.results)
	g, _, err := store.Repositories().Guilds.Read(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, &entity.Guild{ID: 100, Name: "renamed", OwnerID: 77}, g)
	u, ok, err := store.Repositories().Users.Read(context.Background(), 77)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "heir", u.Name)
}

func TestGuildUpdate_EnsuresCachedOwner(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	seed(t, d)
	require.NoError(t, d.session.State.GuildAdd(testGuild()))
	require.NoError(t, d.session.State.MemberAdd(&discordgo.Member{GuildID: "100", User: &discordgo.User{ID: "78", Username: "member"}}))

	d.onGuildUpdate(d.session, &discordgo.GuildUpdate{Guild: &discordgo.Guild{ID: "100", Name: "renamed", OwnerID: "78"}})

	g, _, err := store.Repositories().Guilds.Read(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, entity.Snowflake(78), g.OwnerID)
	assert.Equal(t, 4, store.Len(entity.KindUser))
}

func TestMemberUpdate_RenamedBackIsStored(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	mr := miniredis.RunT(t)
	rc := oracleredis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), time.Minute)
	t.Cleanup(func() { _ = rc.Close() })
	d.WithDeduplicator(rc)
	seed(t, d)

	for _, name := range []string{"alice", "alice2", "alice"} {
		d.onGuildMemberUpdate(d.session, &discordgo.GuildMemberUpdate{Member: &discordgo.Member{GuildID: "100", User: &discordgo.User{ID: "42", Username: name}}})
	}

	u, _, err := store.Repositories().Users.Read(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Name)
}

func TestMessageAuthorDoesNotSuppressMemberUpdate(t *testing.T) {
	d, store := newTestDiscord(t, NewConfig(nil, nil, nil, 0, 0, 0))
	mr := miniredis.RunT(t)
	rc := oracleredis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), time.Minute)
	t.Cleanup(func() { _ = rc.Close() })
	d.WithDeduplicator(rc)
	seed(t, d)

	// The message carries a newer name than the stored author; the author is only ensured.
	d.onMessageCreate(d.session, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "310", ChannelID: "200", GuildID: "100", Content: "new", Timestamp: testTime,
		Author: &discordgo.User{ID: "42", Username: "alice2"},
	}})
	d.onGuildMemberUpdate(d.session, &discordgo.GuildMemberUpdate{Member: &discordgo.Member{GuildID: "100", User: &discordgo.User{ID: "42", Username: "alice2"}}})

	u, _, err := store.Repositories().Users.Read(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "alice2", u.Name)
}
