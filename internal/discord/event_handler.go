package discord

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"pkg.mon.icu/oracle/internal/reconcile"
	"pkg.mon.icu/oracle/internal/storage"
	"pkg.mon.icu/oracle/internal/storage/entity"
	"pkg.mon.icu/oracle/internal/util"
)

func (d *Discord) shouldLogError(err error) bool {
	return !(err == nil || errors.Is(err, context.Canceled))
}

func mapSnapshot[S any, R entity.Record](d *Discord, kind entity.Kind, snap S, mapFn func(S) (R, error)) (R, *reconcile.Result) {
	r, err := mapFn(snap)
	if err != nil {
		res := reconcile.MappingFailure(kind, err)
		d.reportFailure(res)
		return r, &res
	}
	return r, nil
}

// ingest maps one incremental snapshot and writes it with op. When a deduplicator is configured,
// a delivery repeating the latest content of its record is skipped.
func ingest[S any, R entity.Record](d *Discord, kind entity.Kind, snap S, mapFn func(S) (R, error), op func(context.Context, R) reconcile.Result) reconcile.Result {
	r, failed := mapSnapshot(d, kind, snap, mapFn)
	if failed != nil {
		return *failed
	}

	if d.dedup != nil {
		seen, err := d.dedup.Seen(d.ctx, r)
		if err != nil && d.shouldLogError(err) {
			d.logger.Warnf("Failed to check delivery of %s %d: %s.", kind, r.RecordID(), err)
		} else if seen {
			d.logger.Debugf("Skipping repeated delivery of %s %d.", kind, r.RecordID())
			return reconcile.Result{Kind: kind, ID: r.RecordID(), Outcome: reconcile.Unchanged}
		}
	}

	res := op(d.ctx, r)
	if res.Failed() {
		if d.dedup != nil {
			if err := d.dedup.Forget(d.ctx, r); d.shouldLogError(err) {
				d.logger.Warnf("Failed to forget delivery of %s %d: %s.", kind, r.RecordID(), err)
			}
		}
		d.reportFailure(res)
	}
	return res
}

// ensure creates a record that another one references and leaves a stored one untouched.
// Deliveries it applies are not recorded with the deduplicator.
func ensure[S any, R entity.Record](d *Discord, kind entity.Kind, snap S, mapFn func(S) (R, error), rc *reconcile.Reconciler[R]) reconcile.Result {
	r, failed := mapSnapshot(d, kind, snap, mapFn)
	if failed != nil {
		return *failed
	}
	res := rc.FetchOrCreate(d.ctx, r)
	if res.Failed() {
		d.reportFailure(res)
	}
	return res
}

func (d *Discord) reportFailure(res reconcile.Result) {
	if !d.shouldLogError(res.Err) {
		return
	}
	d.logger.Errorf("Failed to ingest %s %d: %s.", res.Kind, res.ID, res.Err)
	if d.deadLetters == nil {
		return
	}
	if err := d.deadLetters.PushDeadLetter(d.ctx, "", res); err != nil {
		d.logger.Warnf("Failed to dead-letter %s %d: %s.", res.Kind, res.ID, err)
	}
}

// remove mirrors an explicit deletion. Absence is not an error; a row that other rows still
// reference is kept.
func (d *Discord) remove(kind entity.Kind, rawID string, del func(context.Context, entity.Snowflake) (bool, error)) {
	id, err := util.ParseSnowflake(rawID)
	if err != nil {
		d.logger.Warnf("Not deleting %s with malformed id %q.", kind, rawID)
		return
	}

	found, err := del(d.ctx, id)
	switch {
	case errors.Is(err, storage.ErrReferentialViolation):
		d.logger.Warnf("Keeping %s %d that is still referenced.", kind, id)
	case err != nil:
		if d.shouldLogError(err) {
			d.logger.Errorf("Failed to delete %s %d: %s.", kind, id, err)
		}
	case !found:
		d.logger.Debugf("No %s %d to delete.", kind, id)
	default:
		d.logger.Infof("Deleted %s %d.", kind, id)
	}
}

// Lifecycle

func (d *Discord) onReady(_ *discordgo.Session, e *discordgo.Ready) {
	d.logger.Infof("Logged in Discord API as %s.", e.User)

	ids := make([]string, 0, len(e.Guilds))
	for _, g := range e.Guilds {
		if d.shouldIngest(g.ID, "") {
			ids = append(ids, g.ID)
		}
	}
	d.logger.Debugf("Waiting for %d guilds to be cached.", len(ids))
	d.ready.expect(ids, d.config.cacheReadyTimeout)
}

func (d *Discord) onGuildCreate(_ *discordgo.Session, e *discordgo.GuildCreate) {
	if d.ready.guildAvailable(e.ID) && d.shouldIngest(e.ID, "") {
		d.syncGuild(e.Guild)
	}
}

// Guilds and members

func (d *Discord) onGuildUpdate(_ *discordgo.Session, e *discordgo.GuildUpdate) {
	if !d.shouldIngest(e.ID, "") {
		return
	}
	if !d.ensureOwner(e.Guild) {
		return
	}
	ingest(d, entity.KindGuild, e.Guild, entity.NewGuildFromDiscord, d.sync.Guilds.Apply)
}

// ensureOwner creates the row of the guild owner when it is missing, taking the user from the
// member cache or else from the API. An owner that cannot be resolved is left for the guild
// write to report.
func (d *Discord) ensureOwner(g *discordgo.Guild) bool {
	if g.OwnerID == "" {
		return true
	}
	owner := d.cachedUser(g.ID, g.OwnerID)
	if owner == nil && d.fetchUser != nil {
		u, err := d.fetchUser(g.OwnerID)
		if err != nil {
			if d.shouldLogError(err) {
				d.logger.Warnf("Failed to fetch owner %s of guild %s: %s.", g.OwnerID, g.ID, err)
			}
		} else {
			owner = u
		}
	}
	if owner == nil {
		return true
	}
	return !ensure(d, entity.KindUser, owner, entity.NewUserFromDiscord, d.sync.Users).Failed()
}

func (d *Discord) onGuildMemberAdd(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if !d.shouldIngest(e.GuildID, "") {
		return
	}
	ingest(d, entity.KindUser, e.User, entity.NewUserFromDiscord, d.sync.Users.Apply)
}

func (d *Discord) onGuildMemberUpdate(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
	if !d.shouldIngest(e.GuildID, "") {
		return
	}
	ingest(d, entity.KindUser, e.User, entity.NewUserFromDiscord, d.sync.Users.Apply)
}

// Channels

func (d *Discord) onChannelCreate(_ *discordgo.Session, e *discordgo.ChannelCreate) {
	d.maybeSyncChannel(e.Channel)
}

func (d *Discord) onChannelUpdate(_ *discordgo.Session, e *discordgo.ChannelUpdate) {
	d.maybeSyncChannel(e.Channel)
}

func (d *Discord) maybeSyncChannel(c *discordgo.Channel) {
	if c.GuildID == "" {
		d.logger.Debugf("Not ingesting direct message channel %s.", c.ID)
		return
	}
	if !d.shouldIngestChannel(c) {
		return
	}
	ingest(d, entity.KindChannel, c, entity.NewChannelFromDiscord, d.sync.Channels.Apply)
}

func (d *Discord) onChannelDelete(_ *discordgo.Session, e *discordgo.ChannelDelete) {
	d.maybeRemoveChannel(e.Channel)
}

func (d *Discord) maybeRemoveChannel(c *discordgo.Channel) {
	if c.GuildID == "" || !d.shouldIngestChannel(c) {
		return
	}
	d.remove(entity.KindChannel, c.ID, d.sync.Channels.Delete)
}

// Threads are stored as channels of their guild.

func (d *Discord) onThreadCreate(_ *discordgo.Session, e *discordgo.ThreadCreate) {
	d.maybeSyncChannel(e.Channel)
}

func (d *Discord) onThreadUpdate(_ *discordgo.Session, e *discordgo.ThreadUpdate) {
	d.maybeSyncChannel(e.Channel)
}

func (d *Discord) onThreadDelete(_ *discordgo.Session, e *discordgo.ThreadDelete) {
	d.maybeRemoveChannel(e.Channel)
}

// onThreadListSync ingests the active threads sent when the bot gains access to a channel.
func (d *Discord) onThreadListSync(_ *discordgo.Session, e *discordgo.ThreadListSync) {
	for _, t := range e.Threads {
		tc := *t
		tc.Messages = nil
		if tc.GuildID == "" {
			tc.GuildID = e.GuildID
		}
		d.maybeSyncChannel(&tc)
	}
}

// Roles

func (d *Discord) onGuildRoleCreate(_ *discordgo.Session, e *discordgo.GuildRoleCreate) {
	if !d.shouldIngest(e.GuildID, "") {
		return
	}
	ingest(d, entity.KindRole, e.GuildRole, entity.NewRoleFromDiscord, d.sync.Roles.Apply)
}

func (d *Discord) onGuildRoleUpdate(_ *discordgo.Session, e *discordgo.GuildRoleUpdate) {
	if !d.shouldIngest(e.GuildID, "") {
		return
	}
	ingest(d, entity.KindRole, e.GuildRole, entity.NewRoleFromDiscord, d.sync.Roles.Apply)
}

func (d *Discord) onGuildRoleDelete(_ *discordgo.Session, e *discordgo.GuildRoleDelete) {
	if !d.shouldIngest(e.GuildID, "") {
		return
	}
	d.remove(entity.KindRole, e.RoleID, d.sync.Roles.Delete)
}

// Messages

func (d *Discord) onMessageCreate(_ *discordgo.Session, e *discordgo.MessageCreate) {
	d.maybeSyncMessage(e.Message)
}

// onMessageUpdate falls back to the cached message when the update is partial (embed
// resolution sends no author).
func (d *Discord) onMessageUpdate(s *discordgo.Session, e *discordgo.MessageUpdate) {
	m := e.Message
	if m.Author == nil {
		cached, err := s.State.Message(m.ChannelID, m.ID)
		if err != nil {
			d.logger.Debugf("Not ingesting partial update of uncached message %s.", m.ID)
			return
		}
		s.State.RLock()
		mc := *cached
		s.State.RUnlock()
		if mc.GuildID == "" {
			mc.GuildID = m.GuildID
		}
		m = &mc
	}
	d.maybeSyncMessage(m)
}

// maybeSyncMessage ensures the author and a cached thread exist, without overwriting them,
// before writing the message.
func (d *Discord) maybeSyncMessage(m *discordgo.Message) {
	if m.GuildID == "" {
		d.logger.Debugf("Not ingesting direct message %s.", m.ID)
		return
	}
	c := d.cachedChannel(m.ChannelID)
	if !d.shouldIngestMessage(m, c) {
		return
	}

	if c != nil && c.IsThread() {
		if c.GuildID == "" {
			c.GuildID = m.GuildID
		}
		if res := ensure(d, entity.KindChannel, c, entity.NewChannelFromDiscord, d.sync.Channels); res.Failed() {
			return
		}
	}
	if m.Author != nil {
		if res := ensure(d, entity.KindUser, m.Author, entity.NewUserFromDiscord, d.sync.Users); res.Failed() {
			return
		}
	}
	ingest(d, entity.KindMessage, m, entity.NewMessageFromDiscord, d.sync.Messages.Apply)
}

func (d *Discord) onMessageDelete(_ *discordgo.Session, e *discordgo.MessageDelete) {
	if !d.shouldIngestIn(e.GuildID, e.ChannelID) {
		return
	}
	d.remove(entity.KindMessage, e.ID, d.sync.Messages.Delete)
}

func (d *Discord) onMessageDeleteBulk(_ *discordgo.Session, e *discordgo.MessageDeleteBulk) {
	if len(e.Messages) == 0 || !d.shouldIngestIn(e.GuildID, e.ChannelID) {
		return
	}
	d.logger.Debugf("Bulk-deleting messages %s-%s.", e.Messages[0], e.Messages[len(e.Messages)-1])
	for _, id := range e.Messages {
		d.remove(entity.KindMessage, id, d.sync.Messages.Delete)
	}
}

// State lookups. Each returns a copy taken under the state lock, or nil when nothing is cached.

func (d *Discord) cachedChannel(id string) *discordgo.Channel {
	st := d.session.State
	c, err := st.Channel(id)
	if err != nil {
		return nil
	}
	st.RLock()
	cc := *c
	st.RUnlock()
	cc.Messages = nil
	return &cc
}

func (d *Discord) cachedUser(guildID, userID string) *discordgo.User {
	st := d.session.State
	m, err := st.Member(guildID, userID)
	if err != nil {
		return nil
	}
	st.RLock()
	defer st.RUnlock()
	if m.User == nil {
		return nil
	}
	uc := *m.User
	return &uc
}

// shouldIngestIn applies the allowlists to a channel known only by id, letting threads of an
// allowed channel through when the thread is cached.
func (d *Discord) shouldIngestIn(guildID, channelID string) bool {
	if d.shouldIngest(guildID, channelID) {
		return true
	}
	c := d.cachedChannel(channelID)
	return c != nil && d.shouldIngestChannel(c)
}
