package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"pkg.mon.icu/oracle/internal/reconcile"
	"pkg.mon.icu/oracle/internal/storage/entity"
)

// snapshot is a copy of the cached entities, partitioned by kind. Copies are shallow but
// taken under the state lock so that reconciliation never reads state the gateway is updating.
type snapshot struct {
	Users    []*discordgo.User
	Guilds   []*discordgo.Guild
	Channels []*discordgo.Channel
	Roles    []*discordgo.GuildRole
	Messages []*discordgo.Message
}

// collect copies the allowed entities of the given guilds. Threads are channels. Users are the
// members and message authors, each once; messages without a guild id inherit the one of their channel.
func (d *Discord) collect(guilds []*discordgo.Guild) *snapshot {
	snap := &snapshot{}
	seen := make(map[string]struct{})
	addUser := func(u *discordgo.User) {
		if u == nil {
			return
		}
		if _, ok := seen[u.ID]; ok {
			return
		}
		seen[u.ID] = struct{}{}
		uc := *u
		snap.Users = append(snap.Users, &uc)
	}

	for _, g := range guilds {
		if g == nil || g.Unavailable || !d.shouldIngest(g.ID, "") {
			continue
		}

		for _, m := range g.Members {
			addUser(m.User)
		}

		gc := *g
		gc.Members, gc.Channels, gc.Threads, gc.Roles = nil, nil, nil, nil
		gc.Emojis, gc.Stickers, gc.Presences, gc.VoiceStates = nil, nil, nil, nil
		snap.Guilds = append(snap.Guilds, &gc)

		for _, r := range g.Roles {
			rc := *r
			snap.Roles = append(snap.Roles, &discordgo.GuildRole{Role: &rc, GuildID: g.ID})
		}

		channels := make([]*discordgo.Channel, 0, len(g.Channels)+len(g.Threads))
		channels = append(append(channels, g.Channels...), g.Threads...)
		for _, c := range channels {
			cc := *c
			cc.Messages = nil
			if cc.GuildID == "" {
				cc.GuildID = g.ID
			}
			if !d.shouldIngestChannel(&cc) {
				continue
			}
			snap.Channels = append(snap.Channels, &cc)

			for _, m := range c.Messages {
				mc := *m
				if mc.GuildID == "" {
					mc.GuildID = g.ID
				}
				if !d.shouldIngestMessage(&mc, &cc) {
					continue
				}
				addUser(mc.Author)
				snap.Messages = append(snap.Messages, &mc)
			}
		}
	}
	return snap
}

// collectState copies every guild in the session state.
func (d *Discord) collectState() *snapshot {
	st := d.session.State
	st.RLock()
	defer st.RUnlock()
	return d.collect(st.Guilds)
}

// addOwners fetches guild owners missing from the snapshot; their rows must exist before
// the guilds that reference them.
func (d *Discord) addOwners(snap *snapshot) {
	have := make(map[string]struct{}, len(snap.Users))
	for _, u := range snap.Users {
		have[u.ID] = struct{}{}
	}
	for _, g := range snap.Guilds {
		if _, ok := have[g.OwnerID]; ok || g.OwnerID == "" || d.fetchUser == nil {
			continue
		}
		u, err := d.fetchUser(g.OwnerID)
		if err != nil {
			if d.shouldLogError(err) {
				d.logger.Warnf("Failed to fetch owner %s of guild %s: %s.", g.OwnerID, g.ID, err)
			}
			continue
		}
		have[u.ID] = struct{}{}
		snap.Users = append(snap.Users, u)
	}
}

// syncSnapshot reconciles the snapshot kind by kind: users and guilds before the kinds that
// reference them. Kinds run one after another so that every dependency has been written
// before the first dependent is.
func (d *Discord) syncSnapshot(ctx context.Context, snap *snapshot) []*reconcile.Report {
	d.addOwners(snap)
	return []*reconcile.Report{
		reconcile.ReconcileAll(ctx, d.sync.Users, snap.Users, entity.NewUserFromDiscord),
		reconcile.ReconcileAll(ctx, d.sync.Guilds, snap.Guilds, entity.NewGuildFromDiscord),
		reconcile.ReconcileAll(ctx, d.sync.Channels, snap.Channels, entity.NewChannelFromDiscord),
		reconcile.ReconcileAll(ctx, d.sync.Roles, snap.Roles, entity.NewRoleFromDiscord),
		reconcile.ReconcileAll(ctx, d.sync.Messages, snap.Messages, entity.NewMessageFromDiscord),
	}
}

// onCacheReady reconciles everything the session state holds.
func (d *Discord) onCacheReady(timedOut bool) {
	if timedOut {
		d.logger.Warnf("Not every guild arrived within %s, synchronizing the cache as it is.", d.config.cacheReadyTimeout)
	}
	snap := d.collectState()
	d.logger.Infof("Synchronizing cache: %d users, %d guilds, %d channels, %d roles, %d messages.",
		len(snap.Users), len(snap.Guilds), len(snap.Channels), len(snap.Roles), len(snap.Messages))

	failed := 0
	for _, r := range d.syncSnapshot(d.ctx, snap) {
		failed += r.Failed
	}
	if failed > 0 {
		d.logger.Warnf("Cache synchronization finished with %d failures.", failed)
	} else {
		d.logger.Info("Cache synchronization finished.")
	}
}

// syncGuild reconciles the subtree of a guild that became available after the cache was populated.
func (d *Discord) syncGuild(g *discordgo.Guild) {
	d.logger.Infof("Synchronizing guild %s.", g.ID)
	st := d.session.State
	st.RLock()
	snap := d.collect([]*discordgo.Guild{g})
	st.RUnlock()
	d.syncSnapshot(d.ctx, snap)
}
