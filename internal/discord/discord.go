// Package discord bridges gateway events and the session state cache to the reconcilers.
package discord

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"pkg.mon.icu/oracle/internal/reconcile"
	"pkg.mon.icu/oracle/internal/storage/entity"
	"pkg.mon.icu/oracle/internal/util"
)

const (
	DefaultCacheReadyTimeout = 30 * time.Second
	DefaultMaxMessages       = 100
)

type Config struct {
	guilds            snowflakeSet
	chans             snowflakeSet
	ignoreRegexp      *regexp.Regexp
	intents           discordgo.Intent
	cacheReadyTimeout time.Duration
	maxMessages       int
}

// NewConfig builds the adapter configuration. Empty guild and channel lists allow everything;
// a nil ignoreRegexp ignores nothing; zero intents request all of them.
func NewConfig(guilds, channels []entity.Snowflake, ignoreRegexp *regexp.Regexp, intents discordgo.Intent, cacheReadyTimeout time.Duration, maxMessages int) *Config {
	if intents == 0 {
		intents = discordgo.IntentsAll
	}
	if cacheReadyTimeout <= 0 {
		cacheReadyTimeout = DefaultCacheReadyTimeout
	}
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Config{
		guilds:            newSnowflakeSet(guilds),
		chans:             newSnowflakeSet(channels),
		ignoreRegexp:      ignoreRegexp,
		intents:           intents,
		cacheReadyTimeout: cacheReadyTimeout,
		maxMessages:       maxMessages,
	}
}

// Deduplicator remembers recently applied records so identical re-deliveries are skipped.
type Deduplicator interface {
	Seen(ctx context.Context, r entity.Record) (bool, error)
	Forget(ctx context.Context, r entity.Record) error
}

type Discord struct {
	ctx         context.Context
	logger      *zap.SugaredLogger
	session     *discordgo.Session
	config      *Config
	sync        *reconcile.Set
	dedup       Deduplicator
	deadLetters reconcile.DeadLetters
	ready       *readiness
	// fetchUser resolves users that the state does not hold, such as offline guild owners.
	fetchUser func(id string) (*discordgo.User, error)
}

func NewDiscord(ctx context.Context, log *zap.Logger, auth string, config *Config, sync *reconcile.Set) (*Discord, error) {
	if !strings.HasPrefix(auth, "Bot ") {
		auth = "Bot " + auth
	}
	s, err := discordgo.New(auth)
	if err != nil {
		return nil, err
	}
	s.StateEnabled = true
	s.State.MaxMessageCount = config.maxMessages
	s.Identify.Intents = config.intents

	return newDiscord(ctx, log, s, config, sync), nil
}

func newDiscord(ctx context.Context, log *zap.Logger, s *discordgo.Session, config *Config, sync *reconcile.Set) *Discord {
	d := &Discord{ctx: ctx, logger: log.Sugar(), session: s, config: config, sync: sync}
	d.ready = newReadiness(d.onCacheReady)
	d.fetchUser = func(id string) (*discordgo.User, error) {
		return s.User(id, discordgo.WithContext(ctx))
	}
	return d
}

// WithDeduplicator skips incremental deliveries whose record was applied recently.
func (d *Discord) WithDeduplicator(dd Deduplicator) *Discord {
	d.dedup = dd
	return d
}

// WithDeadLetters records incremental failures for later reprocessing.
func (d *Discord) WithDeadLetters(dl reconcile.DeadLetters) *Discord {
	d.deadLetters = dl
	return d
}

func (d *Discord) addHandlers() {
	d.session.AddHandler(d.onReady)
	d.session.AddHandler(d.onGuildCreate)
	d.session.AddHandler(d.onGuildUpdate)
	d.session.AddHandler(d.onGuildMemberAdd)
	d.session.AddHandler(d.onGuildMemberUpdate)
	d.session.AddHandler(d.onChannelCreate)
	d.session.AddHandler(d.onChannelUpdate)
	d.session.AddHandler(d.onChannelDelete)
	d.session.AddHandler(d.onThreadCreate)
	d.session.AddHandler(d.onThreadUpdate)
	d.session.AddHandler(d.onThreadDelete)
	d.session.AddHandler(d.onThreadListSync)
	d.session.AddHandler(d.onGuildRoleCreate)
	d.session.AddHandler(d.onGuildRoleUpdate)
	d.session.AddHandler(d.onGuildRoleDelete)
	d.session.AddHandler(d.onMessageCreate)
	d.session.AddHandler(d.onMessageUpdate)
	d.session.AddHandler(d.onMessageDelete)
	d.session.AddHandler(d.onMessageDeleteBulk)
}

func (d *Discord) Connect() error {
	d.addHandlers()
	return d.session.Open()
}

func (d *Discord) Close() error {
	d.ready.stop()
	return d.session.Close()
}

// shouldIngest applies the guild and channel allowlists. An empty channel id only checks the guild.
func (d *Discord) shouldIngest(guildID, channelID string) bool {
	if guildID != "" {
		if id, err := util.ParseSnowflake(guildID); err == nil && !d.config.guilds.Allows(id) {
			return false
		}
	}
	if channelID != "" {
		if id, err := util.ParseSnowflake(channelID); err == nil && !d.config.chans.Allows(id) {
			return false
		}
	}
	return true
}

// shouldIngestChannel applies the allowlists to a channel; a thread also passes when its parent does.
func (d *Discord) shouldIngestChannel(c *discordgo.Channel) bool {
	if d.shouldIngest(c.GuildID, c.ID) {
		return true
	}
	return c.IsThread() && c.ParentID != "" && d.shouldIngest(c.GuildID, c.ParentID)
}

// shouldIngestMessage filters m. c is the channel m was posted in, or nil when it is not cached.
func (d *Discord) shouldIngestMessage(m *discordgo.Message, c *discordgo.Channel) bool {
	allowed := d.shouldIngest(m.GuildID, m.ChannelID)
	if !allowed && c != nil {
		allowed = d.shouldIngestChannel(c)
	}
	if !allowed {
		d.logger.Debugf("Not ingesting message %s that is not in any allowed guilds or channels.", m.ID)
		return false
	}
	if d.config.ignoreRegexp != nil && d.config.ignoreRegexp.MatchString(m.Content) {
		d.logger.Debugf("Not ingesting message %s that matches ignore pattern.", m.ID)
		return false
	}
	return true
}
