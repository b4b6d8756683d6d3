package entity

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

type Message struct {
	ID        Snowflake
	ChannelID Snowflake
	Author    Snowflake
	Content   string
	// Timestamp is UTC wall time; the column has no zone.
	Timestamp time.Time
	Pinned    bool
	GuildID   Snowflake
}

func (m *Message) Kind() Kind { return KindMessage }

func (m *Message) RecordID() Snowflake { return m.ID }

func (m *Message) References() []Reference {
	return []Reference{{KindChannel, m.ChannelID}, {KindUser, m.Author}, {KindGuild, m.GuildID}}
}

// NewMessageFromDiscord maps a guild message. Direct messages carry no guild and fail with
// ErrMissingRequiredRelation.
func NewMessageFromDiscord(m *discordgo.Message) (*Message, error) {
	if m == nil {
		return nil, nilSnapshot(KindMessage)
	}
	id, err := parseID(KindMessage, m.ID)
	if err != nil {
		return nil, err
	}
	guild, err := parseRelation(KindMessage, m.ID, "guild_id", m.GuildID)
	if err != nil {
		return nil, err
	}
	channel, err := parseRelation(KindMessage, m.ID, "channel_id", m.ChannelID)
	if err != nil {
		return nil, err
	}
	var authorID string
	if m.Author != nil {
		authorID = m.Author.ID
	}
	author, err := parseRelation(KindMessage, m.ID, "author", authorID)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:        id,
		ChannelID: channel,
		Author:    author,
		Content:   m.Content,
		Timestamp: m.Timestamp.UTC().Truncate(time.Microsecond),
		Pinned:    m.Pinned,
		GuildID:   guild,
	}, nil
}
