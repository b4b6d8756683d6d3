package entity

import (
	"github.com/bwmarrin/discordgo"
)

type Channel struct {
	ID       Snowflake
	GuildID  Snowflake
	Name     string
	Position int32
	NSFW     bool
}

func (c *Channel) Kind() Kind { return KindChannel }

func (c *Channel) RecordID() Snowflake { return c.ID }

func (c *Channel) References() []Reference {
	return []Reference{{KindGuild, c.GuildID}}
}

// NewChannelFromDiscord maps a guild channel; private channels have no guild and fail.
func NewChannelFromDiscord(c *discordgo.Channel) (*Channel, error) {
	if c == nil {
		return nil, nilSnapshot(KindChannel)
	}
	id, err := parseID(KindChannel, c.ID)
	if err != nil {
		return nil, err
	}
	guild, err := parseRelation(KindChannel, c.ID, "guild_id", c.GuildID)
	if err != nil {
		return nil, err
	}

	return &Channel{
		ID:       id,
		GuildID:  guild,
		Name:     c.Name,
		Position: int32(c.Position),
		NSFW:     c.NSFW,
	}, nil
}
