package entity

import (
	"github.com/bwmarrin/discordgo"
)

type Role struct {
	ID          Snowflake
	GuildID     Snowflake
	Mentionable bool
	Name        string
	Position    int32
}

func (r *Role) Kind() Kind { return KindRole }

func (r *Role) RecordID() Snowflake { return r.ID }

func (r *Role) References() []Reference {
	return []Reference{{KindGuild, r.GuildID}}
}

// NewRoleFromDiscord maps a role together with the guild it belongs to, since the role
// object itself does not name its guild.
func NewRoleFromDiscord(gr *discordgo.GuildRole) (*Role, error) {
	if gr == nil || gr.Role == nil {
		return nil, nilSnapshot(KindRole)
	}
	id, err := parseID(KindRole, gr.Role.ID)
	if err != nil {
		return nil, err
	}
	guild, err := parseRelation(KindRole, gr.Role.ID, "guild_id", gr.GuildID)
	if err != nil {
		return nil, err
	}

	return &Role{
		ID:          id,
		GuildID:     guild,
		Mentionable: gr.Role.Mentionable,
		Name:        gr.Role.Name,
		Position:    int32(gr.Role.Position),
	}, nil
}
