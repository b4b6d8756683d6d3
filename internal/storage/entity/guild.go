package entity

import (
	"github.com/bwmarrin/discordgo"
)

type Guild struct {
	ID       Snowflake
	Name     string
	Icon     *string
	IconHash *string
	Splash   *string
	OwnerID  Snowflake
}

func (g *Guild) Kind() Kind { return KindGuild }

func (g *Guild) RecordID() Snowflake { return g.ID }

func (g *Guild) References() []Reference {
	return []Reference{{KindUser, g.OwnerID}}
}

// NewGuildFromDiscord maps a gateway guild. The gateway guild object carries no icon_hash,
// so IconHash stays absent.
func NewGuildFromDiscord(g *discordgo.Guild) (*Guild, error) {
	if g == nil {
		return nil, nilSnapshot(KindGuild)
	}
	id, err := parseID(KindGuild, g.ID)
	if err != nil {
		return nil, err
	}
	owner, err := parseRelation(KindGuild, g.ID, "owner_id", g.OwnerID)
	if err != nil {
		return nil, err
	}

	return &Guild{
		ID:      id,
		Name:    g.Name,
		Icon:    optionalString(g.Icon),
		Splash:  optionalString(g.Splash),
		OwnerID: owner,
	}, nil
}
