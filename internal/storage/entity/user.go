package entity

import (
	"github.com/bwmarrin/discordgo"
)

type User struct {
	ID            Snowflake
	Name          string
	Discriminator *int16
	GlobalName    *string
	Avatar        *string
	Bot           bool
	Banner        *string
	AccentColour  *int32
}

func (u *User) Kind() Kind { return KindUser }

func (u *User) RecordID() Snowflake { return u.ID }

func (u *User) References() []Reference { return nil }

// NewUserFromDiscord maps a gateway user. An accent colour of 0 is read as unset since the
// gateway object does not tell black apart from absent.
func NewUserFromDiscord(u *discordgo.User) (*User, error) {
	if u == nil {
		return nil, nilSnapshot(KindUser)
	}
	id, err := parseID(KindUser, u.ID)
	if err != nil {
		return nil, err
	}
	disc, err := parseDiscriminator(u.ID, u.Discriminator)
	if err != nil {
		return nil, err
	}

	eu := &User{
		ID:            id,
		Name:          u.Username,
		Discriminator: disc,
		GlobalName:    optionalString(u.GlobalName),
		Avatar:        optionalString(u.Avatar),
		Bot:           u.Bot,
		Banner:        optionalString(u.Banner),
	}
	if u.AccentColor != 0 {
		c := int32(u.AccentColor & 0xFFFFFF)
		eu.AccentColour = &c
	}
	return eu, nil
}
