package api

import (
	"time"

	"pkg.mon.icu/oracle/internal/storage/entity"
)

// Snowflakes are encoded as strings since they do not fit a JavaScript number.

type userModel struct {
	ID            entity.Snowflake `json:"id,string"`
	Name          string           `json:"name"`
	Discriminator *int16           `json:"discriminator"`
	GlobalName    *string          `json:"global_name"`
	Avatar        *string          `json:"avatar"`
	Bot           bool             `json:"bot"`
	Banner        *string          `json:"banner"`
	AccentColour  *int32           `json:"accent_colour"`
}

func newUserModel(u *entity.User) *userModel {
	return &userModel{u.ID, u.Name, u.Discriminator, u.GlobalName, u.Avatar, u.Bot, u.Banner, u.AccentColour}
}

type guildModel struct {
	ID       entity.Snowflake `json:"id,string"`
	Name     string           `json:"name"`
	Icon     *string          `json:"icon"`
	IconHash *string          `json:"icon_hash"`
	Splash   *string          `json:"splash"`
	OwnerID  entity.Snowflake `json:"owner_id,string"`
}

func newGuildModel(g *entity.Guild) *guildModel {
	return &guildModel{g.ID, g.Name, g.Icon, g.IconHash, g.Splash, g.OwnerID}
}

type channelModel struct {
	ID       entity.Snowflake `json:"id,string"`
	GuildID  entity.Snowflake `json:"guild_id,string"`
	Name     string           `json:"name"`
	Position int32            `json:"position"`
	NSFW     bool             `json:"nsfw"`
}

func newChannelModel(c *entity.Channel) *channelModel {
	return &channelModel{c.ID, c.GuildID, c.Name, c.Position, c.NSFW}
}

type messageModel struct {
	ID        entity.Snowflake `json:"id,string"`
	ChannelID entity.Snowflake `json:"channel_id,string"`
	Author    entity.Snowflake `json:"author,string"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Pinned    bool             `json:"pinned"`
	GuildID   entity.Snowflake `json:"guild_id,string"`
}

func newMessageModel(m *entity.Message) *messageModel {
	return &messageModel{m.ID, m.ChannelID, m.Author, m.Content, m.Timestamp, m.Pinned, m.GuildID}
}

type roleModel struct {
	ID          entity.Snowflake `json:"id,string"`
	GuildID     entity.Snowflake `json:"guild_id,string"`
	Mentionable bool             `json:"mentionable"`
	Name        string           `json:"name"`
	Position    int32            `json:"position"`
}

func newRoleModel(r *entity.Role) *roleModel {
	return &roleModel{r.ID, r.GuildID, r.Mentionable, r.Name, r.Position}
}
