package entity

// Snowflake is a Discord ID in the signed form it is stored in.
type Snowflake = int64

// Kind names an entity kind; it doubles as the log and report label.
type Kind string

const (
	KindUser    Kind = "user"
	KindGuild   Kind = "guild"
	KindChannel Kind = "channel"
	KindMessage Kind = "message"
	KindRole    Kind = "role"
)

// Kinds lists every kind in dependency order: a kind only references kinds before it.
var Kinds = []Kind{KindUser, KindGuild, KindChannel, KindRole, KindMessage}

// Reference is a foreign key held by a record.
type Reference struct {
	Kind Kind
	ID   Snowflake
}

// Record is a canonical persisted entity keyed by its Discord ID.
type Record interface {
	Kind() Kind
	RecordID() Snowflake
	References() []Reference
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
