package discord

import "pkg.mon.icu/oracle/internal/storage/entity"

// snowflakeSet is a simple map-based set of unique snowflakes.
type snowflakeSet map[entity.Snowflake]struct{}

func newSnowflakeSet(s []entity.Snowflake) snowflakeSet {
	set := make(snowflakeSet, len(s))
	for _, i := range s {
		set[i] = struct{}{}
	}
	return set
}

func (s snowflakeSet) Contains(i entity.Snowflake) bool {
	_, exists := s[i]
	return exists
}

// Allows reports whether the id passes the set as an allowlist; an empty set allows everything.
func (s snowflakeSet) Allows(i entity.Snowflake) bool {
	return len(s) == 0 || s.Contains(i)
}
