package util

import (
	"errors"
	"fmt"
	"strconv"
)

var ErrEmptySnowflake = errors.New("empty snowflake")

// ParseSnowflake parses a decimal Discord ID into the signed form stored in the database.
func ParseSnowflake(s string) (int64, error) {
	if s == "" {
		return 0, ErrEmptySnowflake
	}
	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse Snowflake ID string: %w", err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("snowflake must be positive, got %d", val)
	}
	return val, nil
}

func FormatSnowflake(s int64) string {
	return strconv.FormatInt(s, 10)
}

// ParseSnowflakes parses every value, stopping at the first invalid one.
func ParseSnowflakes(ss []string) ([]int64, error) {
	out := make([]int64, 0, len(ss))
	for _, s := range ss {
		v, err := ParseSnowflake(s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
