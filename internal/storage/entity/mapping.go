package entity

import (
	"errors"
	"fmt"
	"strconv"

	"pkg.mon.icu/oracle/internal/util"
)

var (
	// ErrMissingRequiredRelation means the snapshot lacks a reference the record cannot exist without.
	ErrMissingRequiredRelation = errors.New("missing required relation")
	// ErrMalformedField means a snapshot field could not be converted.
	ErrMalformedField = errors.New("malformed field")
)

// MappingError reports a snapshot that cannot be turned into a record. It matches its
// reason with errors.Is.
type MappingError struct {
	Kind   Kind
	ID     string
	Field  string
	Reason error
	Err    error
}

func (e *MappingError) Error() string {
	msg := fmt.Sprintf("could not map %s %q: %s", e.Kind, e.ID, e.Reason)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MappingError) Is(target error) bool {
	return target == e.Reason
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

func nilSnapshot(k Kind) error {
	return &MappingError{Kind: k, Field: "snapshot", Reason: ErrMalformedField}
}

// parseID parses the identity of the snapshot itself.
func parseID(k Kind, raw string) (Snowflake, error) {
	id, err := util.ParseSnowflake(raw)
	if err != nil {
		return 0, &MappingError{Kind: k, ID: raw, Field: "id", Reason: ErrMalformedField, Err: err}
	}
	return id, nil
}

// parseRelation parses a required foreign reference of the snapshot with the given id.
func parseRelation(k Kind, id, field, raw string) (Snowflake, error) {
	if raw == "" {
		return 0, &MappingError{Kind: k, ID: id, Field: field, Reason: ErrMissingRequiredRelation}
	}
	ref, err := util.ParseSnowflake(raw)
	if err != nil {
		return 0, &MappingError{Kind: k, ID: id, Field: field, Reason: ErrMalformedField, Err: err}
	}
	return ref, nil
}

// parseDiscriminator treats "0" (migrated usernames) and "" as absent.
func parseDiscriminator(id, raw string) (*int16, error) {
	if raw == "" || raw == "0" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 16)
	if err == nil && (v < 1 || v > 9999) {
		err = fmt.Errorf("discriminator %d out of range", v)
	}
	if err != nil {
		return nil, &MappingError{Kind: KindUser, ID: id, Field: "discriminator", Reason: ErrMalformedField, Err: err}
	}
	d := int16(v)
	return &d, nil
}
