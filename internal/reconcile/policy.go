package reconcile

import "fmt"

// Policy decides how a delivered snapshot is written.
type Policy string

const (
	// PolicySync upserts every delivered snapshot so the store mirrors current external state.
	PolicySync Policy = "sync"
	// PolicyFetchOrCreate creates missing records and leaves existing ones untouched.
	PolicyFetchOrCreate Policy = "fetch_or_create"
	// PolicyUpdateOrCreate updates the stored record and creates it when there is none.
	PolicyUpdateOrCreate Policy = "update_or_create"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicySync, PolicyFetchOrCreate, PolicyUpdateOrCreate:
		return p, nil
	case "":
		return PolicySync, nil
	default:
		return "", fmt.Errorf("unknown reconcile policy %q", s)
	}
}

// Outcome is what reconciliation did to one record.
type Outcome int

const (
	Failed Outcome = iota
	Created
	Upserted
	Unchanged
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Upserted:
		return "upserted"
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	default:
		return "failed"
	}
}
