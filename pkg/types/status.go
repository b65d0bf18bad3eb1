package types

import "fmt"

// Status is the lifecycle state of a registry entry.
type Status string

const (
	// StatusPending marks an entry inserted but not yet promoted.
	StatusPending Status = "pending"

	// StatusCurrent marks the single authoritative snapshot for a dataset.
	StatusCurrent Status = "current"

	// StatusHistorical marks a superseded snapshot deliberately retained as
	// a baseline for historical continuity.
	StatusHistorical Status = "historical"

	// StatusSuperseded marks a snapshot replaced by a newer one.
	StatusSuperseded Status = "superseded"

	// StatusArchived marks an entry retired from selection but kept for audit.
	StatusArchived Status = "archived"
)

// AllStatuses lists every valid status value.
var AllStatuses = []Status{
	StatusPending, StatusCurrent, StatusHistorical, StatusSuperseded, StatusArchived,
}

// ParseStatus converts a string to a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}

// Valid reports whether the status is one of the five known values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCurrent, StatusHistorical, StatusSuperseded, StatusArchived:
		return true
	}
	return false
}

// Usable reports whether a snapshot in this state may be selected for
// reads. Pending entries are not yet authoritative and archived entries
// are retired.
func (s Status) Usable() bool {
	switch s {
	case StatusCurrent, StatusHistorical, StatusSuperseded:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving from s to
// next. Transitions are monotonic: pending -> current -> {historical,
// superseded, archived}; historical and superseded entries may still be
// archived. No transition goes backward and re-entering the same state
// is not a transition.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusCurrent
	case StatusCurrent:
		return next == StatusHistorical || next == StatusSuperseded || next == StatusArchived
	case StatusHistorical, StatusSuperseded:
		return next == StatusArchived
	case StatusArchived:
		return false
	}
	return false
}
