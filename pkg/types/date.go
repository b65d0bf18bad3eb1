// Package types provides core data types for the snapshot governance system.
package types

import (
	"fmt"
	"time"
)

// SnapshotDateLayout is the canonical wire format for snapshot dates.
const SnapshotDateLayout = "2006-01-02"

// SnapshotDate is a day-granularity date identifying one snapshot of a
// dataset. It is always normalised to UTC midnight so that two dates
// representing the same day compare equal regardless of how they were
// constructed.
type SnapshotDate struct {
	t time.Time
}

// ParseSnapshotDate parses a YYYY-MM-DD string into a SnapshotDate.
func ParseSnapshotDate(s string) (SnapshotDate, error) {
	t, err := time.ParseInLocation(SnapshotDateLayout, s, time.UTC)
	if err != nil {
		return SnapshotDate{}, fmt.Errorf("invalid snapshot date %q: %w", s, err)
	}
	return SnapshotDate{t: t}, nil
}

// DateOf truncates an arbitrary time to its UTC calendar day.
func DateOf(t time.Time) SnapshotDate {
	u := t.UTC()
	return SnapshotDate{t: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// MustDate parses a YYYY-MM-DD string and panics on failure.
// Intended for tests and static configuration values.
func MustDate(s string) SnapshotDate {
	d, err := ParseSnapshotDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String returns the canonical YYYY-MM-DD representation.
func (d SnapshotDate) String() string {
	return d.t.Format(SnapshotDateLayout)
}

// Time returns the date as UTC midnight.
func (d SnapshotDate) Time() time.Time {
	return d.t
}

// IsZero reports whether the date is unset.
func (d SnapshotDate) IsZero() bool {
	return d.t.IsZero()
}

// Before reports whether d is an earlier day than o.
func (d SnapshotDate) Before(o SnapshotDate) bool {
	return d.t.Before(o.t)
}

// After reports whether d is a later day than o.
func (d SnapshotDate) After(o SnapshotDate) bool {
	return d.t.After(o.t)
}

// Equal reports whether d and o are the same day.
func (d SnapshotDate) Equal(o SnapshotDate) bool {
	return d.t.Equal(o.t)
}

// AgeDays returns the age of the snapshot in whole days at the given
// instant. A snapshot dated today has age 0.
func (d SnapshotDate) AgeDays(now time.Time) int {
	return int(now.UTC().Sub(d.t).Hours() / 24)
}

// AddDays returns the date shifted by the given number of days.
func (d SnapshotDate) AddDays(n int) SnapshotDate {
	return SnapshotDate{t: d.t.AddDate(0, 0, n)}
}

// MarshalText implements encoding.TextMarshaler.
func (d SnapshotDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *SnapshotDate) UnmarshalText(b []byte) error {
	parsed, err := ParseSnapshotDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
