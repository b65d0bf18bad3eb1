package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseSnapshotDate(t *testing.T) {
	d, err := ParseSnapshotDate("2024-01-15")
	if err != nil {
		t.Fatalf("ParseSnapshotDate: %v", err)
	}
	if d.String() != "2024-01-15" {
		t.Errorf("String = %q", d.String())
	}
	if !d.Time().Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Time = %v, want UTC midnight", d.Time())
	}

	for _, bad := range []string{"", "2024-1-5", "15/01/2024", "2024-13-01", "not-a-date"} {
		if _, err := ParseSnapshotDate(bad); err == nil {
			t.Errorf("ParseSnapshotDate(%q) should fail", bad)
		}
	}
}

func TestDateOfNormalizesToUTCDay(t *testing.T) {
	tokyo, _ := time.LoadLocation("Asia/Tokyo")
	// 2024-01-16 08:00 JST is 2024-01-15 23:00 UTC
	d := DateOf(time.Date(2024, 1, 16, 8, 0, 0, 0, tokyo))
	if d.String() != "2024-01-15" {
		t.Errorf("DateOf = %s, want 2024-01-15", d)
	}
}

func TestSnapshotDateOrdering(t *testing.T) {
	a, b := MustDate("2024-01-15"), MustDate("2024-02-01")
	if !a.Before(b) || b.Before(a) || !b.After(a) {
		t.Error("ordering broken")
	}
	if !a.Equal(MustDate("2024-01-15")) {
		t.Error("equal dates should compare equal")
	}
	if a.Equal(b) {
		t.Error("different dates should not compare equal")
	}
}

func TestAgeDays(t *testing.T) {
	d := MustDate("2024-02-08")
	tests := []struct {
		now  time.Time
		want int
	}{
		{time.Date(2024, 2, 8, 12, 0, 0, 0, time.UTC), 0},
		{time.Date(2024, 2, 9, 1, 0, 0, 0, time.UTC), 1},
		{time.Date(2024, 2, 10, 23, 0, 0, 0, time.UTC), 2},
		{time.Date(2024, 2, 18, 0, 0, 0, 0, time.UTC), 10},
	}
	for _, tt := range tests {
		if got := d.AgeDays(tt.now); got != tt.want {
			t.Errorf("AgeDays(%v) = %d, want %d", tt.now, got, tt.want)
		}
	}
}

func TestSnapshotDateJSON(t *testing.T) {
	type wrapper struct {
		Date SnapshotDate `json:"date"`
	}
	out, err := json.Marshal(wrapper{Date: MustDate("2024-01-15")})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"date":"2024-01-15"}` {
		t.Errorf("Marshal = %s", out)
	}
	var back wrapper
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Date.Equal(MustDate("2024-01-15")) {
		t.Errorf("round trip = %s", back.Date)
	}
}

func TestPartitionKeyPath(t *testing.T) {
	k := PartitionKey{Source: "statsbomb", Dataset: "matches", Date: MustDate("2024-01-15")}
	if k.Path() != "statsbomb/matches/dt=2024-01-15" {
		t.Errorf("Path = %q", k.Path())
	}
	if err := k.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestPartitionKeyValidate(t *testing.T) {
	tests := []struct {
		name string
		key  PartitionKey
	}{
		{"empty source", PartitionKey{Dataset: "d", Date: MustDate("2024-01-01")}},
		{"empty dataset", PartitionKey{Source: "s", Date: MustDate("2024-01-01")}},
		{"zero date", PartitionKey{Source: "s", Dataset: "d"}},
		{"slash in source", PartitionKey{Source: "a/b", Dataset: "d", Date: MustDate("2024-01-01")}},
		{"slash in dataset", PartitionKey{Source: "s", Dataset: "d/x", Date: MustDate("2024-01-01")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.key.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:    {StatusCurrent},
		StatusCurrent:    {StatusHistorical, StatusSuperseded, StatusArchived},
		StatusHistorical: {StatusArchived},
		StatusSuperseded: {StatusArchived},
		StatusArchived:   {},
	}
	for _, from := range AllStatuses {
		ok := map[Status]bool{}
		for _, to := range allowed[from] {
			ok[to] = true
		}
		for _, to := range AllStatuses {
			if got := from.CanTransitionTo(to); got != ok[to] {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", from, to, got, ok[to])
			}
		}
	}
}

func TestStatusUsable(t *testing.T) {
	usable := map[Status]bool{
		StatusCurrent:    true,
		StatusHistorical: true,
		StatusSuperseded: true,
		StatusPending:    false,
		StatusArchived:   false,
	}
	for s, want := range usable {
		if s.Usable() != want {
			t.Errorf("%s.Usable() = %v, want %v", s, s.Usable(), want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range AllStatuses {
		got, err := ParseStatus(string(s))
		if err != nil || got != s {
			t.Errorf("ParseStatus(%s) = %s, %v", s, got, err)
		}
	}
	if _, err := ParseStatus("published"); err == nil {
		t.Error("unknown status should fail to parse")
	}
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("latest_only", "")
	if err != nil || s.Kind != StrategyLatestOnly {
		t.Errorf("ParseStrategy(latest_only) = %v, %v", s, err)
	}

	s, err = ParseStrategy("baseline_plus_latest", "2023-08-01")
	if err != nil || !s.Baseline.Equal(MustDate("2023-08-01")) {
		t.Errorf("ParseStrategy(baseline_plus_latest) = %v, %v", s, err)
	}

	if _, err := ParseStrategy("baseline_plus_latest", ""); err == nil {
		t.Error("baseline_plus_latest without a date should fail")
	}
	if _, err := ParseStrategy("newest_n", ""); err == nil {
		t.Error("unknown strategy should fail, never fall through")
	}
}

func TestNewSelection(t *testing.T) {
	ref := DatasetRef{Source: "s", Dataset: "d"}
	sel := NewSelection(ref, []SnapshotDate{
		MustDate("2024-02-01"),
		MustDate("2023-08-01"),
		MustDate("2024-02-01"), // duplicate
	})
	if len(sel.Dates) != 2 {
		t.Fatalf("Dates = %v, want deduplicated pair", sel.Dates)
	}
	if sel.Dates[0].String() != "2023-08-01" {
		t.Errorf("Dates not sorted ascending: %v", sel.Dates)
	}
	if !sel.Contains(MustDate("2023-08-01")) || sel.Contains(MustDate("2024-01-01")) {
		t.Error("Contains broken")
	}

	pred := sel.Predicate()
	if !pred(MustDate("2024-02-01")) || pred(MustDate("2024-01-01")) {
		t.Error("Predicate disagrees with Contains")
	}
}
