package types

import "fmt"

// StrategyKind enumerates the closed set of selection strategies.
// An unknown strategy name fails at parse time; it can never fall through
// to an unfiltered read.
type StrategyKind string

const (
	// StrategyLatestOnly selects the single newest usable snapshot.
	StrategyLatestOnly StrategyKind = "latest_only"

	// StrategyBaselinePlusLatest selects a fixed baseline snapshot plus
	// the newest usable snapshot.
	StrategyBaselinePlusLatest StrategyKind = "baseline_plus_latest"

	// StrategyAll selects every usable snapshot.
	StrategyAll StrategyKind = "all"
)

// Strategy is a tagged variant describing how a dataset's partitions are
// selected for reads. Baseline is only meaningful for
// StrategyBaselinePlusLatest.
type Strategy struct {
	Kind     StrategyKind `json:"kind"`
	Baseline SnapshotDate `json:"baseline,omitempty"`
}

// LatestOnly returns the latest-only strategy.
func LatestOnly() Strategy {
	return Strategy{Kind: StrategyLatestOnly}
}

// BaselinePlusLatest returns the baseline-plus-latest strategy anchored
// at the given baseline date.
func BaselinePlusLatest(baseline SnapshotDate) Strategy {
	return Strategy{Kind: StrategyBaselinePlusLatest, Baseline: baseline}
}

// All returns the select-everything strategy.
func All() Strategy {
	return Strategy{Kind: StrategyAll}
}

// ParseStrategy builds a Strategy from its configured name and optional
// baseline date string.
func ParseStrategy(name, baseline string) (Strategy, error) {
	switch StrategyKind(name) {
	case StrategyLatestOnly:
		return LatestOnly(), nil
	case StrategyAll:
		return All(), nil
	case StrategyBaselinePlusLatest:
		if baseline == "" {
			return Strategy{}, fmt.Errorf("strategy %s requires a baseline date", name)
		}
		d, err := ParseSnapshotDate(baseline)
		if err != nil {
			return Strategy{}, err
		}
		return BaselinePlusLatest(d), nil
	}
	return Strategy{}, fmt.Errorf("unknown selection strategy %q", name)
}

// Validate checks internal consistency of the strategy.
func (s Strategy) Validate() error {
	switch s.Kind {
	case StrategyLatestOnly, StrategyAll:
		return nil
	case StrategyBaselinePlusLatest:
		if s.Baseline.IsZero() {
			return fmt.Errorf("strategy %s requires a baseline date", s.Kind)
		}
		return nil
	}
	return fmt.Errorf("unknown selection strategy %q", s.Kind)
}

func (s Strategy) String() string {
	if s.Kind == StrategyBaselinePlusLatest {
		return fmt.Sprintf("%s(%s)", s.Kind, s.Baseline)
	}
	return string(s.Kind)
}
