package validate

import (
	"fmt"
	"time"

	"github.com/snapgov/snapgov/internal/config"
	"github.com/snapgov/snapgov/pkg/types"
)

// FreshnessStatus classifies how old a dataset's current snapshot is.
type FreshnessStatus string

const (
	Fresh      FreshnessStatus = "fresh"
	StaleWarn  FreshnessStatus = "stale-warning"
	StaleError FreshnessStatus = "stale-error"
)

// GradeFreshness grades a dataset's current snapshot against its
// source's thresholds. Age is counted in whole days between the
// snapshot date and now; partial days do not count. A dataset without
// a current snapshot is always an error.
func GradeFreshness(ref types.DatasetRef, current *types.Entry, thresholds config.FreshnessConfig, now time.Time) (FreshnessStatus, *Finding) {
	if current == nil {
		f := datasetFinding(SeverityError, CheckFreshness, ref, "",
			"dataset has no current snapshot")
		return StaleError, &f
	}

	age := current.Date.AgeDays(now)
	switch {
	case thresholds.ErrorAfterDays > 0 && age > thresholds.ErrorAfterDays:
		f := finding(SeverityError, CheckFreshness, current.Key(), "",
			fmt.Sprintf("current snapshot is %d days old (error threshold %d)",
				age, thresholds.ErrorAfterDays))
		return StaleError, &f
	case thresholds.WarnAfterDays > 0 && age > thresholds.WarnAfterDays:
		f := finding(SeverityWarning, CheckFreshness, current.Key(), "",
			fmt.Sprintf("current snapshot is %d days old (warn threshold %d)",
				age, thresholds.WarnAfterDays))
		return StaleWarn, &f
	}
	return Fresh, nil
}
