package validate

import (
	"context"
	"fmt"

	"github.com/snapgov/snapgov/internal/crosswalk"
	"github.com/snapgov/snapgov/internal/partition"
	"github.com/snapgov/snapgov/internal/storage"
	"github.com/snapgov/snapgov/pkg/types"
)

// maxUnmappedSamples bounds how many unmapped identity values a
// finding carries.
const maxUnmappedSamples = 10

// MappingResult summarizes a crosswalk mapping-rate check over one
// partition.
type MappingResult struct {
	Total           int64    `json:"total"`
	Mapped          int64    `json:"mapped"`
	RatePct         float64  `json:"rate_pct"`
	UnmappedSamples []string `json:"unmapped_samples,omitempty"`
}

// MappingRate computes which fraction of a partition's identity
// values resolve through the crosswalk. The result is advisory: a low
// rate produces a warning finding, never an error, because unmapped
// rows are expected while a crosswalk catches up with new entities.
func MappingRate(ctx context.Context, store storage.PartitionStore, key types.PartitionKey, identityCol string, table *crosswalk.Table, floorPct float64) (*MappingResult, []Finding, error) {
	p, err := partition.Discover(ctx, store, key)
	if err != nil {
		return nil, nil, err
	}

	res := &MappingResult{}
	sampleSeen := make(map[string]bool)
	for _, file := range p.DataFiles() {
		values, err := partition.ReadColumn(ctx, store, file, identityCol)
		if err != nil {
			return nil, nil, err
		}
		for _, v := range values {
			res.Total++
			if table.Contains(v) {
				res.Mapped++
				continue
			}
			if len(res.UnmappedSamples) < maxUnmappedSamples && !sampleSeen[v] {
				sampleSeen[v] = true
				res.UnmappedSamples = append(res.UnmappedSamples, v)
			}
		}
	}

	if res.Total == 0 {
		f := finding(SeverityWarning, CheckMapping, key, "",
			"partition has no identity values to map")
		return res, []Finding{f}, nil
	}
	res.RatePct = 100 * float64(res.Mapped) / float64(res.Total)

	var findings []Finding
	if floorPct > 0 && res.RatePct < floorPct {
		f := finding(SeverityWarning, CheckMapping, key, "",
			fmt.Sprintf("mapping rate %.1f%% is below the %.1f%% floor (%d of %d unmapped, e.g. %v)",
				res.RatePct, floorPct, res.Total-res.Mapped, res.Total, res.UnmappedSamples))
		f.Details = map[string]interface{}{
			"rate_pct":         res.RatePct,
			"floor_pct":        floorPct,
			"total":            res.Total,
			"mapped":           res.Mapped,
			"unmapped_samples": res.UnmappedSamples,
		}
		findings = append(findings, f)
	}
	return res, findings, nil
}
