package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goverrors "github.com/snapgov/snapgov/internal/errors"
	"github.com/snapgov/snapgov/internal/partition"
	"github.com/snapgov/snapgov/internal/registry"
	"github.com/snapgov/snapgov/internal/storage"
	"github.com/snapgov/snapgov/pkg/types"
)

// IntegrityMode distinguishes the promote gate from the periodic
// audit. The same defects are detected either way; the audit demotes
// them to warnings on snapshots that are no longer current, because a
// superseded snapshot's defect is history, not an incident.
type IntegrityMode int

const (
	// IntegrityGate is the strict pre-promotion check
	IntegrityGate IntegrityMode = iota

	// IntegrityAudit is the periodic whole-lake sweep
	IntegrityAudit
)

// Integrity runs partition integrity checks against the lake and the
// registry.
type Integrity struct {
	Store    storage.PartitionStore
	Registry registry.Registry
}

// CheckPartition verifies one partition: exactly one data file, a
// well-formed manifest, a recount that matches the manifest, and a
// registry entry that matches the manifest. In audit mode the entry
// status controls whether defects are errors or warnings.
func (c *Integrity) CheckPartition(ctx context.Context, key types.PartitionKey, mode IntegrityMode) ([]Finding, error) {
	sev := SeverityError
	if mode == IntegrityAudit {
		entry, err := c.Registry.Get(ctx, key)
		if err == nil && entry.Status != types.StatusCurrent {
			sev = SeverityWarning
		}
	}

	p, err := partition.Discover(ctx, c.Store, key)
	if err != nil {
		if errors.Is(err, storage.ErrPartitionNotFound) {
			return []Finding{finding(sev, CheckIntegrity, key,
				goverrors.CodePartitionMissing,
				"partition directory does not exist")}, nil
		}
		return nil, err
	}

	var findings []Finding

	data := p.DataFiles()
	switch {
	case len(data) == 0:
		findings = append(findings, finding(sev, CheckIntegrity, key,
			goverrors.CodePartitionMissing,
			"partition has no data file"))
	case len(data) > 1:
		names := make([]string, len(data))
		sizes := make(map[string]interface{}, len(data))
		for i, f := range data {
			names[i] = f.Name
			sizes[f.Name] = f.Size
		}
		f := finding(sev, CheckIntegrity, key,
			goverrors.CodeDuplicateFile,
			fmt.Sprintf("partition has %d data files (%s), expected exactly one",
				len(data), strings.Join(names, ", ")))
		f.Details = map[string]interface{}{
			"files":      names,
			"file_sizes": sizes,
		}
		findings = append(findings, f)
	}

	if p.Manifest == nil {
		findings = append(findings, finding(sev, CheckIntegrity, key,
			goverrors.CodeManifestMissing,
			fmt.Sprintf("manifest unreadable: %v", p.ManifestErr)))
		return findings, nil
	}
	if err := p.Manifest.Validate(); err != nil {
		findings = append(findings, finding(sev, CheckIntegrity, key,
			goverrors.CodeManifestMissing,
			fmt.Sprintf("manifest invalid: %v", err)))
		return findings, nil
	}

	// recount only when there is exactly one data file; with
	// duplicates the expected total is undefined
	if len(data) == 1 {
		counted, err := partition.CountRows(ctx, c.Store, data[0])
		if err != nil {
			return nil, err
		}
		if counted != p.Manifest.RowCount {
			f := finding(sev, CheckIntegrity, key,
				goverrors.CodeManifestMismatch,
				fmt.Sprintf("counted %d rows but manifest declares %d",
					counted, p.Manifest.RowCount))
			f.Details = map[string]interface{}{
				"counted":  counted,
				"manifest": p.Manifest.RowCount,
				"file":     data[0].Path,
			}
			findings = append(findings, f)
		}
	}

	entry, err := c.Registry.Get(ctx, key)
	if err != nil {
		if goverrors.HasCode(err, goverrors.CodeEntryNotFound) {
			// an unregistered partition is the audit's concern, not a
			// partition defect; the promote gate runs before
			// registration by design of the promote sequence
			if mode == IntegrityAudit {
				findings = append(findings, finding(SeverityWarning, CheckIntegrity, key,
					goverrors.CodeEntryNotFound,
					"partition exists in storage but has no registry entry"))
			}
			return findings, nil
		}
		return nil, err
	}
	if entry.RowCount != p.Manifest.RowCount {
		f := finding(sev, CheckIntegrity, key,
			goverrors.CodeRegistryMismatch,
			fmt.Sprintf("registry declares %d rows but manifest declares %d",
				entry.RowCount, p.Manifest.RowCount))
		f.Details = map[string]interface{}{
			"registry": entry.RowCount,
			"manifest": p.Manifest.RowCount,
		}
		findings = append(findings, f)
	}

	return findings, nil
}

// GatePromotion runs the strict integrity check and returns an error
// when any defect is found, blocking the promotion.
func (c *Integrity) GatePromotion(ctx context.Context, key types.PartitionKey) error {
	findings, err := c.CheckPartition(ctx, key, IntegrityGate)
	if err != nil {
		return err
	}
	for _, f := range findings {
		if f.Severity == SeverityError {
			return goverrors.New(goverrors.ErrCategoryIntegrity, f.Code, f.Message)
		}
	}
	return nil
}
