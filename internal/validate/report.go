// Package validate implements the governance checks that run over the
// lake and the registry: partition integrity, snapshot freshness,
// row-count deltas, coverage gaps, and crosswalk mapping rates. Checks
// never mutate anything; they produce findings.
package validate

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"

	"github.com/snapgov/snapgov/pkg/types"
)

// Severity grades a finding.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Check names the validation a finding came from.
type Check string

const (
	CheckIntegrity Check = "integrity"
	CheckFreshness Check = "freshness"
	CheckDelta     Check = "delta"
	CheckGap       Check = "gap"
	CheckMapping   Check = "mapping"
	CheckAudit     Check = "audit"
	CheckStrategy  Check = "strategy"
)

// Finding is one validation observation.
type Finding struct {
	Severity Severity               `json:"severity"`
	Check    Check                  `json:"check"`
	Source   string                 `json:"source"`
	Dataset  string                 `json:"dataset"`
	Date     string                 `json:"date,omitempty"`
	Code     string                 `json:"code,omitempty"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Report aggregates the findings of one validation run. Add is safe
// for concurrent use by the runner's workers.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Datasets   int       `json:"datasets_checked"`
	Findings   []Finding `json:"findings"`

	mu sync.Mutex
}

// NewReport starts a report for one validation run.
func NewReport() *Report {
	return &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
}

// Add appends a finding.
func (r *Report) Add(f Finding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Findings = append(r.Findings, f)
}

// AddAll appends a batch of findings.
func (r *Report) AddAll(fs []Finding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Findings = append(r.Findings, fs...)
}

// DatasetDone counts one completed dataset.
func (r *Report) DatasetDone() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Datasets++
}

// Finish stamps the end of the run and orders findings for stable
// output.
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now().UTC()
	sort.SliceStable(r.Findings, func(i, j int) bool {
		a, b := r.Findings[i], r.Findings[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Dataset != b.Dataset {
			return a.Dataset < b.Dataset
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Check < b.Check
	})
}

// Counts returns the number of findings per severity.
func (r *Report) Counts() (errors, warnings, infos int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.Findings {
		switch f.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		default:
			infos++
		}
	}
	return errors, warnings, infos
}

// Failed reports whether the run should fail the caller. Errors always
// fail; warnings fail only in strict mode.
func (r *Report) Failed(strict bool) bool {
	errors, warnings, _ := r.Counts()
	return errors > 0 || (strict && warnings > 0)
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText renders the report as a human-readable table plus summary.
func (r *Report) WriteText(w io.Writer) error {
	errors, warnings, infos := r.Counts()

	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(w, "validation run %s\n", r.RunID)
	if len(r.Findings) == 0 {
		fmt.Fprintf(w, "all checks passed across %d datasets\n", r.Datasets)
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Severity", "Check", "Dataset", "Date", "Message"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for _, f := range r.Findings {
		table.Append([]string{
			string(f.Severity),
			string(f.Check),
			f.Source + "/" + f.Dataset,
			f.Date,
			f.Message,
		})
	}
	table.Render()

	fmt.Fprintf(w, "\n%d datasets checked, %d errors, %d warnings, %d notices",
		r.Datasets, errors, warnings, infos)
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, " (finished %s)", humanize.Time(r.FinishedAt))
	}
	fmt.Fprintln(w)
	return nil
}

// finding is a small helper for building findings against one
// partition.
func finding(sev Severity, check Check, key types.PartitionKey, code, msg string) Finding {
	return Finding{
		Severity: sev,
		Check:    check,
		Source:   key.Source,
		Dataset:  key.Dataset,
		Date:     key.Date.String(),
		Code:     code,
		Message:  msg,
	}
}

// datasetFinding builds a finding scoped to a whole dataset.
func datasetFinding(sev Severity, check Check, ref types.DatasetRef, code, msg string) Finding {
	return Finding{
		Severity: sev,
		Check:    check,
		Source:   ref.Source,
		Dataset:  ref.Dataset,
		Code:     code,
		Message:  msg,
	}
}
