package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/snapgov/snapgov/internal/config"
	"github.com/snapgov/snapgov/internal/crosswalk"
	"github.com/snapgov/snapgov/internal/validate"
)

var (
	validateSource       string
	validateFreshness    bool
	validateDeltas       bool
	validateGaps         bool
	validateMapping      bool
	validateCrosswalk    string
	validateCrosswalkCol string
	validateFormat       string
	validateStrict       bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "run governance checks over the lake and registry",
	Long: `Validate runs partition integrity checks over every dataset the
registry knows, plus any opted-in checks: freshness grading, row-count
delta classification, season/week gap detection, and crosswalk mapping
rates. Findings are reported; errors (and warnings with --strict) set a
non-zero exit code.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateSource, "source", "",
		"restrict validation to one source")
	validateCmd.Flags().BoolVar(&validateFreshness, "check-freshness", false,
		"grade current snapshot age against per-source thresholds")
	validateCmd.Flags().BoolVar(&validateDeltas, "report-deltas", false,
		"classify row-count changes between consecutive snapshots")
	validateCmd.Flags().BoolVar(&validateGaps, "detect-gaps", false,
		"detect missing weeks in season coverage")
	validateCmd.Flags().BoolVar(&validateMapping, "check-mapping", false,
		"check crosswalk mapping rates (requires --crosswalk)")
	validateCmd.Flags().StringVar(&validateCrosswalk, "crosswalk", "",
		"path to the crosswalk CSV for --check-mapping")
	validateCmd.Flags().StringVar(&validateCrosswalkCol, "crosswalk-column", "",
		"identity column in the crosswalk (defaults to the configured identity_column)")
	validateCmd.Flags().StringVar(&validateFormat, "output-format", "text",
		"report format: text, json")
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false,
		"treat warnings as failures")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()

	opts := validate.Options{
		Source:         validateSource,
		CheckFreshness: validateFreshness,
		ReportDeltas:   validateDeltas,
		DetectGaps:     validateGaps,
		CheckMapping:   validateMapping,
	}
	if validateMapping {
		if validateCrosswalk == "" {
			return fmt.Errorf("--check-mapping requires --crosswalk")
		}
		col := validateCrosswalkCol
		if col == "" {
			col = firstIdentityColumn(cfg, validateSource)
		}
		if col == "" {
			return fmt.Errorf("no identity column configured for mapping checks; set --crosswalk-column or identity_column in config")
		}
		tbl, err := crosswalk.Load(ctx, validateCrosswalk, col)
		if err != nil {
			return err
		}
		opts.Crosswalk = tbl
	}

	runner := validate.NewRunner(cfg, store, reg, log)
	report, err := runner.Run(ctx, opts)
	if err != nil {
		return err
	}

	if err := renderReport(report, validateFormat); err != nil {
		return err
	}
	if report.Failed(validateStrict) {
		os.Exit(1)
	}
	return nil
}

// firstIdentityColumn finds the identity column from the dataset
// configuration, covering the common case of one identity space per
// source. Mixed identity columns need --crosswalk-column.
func firstIdentityColumn(cfg *config.Config, sourceFilter string) string {
	sources := make([]string, 0, len(cfg.Sources))
	for s := range cfg.Sources {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		if sourceFilter != "" && s != sourceFilter {
			continue
		}
		sc := cfg.Sources[s]
		datasets := make([]string, 0, len(sc.Datasets))
		for d := range sc.Datasets {
			datasets = append(datasets, d)
		}
		sort.Strings(datasets)
		for _, d := range datasets {
			if col := sc.Datasets[d].IdentityColumn; col != "" {
				return col
			}
		}
	}
	return ""
}
