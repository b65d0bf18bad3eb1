package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/snapgov/snapgov/internal/partition"
	"github.com/snapgov/snapgov/internal/registry"
	"github.com/snapgov/snapgov/internal/validate"
	"github.com/snapgov/snapgov/pkg/types"
)

var (
	promoteRowCount      int64
	promoteRetain        bool
	promoteSkipIntegrity bool
	promoteReason        string
)

var promoteCmd = &cobra.Command{
	Use:   "promote <source> <dataset> <date>",
	Short: "promote a snapshot to current",
	Long: `Promote installs a snapshot as the current one for its dataset. The
partition must pass the integrity gate first (single data file, valid
manifest, matching row counts); the previous current snapshot is
superseded, or retained as a historical baseline with --retain-baseline.
The whole sequence is one transaction: re-running an interrupted or
already-applied promotion is safe.`,
	Args: cobra.ExactArgs(3),
	RunE: runPromote,
}

func init() {
	promoteCmd.Flags().Int64Var(&promoteRowCount, "row-count", -1,
		"row count to register (default: taken from the manifest)")
	promoteCmd.Flags().BoolVar(&promoteRetain, "retain-baseline", false,
		"keep the previous current snapshot as a historical baseline")
	promoteCmd.Flags().BoolVar(&promoteSkipIntegrity, "skip-integrity", false,
		"skip the integrity gate (not recommended)")
	promoteCmd.Flags().StringVar(&promoteReason, "reason", "",
		"reason recorded on the audit trail")

	rootCmd.AddCommand(promoteCmd)
}

func runPromote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	date, err := types.ParseSnapshotDate(args[2])
	if err != nil {
		return err
	}
	key := types.PartitionKey{Source: args[0], Dataset: args[1], Date: date}
	if err := key.Validate(); err != nil {
		return err
	}

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

	if !promoteSkipIntegrity {
		gate := &validate.Integrity{Store: store, Registry: reg}
		if err := gate.GatePromotion(ctx, key); err != nil {
			return fmt.Errorf("integrity gate failed: %w", err)
		}
	} else {
		log.Warn().Str("partition", key.Path()).Msg("integrity gate skipped")
	}

	entry := types.Entry{
		Source:  key.Source,
		Dataset: key.Dataset,
		Date:    key.Date,
		Notes:   promoteReason,
	}
	if promoteRowCount >= 0 {
		entry.RowCount = promoteRowCount
	} else {
		m, err := partition.ReadManifest(ctx, store, key)
		if err != nil {
			return fmt.Errorf("cannot determine row count: %w", err)
		}
		entry.RowCount = m.RowCount
		entry.CoverageStartSeason = m.CoverageStartSeason
		entry.CoverageEndSeason = m.CoverageEndSeason
	}

	res, err := reg.Promote(ctx, entry, registry.PromoteOptions{
		RetainAsBaseline: promoteRetain,
		Reason:           promoteReason,
	})
	if err != nil {
		return err
	}

	if res.NoOp {
		fmt.Printf("%s is already current with %s rows, nothing to do\n",
			key.Path(), humanize.Comma(res.Promoted.RowCount))
		return nil
	}
	fmt.Printf("promoted %s to current (%s rows)\n",
		key.Path(), humanize.Comma(res.Promoted.RowCount))
	if res.Demoted != nil {
		fmt.Printf("previous current %s is now %s\n",
			res.Demoted.Date, res.Demoted.Status)
	}
	return nil
}
