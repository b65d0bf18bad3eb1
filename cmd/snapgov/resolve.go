package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/snapgov/snapgov/internal/selection"
	"github.com/snapgov/snapgov/pkg/types"
)

var (
	resolveFormat   string
	resolveStrategy string
	resolveBaseline string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <source> <dataset>",
	Short: "resolve the dataset's selection strategy to concrete dates",
	Long: `Resolve applies the dataset's selection strategy (latest_only,
baseline_plus_latest, or all) to the dataset's registry entries and
prints the snapshot dates a reader should include. Resolution fails
rather than guessing: no usable snapshot, a missing baseline, or an
ambiguous newest date are errors. The configured strategy can be
overridden for one invocation with --strategy.`,
	Args: cobra.ExactArgs(2),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveFormat, "output-format", "text",
		"output format: text, json")
	resolveCmd.Flags().StringVar(&resolveStrategy, "strategy", "",
		"override the configured strategy: latest_only, baseline_plus_latest, all")
	resolveCmd.Flags().StringVar(&resolveBaseline, "baseline", "",
		"baseline date for --strategy baseline_plus_latest (YYYY-MM-DD)")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ref := types.DatasetRef{Source: args[0], Dataset: args[1]}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()

	var strategy types.Strategy
	if resolveStrategy != "" {
		strategy, err = types.ParseStrategy(resolveStrategy, resolveBaseline)
	} else {
		strategy, err = cfg.StrategyFor(ref)
	}
	if err != nil {
		return err
	}
	entries, err := reg.Entries(ctx, ref)
	if err != nil {
		return err
	}
	sel, err := selection.Resolve(ref, strategy, entries)
	if err != nil {
		return err
	}

	switch resolveFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sel)
	case "", "text":
		fmt.Printf("%s resolves %s to %d snapshots:\n", ref, strategy, len(sel.Dates))
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Date", "Status", "Rows"})
		table.SetBorder(false)
		byDate := make(map[string]types.Entry, len(entries))
		for _, e := range entries {
			byDate[e.Date.String()] = e
		}
		for _, d := range sel.Dates {
			e := byDate[d.String()]
			table.Append([]string{d.String(), string(e.Status), fmt.Sprintf("%d", e.RowCount)})
		}
		table.Render()
		return nil
	default:
		return fmt.Errorf("unknown output format %q (must be text or json)", resolveFormat)
	}
}
