package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/snapgov/snapgov/internal/validate"
)

var (
	auditSource string
	auditFormat string
	auditStrict bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "cross-check the registry against storage",
	Long: `Audit finds disagreements between the registry and the lake in both
directions: registered snapshots whose partition directory is gone, and
partition directories the registry has never heard of.`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditSource, "source", "",
		"restrict the audit to one source")
	auditCmd.Flags().StringVar(&auditFormat, "output-format", "text",
		"report format: text, json")
	auditCmd.Flags().BoolVar(&auditStrict, "strict", false,
		"treat warnings as failures")

	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
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

	runner := validate.NewRunner(cfg, store, reg, log)
	report, err := runner.Audit(ctx, auditSource)
	if err != nil {
		return err
	}
	if err := renderReport(report, auditFormat); err != nil {
		return err
	}
	if report.Failed(auditStrict) {
		os.Exit(1)
	}
	return nil
}
