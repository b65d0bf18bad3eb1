package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var registryExportOutput string

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "export and seed the snapshot registry",
}

var registryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "export all registry entries as CSV",
	RunE:  runRegistryExport,
}

var registrySeedCmd = &cobra.Command{
	Use:   "seed <csv>",
	Short: "seed registry entries from a CSV export",
	Long: `Seed loads entries from a CSV produced by "registry export" (or written
by hand for bootstrap). Entries already present are left untouched, so
seeding is safe to repeat.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegistrySeed,
}

func init() {
	registryExportCmd.Flags().StringVarP(&registryExportOutput, "output", "o", "",
		"write the export to a file instead of stdout")

	registryCmd.AddCommand(registryExportCmd)
	registryCmd.AddCommand(registrySeedCmd)
	rootCmd.AddCommand(registryCmd)
}

func runRegistryExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()

	out := os.Stdout
	if registryExportOutput != "" {
		f, err := os.Create(registryExportOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return reg.ExportCSV(cmd.Context(), out)
}

func runRegistrySeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := reg.ImportCSV(cmd.Context(), f)
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d entries\n", n)
	return nil
}
