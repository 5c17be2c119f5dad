package main

import (
	"context"

	"github.com/spf13/cobra"

	"resume-pipeline/internal/bootstrap"
	"resume-pipeline/internal/catalog"
	"resume-pipeline/internal/shared/config"
)

var catalogCommand = &cobra.Command{
	Use:   "catalog",
	Short: "Load the reference job catalog and print its diagnostics",
	Args:  cobra.NoArgs,
	RunE:  catalogCmd,
}

var (
	catalogPath  string
	catalogLimit int
)

func init() {
	catalogCommand.Flags().StringVar(&catalogPath, "file", "", "Catalog file (defaults to METIERS_FILE_PATH)")
	catalogCommand.Flags().IntVar(&catalogLimit, "show", 0, "Also print the first N entries")
	rootCmd.AddCommand(catalogCommand)
}

type catalogOutput struct {
	catalog.Diagnostics
	Sample []catalog.Category `json:"sample,omitempty"`
}

func catalogCmd(cmd *cobra.Command, _ []string) error {
	cfg := config.Load().Catalog
	if catalogPath != "" {
		cfg.Path = catalogPath
	}
	cache := catalog.NewCache(bootstrap.CatalogOptions(cfg, cliLogger()))

	entries, err := cache.Entries(context.Background())
	if err != nil {
		return err
	}
	out := catalogOutput{Diagnostics: cache.Diagnostics()}
	if catalogLimit > 0 {
		out.Sample = entries[:min(catalogLimit, len(entries))]
	}
	return writeJSON(cmd.OutOrStdout(), out)
}
