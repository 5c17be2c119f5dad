// Command pipeline runs résumé documents through the analysis stages from
// the command line.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "pipeline",
	Short:         "Résumé analysis pipeline",
	Long:          "Extracts text and fields from résumé documents and matches experiences against the reference job catalog.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Write debug logs to stderr")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliLogger keeps stdout free for JSON output.
func cliLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
