package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"resume-pipeline/internal/bootstrap"
	"resume-pipeline/internal/pipeline"
	"resume-pipeline/internal/shared/config"
	"resume-pipeline/internal/workflows"
)

var runCommand = &cobra.Command{
	Use:   "run <file>",
	Short: "Run one document through every stage and print the final record",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentCmd,
}

var (
	runName           string
	runAdditionalData string
	runKeepInput      bool
)

func init() {
	runCommand.Flags().StringVarP(&runName, "name", "n", "", "Run name (defaults to default_workflow)")
	runCommand.Flags().StringVar(&runAdditionalData, "additional-data", "", "JSON object merged into the initial record")
	runCommand.Flags().BoolVar(&runKeepInput, "keep-input", false, "Include the base64 document in the output")
	rootCmd.AddCommand(runCommand)
}

type runOutput struct {
	pipeline.Record
	RunInfo workflows.RunInfo `json:"run_info"`
}

func runDocumentCmd(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	ctx := context.Background()
	app, err := bootstrap.Build(ctx, config.Load(), cliLogger())
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(ctx) }()

	res, runErr := app.Workflows.RunSync(ctx, workflows.Submission{
		Name:           runName,
		Filename:       filepath.Base(args[0]),
		ContentType:    contentTypeOf(args[0], content),
		Content:        content,
		AdditionalData: runAdditionalData,
	})
	if res.Info.RunID == "" {
		return runErr
	}
	if !runKeepInput {
		res.Record.Input = nil
	}
	if err := writeJSON(cmd.OutOrStdout(), runOutput{Record: res.Record, RunInfo: res.Info}); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("run %s %s: %w", res.Info.RunID, res.Info.Status, runErr)
	}
	return nil
}

// contentTypeOf prefers the file extension and falls back to sniffing.
func contentTypeOf(path string, content []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return http.DetectContentType(content)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
