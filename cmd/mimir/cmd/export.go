package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mimir-go/internal/storage/app/export"
	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <index>",
		Short: "Write every document of an index as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var w io.Writer = cmd.OutOrStdout()
			if output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output: %w", err)
				}
				defer file.Close()
				w = file
			}

			n, err := export.WriteJSONLines(json.NewEncoder(w), export.ListDocuments[json.RawMessage](cmd.Context(), a.storage, args[0]))
			a.logger.Info("Export finished", "index", args[0], "documents", n)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file (- for stdout)")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "search <index or alias>...",
		Short: "Run a query DSL search and print the matching documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hits, err := a.storage.SearchDocuments(cmd.Context(), args, query)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, hit := range hits {
				if err := enc.Encode(hit); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", `{"query":{"match_all":{}}}`, "Query DSL body")
	return cmd
}

func newPipelineCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage ingest pipelines",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install the pipeline stamping documents with indexed_at",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.storage.EnsureIndexedAtPipeline(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <id> <file>",
		Short: "Install an ingest pipeline from a JSON definition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read pipeline: %w", err)
			}
			return a.storage.AddPipeline(cmd.Context(), args[0], data)
		},
	})

	return cmd
}
