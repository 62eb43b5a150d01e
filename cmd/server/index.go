package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the retrieval index and persist it",
	Long: `Loads every document in the data directory, embeds its chunks and stores
the result in the database so the next server start can serve it without
re-embedding.`,
	RunE: runReindex,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the documents in the data directory",
	RunE:  runSources,
}

var sourcesJSON bool

func init() {
	sourcesCmd.Flags().BoolVar(&sourcesJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	cmd.Printf("Indexing %s...\n", appConfig.DataDir)
	res, err := a.indexer.Reindex(cmd.Context())
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}

	cmd.Printf("Indexed %d chunks from %d files in %s.\n", res.Chunks, res.Files, res.Elapsed.Round(time.Millisecond))
	for _, path := range res.Skipped {
		cmd.Printf("  skipped %s\n", path)
	}
	return nil
}

func runSources(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.indexer.Restore(cmd.Context()); err != nil {
		cmd.PrintErrf("Warning: could not read persisted index: %v\n", err)
	}
	report, err := a.indexer.Sources(cmd.Context())
	if err != nil {
		return err
	}

	if sourcesJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if len(report.Files) == 0 {
		cmd.Printf("No documents found in %s.\n", appConfig.DataDir)
	}
	for _, f := range report.Files {
		cmd.Printf("%-40s %4d records %4d chunks\n", f.Label, f.Records, f.Chunks)
	}
	for _, path := range report.Skipped {
		cmd.Printf("%-40s skipped\n", path)
	}
	cmd.Printf("\nChunking: %d characters, %d overlap\n", report.ChunkSize, report.ChunkOverlap)
	if report.BuiltAt != nil {
		cmd.Printf("Index: %d chunks (%d dims), model %s, built %s\n", report.IndexedChunks, report.Dimensions, report.IndexModel, report.BuiltAt.Format("2006-01-02 15:04:05"))
	} else {
		cmd.Println("Index: not built")
	}
	return nil
}
