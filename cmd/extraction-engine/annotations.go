// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/extraction-engine/internal/annotations"
	"github.com/pdiddy/extraction-engine/pkg/types"
)

var annotationsCmd = &cobra.Command{
	Use:   "annotations",
	Short: "Manage stored extraction runs (query, show, export)",
	Long: `Annotations manages a local SQLite store of past extraction runs. Use
subcommands to search stored extractions, show a saved run, or export.`,
}

// --- query subcommand ---

var annotationsQueryCmd = &cobra.Command{
	Use:   "query [query]",
	Short: "Search stored extractions with full-text search and filters",
	Long: `Query searches stored extractions using FTS5 full-text search,
structured filters (class, document), or a combination of both. Results
include the grounded character interval and the source document.

Use --context with a result's document ID and offsets to view the
surrounding source passage.`,
	RunE: runAnnotationsQuery,
}

func runAnnotationsQuery(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	// Context mode: show the source passage around an interval.
	if docID, _ := cmd.Flags().GetString("context"); docID != "" {
		start, _ := cmd.Flags().GetInt("start")
		end, _ := cmd.Flags().GetInt("end")
		pad, _ := cmd.Flags().GetInt("pad")
		iv, err := types.NewCharInterval(start, end)
		if err != nil {
			return err
		}
		text, err := store.Context(context.Background(), docID, *iv, pad)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	}

	opts := queryOptsFromFlags(cmd, args)
	if opts.IsEmpty() {
		return fmt.Errorf("query or filter required: provide a search query, --class, or --document")
	}

	results, err := store.Query(context.Background(), opts)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatQueryOutput(results, jsonOutput)
}

func formatQueryOutput(results []annotations.QueryResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-16s  %-40s  %-12s  %s\n",
		"Rank", "Class", "Text", "Interval", "Document")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 96))

	for i, r := range results {
		text := r.Text
		if len(text) > 40 {
			text = text[:37] + "..."
		}
		class := r.Class
		if len(class) > 16 {
			class = class[:13] + "..."
		}
		interval := "-"
		if r.Interval != nil {
			interval = r.Interval.String()
		}
		doc := r.DocumentName
		if doc == "" {
			doc = r.DocumentID
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-16s  %-40s  %-12s  %s\n",
			i+1, class, text, interval, doc)
	}

	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- show subcommand ---

var annotationsShowCmd = &cobra.Command{
	Use:   "show [document-id]",
	Short: "Print a stored extraction run",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnnotationsShow,
}

func runAnnotationsShow(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	data, err := yaml.Marshal(run)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

// --- export subcommand ---

var annotationsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored extractions to YAML or JSON",
	Long: `Export writes stored extractions (or a filtered subset) to
annotations/index/export.yaml or export.json. Supports the same filter
flags as query for partial exports.`,
	RunE: runAnnotationsExport,
}

func runAnnotationsExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)

	switch format {
	case "yaml", "":
		if err := store.ExportYAML(context.Background(), opts); err != nil {
			return err
		}
		fmt.Println("Exported to annotations/index/export.yaml")
	case "json":
		if err := store.ExportJSON(context.Background(), opts); err != nil {
			return err
		}
		fmt.Println("Exported to annotations/index/export.json")
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}

	return nil
}

// --- shared helpers ---

func openStore(cmd *cobra.Command) (*annotations.Store, error) {
	annotationsDir, _ := cmd.Flags().GetString("annotations-dir")
	if annotationsDir == "" {
		annotationsDir = "annotations"
	}
	maxResults, _ := cmd.Flags().GetInt("max-results")

	return annotations.NewStore(types.StoreConfig{
		AnnotationsDir: annotationsDir,
		MaxResults:     maxResults,
	})
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) annotations.QueryOptions {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}

	class, _ := cmd.Flags().GetString("class")
	docID, _ := cmd.Flags().GetString("document")
	unaligned, _ := cmd.Flags().GetBool("unaligned")
	limit, _ := cmd.Flags().GetInt("limit")

	return annotations.QueryOptions{
		Query:      queryText,
		Class:      class,
		DocumentID: docID,
		Unaligned:  unaligned,
		MaxResults: limit,
	}
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	annotationsCmd.PersistentFlags().String("annotations-dir", "annotations", "base directory for the annotation store (contains index/)")
	annotationsCmd.PersistentFlags().Int("max-results", 20, "maximum number of query results")

	// Query flags.
	annotationsQueryCmd.Flags().String("query", "", "full-text search query")
	annotationsQueryCmd.Flags().String("class", "", "filter by extraction class")
	annotationsQueryCmd.Flags().String("document", "", "filter by document ID")
	annotationsQueryCmd.Flags().Bool("unaligned", false, "only extractions the aligner could not place")
	annotationsQueryCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	annotationsQueryCmd.Flags().String("context", "", "show source context for a document ID (with --start/--end)")
	annotationsQueryCmd.Flags().Int("start", 0, "interval start for --context")
	annotationsQueryCmd.Flags().Int("end", 0, "interval end for --context")
	annotationsQueryCmd.Flags().Int("pad", 80, "bytes of surrounding context for --context")
	annotationsQueryCmd.Flags().Bool("json", false, "output results as JSON")

	// Show flags.
	annotationsShowCmd.Flags().Bool("json", false, "output the run as JSON")

	// Export flags.
	annotationsExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	annotationsExportCmd.Flags().String("query", "", "full-text search filter for partial export")
	annotationsExportCmd.Flags().String("class", "", "filter by extraction class for partial export")
	annotationsExportCmd.Flags().String("document", "", "filter by document ID for partial export")
	annotationsExportCmd.Flags().Bool("unaligned", false, "only export extractions the aligner could not place")
	annotationsExportCmd.Flags().Int("limit", 0, "maximum extractions to export (0 = all)")

	// Wire subcommands.
	annotationsCmd.AddCommand(annotationsQueryCmd)
	annotationsCmd.AddCommand(annotationsShowCmd)
	annotationsCmd.AddCommand(annotationsExportCmd)

	rootCmd.AddCommand(annotationsCmd)
}
