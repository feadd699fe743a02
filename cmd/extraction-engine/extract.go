// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/extraction-engine/internal/annotations"
	"github.com/pdiddy/extraction-engine/internal/pipeline"
	"github.com/pdiddy/extraction-engine/internal/provider"
	"github.com/pdiddy/extraction-engine/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Run grounded extraction over a document",
	Long: `Extract splits the document into chunks, sends each chunk to the model
provider with the extraction prompt, parses the replies, and aligns every
extracted span back to character offsets in the source text.

The document is read from the file argument, or from stdin when the
argument is "-" or absent. Results are written as YAML or JSON; --save
also records the run in the annotation store.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	text, name, err := readDocument(args)
	if err != nil {
		return err
	}

	promptDesc, _ := cmd.Flags().GetString("prompt")
	if promptDesc == "" {
		return fmt.Errorf("--prompt is required: describe what to extract")
	}

	examples, err := loadExamples(cmd)
	if err != nil {
		return err
	}

	cfg, err := extractionConfig(cmd)
	if err != nil {
		return err
	}

	p, err := provider.New(cfg.ProviderConfig)
	if err != nil {
		return err
	}

	verbosity, _ := cmd.Flags().GetCount("verbose")
	logger := newLogger(verbosity)
	defer logger.Sync()

	doc, err := pipeline.Extract(context.Background(), text, p, pipeline.Options{
		PromptDescription: promptDesc,
		Examples:          examples,
		Config:            cfg,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	for idx, ce := range doc.Errors() {
		fmt.Fprintf(os.Stderr, "warning: chunk %d failed: %s\n", idx, ce.Message)
	}

	if save, _ := cmd.Flags().GetBool("save"); save {
		annotationsDir, _ := cmd.Flags().GetString("annotations-dir")
		store, err := annotations.NewStore(types.StoreConfig{AnnotationsDir: annotationsDir})
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := store.Save(context.Background(), name, doc)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved run %s\n", id)
	}

	return writeDocument(cmd, doc)
}

// readDocument returns the document text and a name for the run.
func readDocument(args []string) (string, string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), "stdin", nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", fmt.Errorf("reading document: %w", err)
	}
	return string(data), args[0], nil
}

// loadExamples reads few-shot examples from the --examples file. The file
// holds a list of Example records in YAML or JSON.
func loadExamples(cmd *cobra.Command) ([]types.Example, error) {
	path, _ := cmd.Flags().GetString("examples")
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading examples: %w", err)
	}

	var examples []types.Example
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &examples); err != nil {
			return nil, fmt.Errorf("parsing examples: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &examples); err != nil {
			return nil, fmt.Errorf("parsing examples: %w", err)
		}
	}
	return examples, nil
}

func extractionConfig(cmd *cobra.Command) (types.ExtractionConfig, error) {
	model, _ := cmd.Flags().GetString("model")
	providerName, _ := cmd.Flags().GetString("provider")
	baseURL, _ := cmd.Flags().GetString("base-url")
	apiKey, _ := cmd.Flags().GetString("api-key")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	chunkOverlap, _ := cmd.Flags().GetInt("chunk-overlap")
	workers, _ := cmd.Flags().GetInt("workers")
	maxRetries, _ := cmd.Flags().GetInt("max-retries")
	retryBackoff, _ := cmd.Flags().GetDuration("retry-backoff")
	backoff, _ := cmd.Flags().GetString("backoff")
	errorMode, _ := cmd.Flags().GetString("error-mode")
	dedupe, _ := cmd.Flags().GetBool("dedupe")

	if model == "" {
		return types.ExtractionConfig{}, fmt.Errorf("--model is required")
	}

	cfg := types.ExtractionConfig{
		ProviderConfig: types.ProviderConfig{
			Provider: types.ProviderName(providerName),
			Model:    model,
			BaseURL:  baseURL,
			Timeout:  timeout,
		},
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		MaxWorkers:   workers,
		MaxRetries:   maxRetries,
		RetryBackoff: retryBackoff,
		Backoff:      types.BackoffPolicy(backoff),
		ErrorMode:    types.ErrorMode(errorMode),
		Dedupe:       dedupe,
	}
	cfg.APIKey = resolveAPIKey(cfg.Provider, apiKey)
	return cfg, nil
}

// resolveAPIKey picks the key file matching the provider when no key was
// given on the command line.
func resolveAPIKey(p types.ProviderName, flagKey string) string {
	switch p {
	case types.ProviderOpenAI:
		if key := secretDefault("openai-api-key", flagKey); key != "" {
			return key
		}
		return secretDefault("openrouter-api-key", flagKey)
	case types.ProviderAnthropic:
		return secretDefault("anthropic-api-key", flagKey)
	default:
		if key := secretDefault("anthropic-api-key", flagKey); key != "" {
			return key
		}
		return secretDefault("openrouter-api-key", flagKey)
	}
}

func writeDocument(cmd *cobra.Command, doc *types.AnnotatedDocument) error {
	format, _ := cmd.Flags().GetString("format")
	outPath, _ := cmd.Flags().GetString("out")

	var data []byte
	var err error
	switch format {
	case "yaml", "":
		data, err = yaml.Marshal(doc)
	case "json":
		data, err = json.MarshalIndent(doc, "", "  ")
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	if outPath == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", outPath)
	return nil
}

func init() {
	extractCmd.Flags().String("prompt", "", "description of what to extract (required)")
	extractCmd.Flags().String("examples", "", "YAML or JSON file of few-shot examples")
	extractCmd.Flags().String("model", "", "model identifier (required)")
	extractCmd.Flags().String("provider", "", "provider: anthropic or openai (inferred from model when empty)")
	extractCmd.Flags().String("base-url", "", "override the provider endpoint URL")
	extractCmd.Flags().String("api-key", "", "API key (default: .secrets/ key file for the provider)")
	extractCmd.Flags().Duration("timeout", 0, "per-request HTTP timeout (0 = provider default)")
	extractCmd.Flags().Int("chunk-size", types.DefaultChunkSize, "chunk window size in characters")
	extractCmd.Flags().Int("chunk-overlap", types.DefaultChunkOverlap, "overlap between consecutive chunks")
	extractCmd.Flags().Int("workers", types.DefaultMaxWorkers, "maximum concurrent chunk requests")
	extractCmd.Flags().Int("max-retries", types.DefaultMaxRetries, "retries per chunk on transient provider failures")
	extractCmd.Flags().Duration("retry-backoff", time.Second, "base delay between retry attempts")
	extractCmd.Flags().String("backoff", "exponential", "retry backoff policy: exponential or linear")
	extractCmd.Flags().String("error-mode", "return", "chunk failure handling: return (partial results) or raise (abort)")
	extractCmd.Flags().Bool("dedupe", false, "merge duplicate extractions from chunk overlap")
	extractCmd.Flags().String("format", "yaml", "output format: yaml or json")
	extractCmd.Flags().String("out", "", "output file (default: stdout)")
	extractCmd.Flags().Bool("save", false, "record the run in the annotation store")
	extractCmd.Flags().String("annotations-dir", "annotations", "base directory for the annotation store")

	rootCmd.AddCommand(extractCmd)
}
