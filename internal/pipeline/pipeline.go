// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline turns a document plus a model-calling capability into a
// single grounded result set: it chunks the document, dispatches chunks
// under bounded concurrency, parses and aligns each chunk's raw output,
// and aggregates per-chunk results into one AnnotatedDocument.
//
// All in-process work (splitting, parsing, aligning, deduping) is
// synchronous; the only blocking points are the provider call and retry
// backoff waits. Concurrency lives entirely in the two schedulers, which
// share the same chunk processor, so both entry points produce identical
// logical results.
// Implements: prd003-extraction (R1-R6);
//
//	docs/ARCHITECTURE § Pipeline.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/pdiddy/extraction-engine/internal/chunk"
	"github.com/pdiddy/extraction-engine/internal/provider"
	"github.com/pdiddy/extraction-engine/pkg/types"
)

// Options configures one extraction run.
type Options struct {
	// PromptDescription tells the model what to extract.
	PromptDescription string

	// Examples are few-shot examples rendered into every chunk's prompt.
	Examples []types.Example

	// Config holds the pipeline knobs. Zero values take defaults; invalid
	// combinations fail with a ConfigError before any chunk is dispatched.
	Config types.ExtractionConfig

	// Logger receives per-chunk diagnostics. Nil means no logging. The
	// logger is per-run state, so concurrent pipelines can run at
	// different verbosity without interfering.
	Logger *zap.Logger
}

// ChunkResult is the outcome for one chunk: document-space extractions or
// a recorded error, never both.
type ChunkResult struct {
	Index       int
	Extractions []types.Extraction
	Err         *types.ChunkError
}

// Extract runs the pipeline with a fixed-size worker pool claiming one
// chunk at a time (prd003-extraction R5.1).
//
// In "return" mode the result is always a usable AnnotatedDocument;
// chunk-level failures appear only under metadata["errors"]. In "raise"
// mode the first chunk failure in completion order is returned as the
// error and no document is produced. A ConfigError is returned before any
// provider traffic regardless of mode.
func Extract(ctx context.Context, text string, p provider.Provider, opts Options) (*types.AnnotatedDocument, error) {
	return run(ctx, text, p, opts, runPool)
}

// ExtractBounded runs the pipeline with a bounded number of concurrently
// outstanding provider calls instead of a dedicated worker pool
// (prd003-extraction R5.2). Results are identical to Extract for the same
// inputs.
func ExtractBounded(ctx context.Context, text string, p provider.Provider, opts Options) (*types.AnnotatedDocument, error) {
	return run(ctx, text, p, opts, runBounded)
}

func run(ctx context.Context, text string, p provider.Provider, opts Options, schedule scheduler) (*types.AnnotatedDocument, error) {
	cfg := opts.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, types.ConfigErrorf("provider must not be nil")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	chunks, err := chunk.Split(text, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	logger.Debug("document split",
		zap.Int("num_chunks", len(chunks)),
		zap.Int("chunk_size", cfg.ChunkSize),
		zap.Int("chunk_overlap", cfg.ChunkOverlap))

	proc := &processor{
		provider:    p,
		description: opts.PromptDescription,
		examples:    opts.Examples,
		cfg:         cfg,
		logger:      logger,
	}

	failFast := cfg.ErrorMode == types.ErrorModeRaise
	results, err := schedule(ctx, chunks, cfg.MaxWorkers, failFast, proc.process)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return aggregate(text, cfg, p.Name(), len(chunks), results), nil
}
