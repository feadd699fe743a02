// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/extraction-engine/internal/align"
	"github.com/pdiddy/extraction-engine/internal/chunk"
	"github.com/pdiddy/extraction-engine/internal/parse"
	"github.com/pdiddy/extraction-engine/internal/prompt"
	"github.com/pdiddy/extraction-engine/internal/provider"
	"github.com/pdiddy/extraction-engine/pkg/types"
)

// processor handles one chunk end to end: prompt, provider call with
// retry, parse, align, offset-map. It is stateless across chunks and safe
// for concurrent use by the schedulers.
type processor struct {
	provider    provider.Provider
	description string
	examples    []types.Example
	cfg         types.ExtractionConfig
	aligner     align.Aligner
	logger      *zap.Logger
}

// process produces the ChunkResult for one chunk. Failures are captured
// into the result, never returned: the schedulers decide whether a
// captured error aborts the run (prd003-extraction R4.2).
func (p *processor) process(ctx context.Context, c chunk.Chunk) ChunkResult {
	res := ChunkResult{Index: c.Index}

	rendered, err := prompt.Build(p.description, p.examples, c.Text)
	if err != nil {
		res.Err = chunkError(c, types.KindParse, err)
		return res
	}

	raw, err := p.invokeWithRetry(ctx, c, rendered)
	if err != nil {
		res.Err = chunkError(c, types.KindProvider, err)
		return res
	}
	p.logger.Debug("raw model output", zap.Int("chunk", c.Index), zap.String("output", raw))

	candidates, err := parse.Extractions(raw)
	if err != nil {
		// Deterministic given the raw output; never retried (R3.4).
		res.Err = chunkError(c, types.KindParse, err)
		return res
	}

	for _, cand := range candidates {
		iv := p.aligner.Align(cand.Text, c.Text)
		if iv == nil {
			p.logger.Debug("unaligned extraction",
				zap.Int("chunk", c.Index), zap.String("text", cand.Text))
		}
		res.Extractions = append(res.Extractions, types.Extraction{
			Class:      cand.Class,
			Text:       cand.Text,
			Attributes: cand.Attributes,
			Interval:   c.ToDocument(iv),
		})
	}
	return res
}

// invokeWithRetry calls the provider, retrying transient failures up to
// cfg.MaxRetries additional attempts with the configured backoff schedule.
// Non-transient failures stop immediately (R3.2, R3.3).
func (p *processor) invokeWithRetry(ctx context.Context, c chunk.Chunk, rendered string) (string, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoffDelay(p.cfg.Backoff, p.cfg.RetryBackoff, attempt)):
			}
		}

		raw, err := p.provider.Invoke(ctx, rendered)
		attempts++
		if err == nil {
			return raw, nil
		}
		lastErr = err
		p.logger.Warn("provider call failed",
			zap.Int("chunk", c.Index),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if !provider.IsTransient(err) {
			break
		}
	}
	return "", fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// backoffDelay computes the wait before retry attempt n (n >= 1).
func backoffDelay(policy types.BackoffPolicy, base time.Duration, attempt int) time.Duration {
	if policy == types.BackoffLinear {
		return base * time.Duration(attempt)
	}
	return base << (attempt - 1)
}

func chunkError(c chunk.Chunk, kind types.ErrorKind, err error) *types.ChunkError {
	return &types.ChunkError{
		Kind:       kind,
		Message:    err.Error(),
		ChunkIndex: c.Index,
		ChunkStart: c.DocStart,
		ChunkEnd:   c.DocEnd,
	}
}
