// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"github.com/pdiddy/extraction-engine/pkg/types"
)

// aggregate assembles the final document from per-chunk results. Results
// arrive indexed by chunk position, so concatenation preserves document
// order regardless of completion order (prd003-extraction R5.1).
func aggregate(text string, cfg types.ExtractionConfig, providerName string, numChunks int, results []ChunkResult) *types.AnnotatedDocument {
	var exts []types.Extraction
	errs := make(map[int]types.ChunkError)

	for _, res := range results {
		if res.Err != nil {
			errs[res.Index] = *res.Err
			continue
		}
		exts = append(exts, res.Extractions...)
	}

	if cfg.Dedupe {
		exts = Dedupe(exts)
	}

	meta := map[string]any{
		types.MetaModelName:      cfg.Model,
		types.MetaProvider:       providerName,
		types.MetaChunkSize:      cfg.ChunkSize,
		types.MetaChunkOverlap:   cfg.ChunkOverlap,
		types.MetaNumChunks:      numChunks,
		types.MetaNumExtractions: len(exts),
	}
	if len(errs) > 0 {
		meta[types.MetaErrors] = errs
	}

	return &types.AnnotatedDocument{
		Text:        text,
		Extractions: exts,
		Metadata:    meta,
	}
}
