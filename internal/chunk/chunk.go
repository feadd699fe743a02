// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package chunk divides a document into overlapping windows sized for a
// single model call and maps chunk-local intervals back to document space.
// Implements: prd001-chunking (R1-R4);
//
//	docs/ARCHITECTURE § Chunking.
package chunk

import (
	"github.com/pdiddy/extraction-engine/pkg/types"
)

// Chunk is one contiguous window of the source document. Text is a
// substring of the document; the document itself is never copied or
// mutated. DocEnd-DocStart always equals len(Text).
type Chunk struct {
	Text     string
	DocStart int
	DocEnd   int
	Index    int
}

// ToDocument translates a chunk-local interval into document space by
// adding the chunk's start offset. A nil interval stays nil: an unaligned
// extraction has no position in either space.
func (c Chunk) ToDocument(iv *types.CharInterval) *types.CharInterval {
	if iv == nil {
		return nil
	}
	shifted := iv.Shift(c.DocStart)
	return &shifted
}

// Split divides text into windows of size characters, each starting
// overlap characters before the previous one ends. The final window is
// clipped to the end of the text and may be shorter. Every byte of text is
// covered by at least one window; bytes inside an overlap are covered by
// two (R2.1). An empty text yields no chunks.
//
// Split is a pure function: it fails only on invalid parameters, with a
// ConfigError (R1.2).
func Split(text string, size, overlap int) ([]Chunk, error) {
	if size <= 0 {
		return nil, types.ConfigErrorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, types.ConfigErrorf("chunk overlap must be non-negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, types.ConfigErrorf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, size)
	}

	if len(text) == 0 {
		return nil, nil
	}

	step := size - overlap
	var chunks []Chunk
	for start := 0; start < len(text); start += step {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, Chunk{
				Text:     text[start:],
				DocStart: start,
				DocEnd:   len(text),
				Index:    len(chunks),
			})
			break
		}
		chunks = append(chunks, Chunk{
			Text:     text[start:end],
			DocStart: start,
			DocEnd:   end,
			Index:    len(chunks),
		})
	}
	return chunks, nil
}
