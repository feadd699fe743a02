// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Extraction is a single labeled span proposed by the model. Class and Text
// come from the model output; Interval is filled in by the aligner, or left
// nil when no tier could locate the snippet (prd002-alignment R4.4).
type Extraction struct {
	// Class is the extraction category (e.g. "medication").
	Class string `json:"extraction_class" yaml:"extraction_class"`

	// Text is the snippet as the model reported it. It may differ from the
	// document text in whitespace or casing; Interval indexes the document,
	// not this field.
	Text string `json:"extraction_text" yaml:"extraction_text"`

	// Attributes holds model-provided structured attributes for the span.
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`

	// Interval is the document-space character interval, or nil when the
	// snippet could not be aligned.
	Interval *CharInterval `json:"char_interval,omitempty" yaml:"char_interval,omitempty"`
}

// Example is a few-shot example: an input text with its expected
// extractions. Examples are only used to build the prompt; intervals on
// example extractions are ignored.
type Example struct {
	Text        string       `json:"text" yaml:"text"`
	Extractions []Extraction `json:"extractions" yaml:"extractions"`
}

// Metadata keys present on every AnnotatedDocument (prd003-extraction R6.2).
const (
	MetaModelName      = "model_name"
	MetaProvider       = "provider"
	MetaChunkSize      = "chunk_size"
	MetaChunkOverlap   = "chunk_overlap"
	MetaNumChunks      = "num_chunks"
	MetaNumExtractions = "num_extractions"

	// MetaErrors is present only when chunks failed in "return" mode; its
	// value is a map[int]ChunkError keyed by chunk index.
	MetaErrors = "errors"
)

// AnnotatedDocument is the final pipeline output: the original text, its
// deduplicated document-space extractions, and run metadata.
type AnnotatedDocument struct {
	Text        string         `json:"text" yaml:"text"`
	Extractions []Extraction   `json:"extractions" yaml:"extractions"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Errors returns the per-chunk error map from the metadata, or nil when the
// run completed cleanly.
func (d *AnnotatedDocument) Errors() map[int]ChunkError {
	if d.Metadata == nil {
		return nil
	}
	errs, _ := d.Metadata[MetaErrors].(map[int]ChunkError)
	return errs
}
