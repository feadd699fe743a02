// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// ErrorKind classifies a chunk-level failure (prd003-extraction R4).
type ErrorKind string

const (
	// KindProvider marks an external call that failed after exhausting retries.
	KindProvider ErrorKind = "provider"

	// KindParse marks model output with no recoverable extraction payload.
	KindParse ErrorKind = "parse"
)

// ConfigError reports invalid pipeline parameters. It is always fatal and
// is returned before any chunk is dispatched.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Msg
}

// ConfigErrorf builds a ConfigError with a formatted message.
func ConfigErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// ChunkError records a failure local to one chunk. In "return" mode it is
// surfaced through AnnotatedDocument metadata; in "raise" mode the first
// one propagates out of the whole run. ChunkStart and ChunkEnd preserve the
// document-space bounds of the failing region so a caller can pinpoint it
// without reprocessing.
type ChunkError struct {
	Kind       ErrorKind `json:"kind" yaml:"kind"`
	Message    string    `json:"message" yaml:"message"`
	ChunkIndex int       `json:"chunk_index" yaml:"chunk_index"`
	ChunkStart int       `json:"chunk_start" yaml:"chunk_start"`
	ChunkEnd   int       `json:"chunk_end" yaml:"chunk_end"`
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d [%d, %d): %s error: %s",
		e.ChunkIndex, e.ChunkStart, e.ChunkEnd, e.Kind, e.Message)
}
