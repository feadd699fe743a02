// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package annotations

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/extraction-engine/pkg/types"
)

// ExportEntry holds one extraction with document context for export (R4.3).
type ExportEntry struct {
	DocumentID   string               `json:"document_id" yaml:"document_id"`
	DocumentName string               `json:"document_name,omitempty" yaml:"document_name,omitempty"`
	Class        string               `json:"extraction_class" yaml:"extraction_class"`
	Text         string               `json:"extraction_text" yaml:"extraction_text"`
	Attributes   map[string]any       `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Interval     *types.CharInterval  `json:"char_interval,omitempty" yaml:"char_interval,omitempty"`
}

const exportLimit = 100000

// ExportYAML writes matching extractions to annotations/index/export.yaml.
// It supports the same filters as Query (R4.4).
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions) error {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return err
	}

	path := filepath.Join(s.annotationsDir, indexDir, "export.yaml")
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ExportJSON writes matching extractions to annotations/index/export.json.
// It supports the same filters as Query (R4.4).
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions) error {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return err
	}

	path := filepath.Join(s.annotationsDir, indexDir, "export.json")
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) exportEntries(ctx context.Context, opts QueryOptions) ([]ExportEntry, error) {
	opts.MaxResults = exportLimit
	results, err := s.Query(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	entries := make([]ExportEntry, len(results))
	for i, r := range results {
		entries[i] = ExportEntry{
			DocumentID:   r.DocumentID,
			DocumentName: r.DocumentName,
			Class:        r.Class,
			Text:         r.Text,
			Attributes:   r.Attributes,
			Interval:     r.Interval,
		}
	}

	return entries, nil
}
