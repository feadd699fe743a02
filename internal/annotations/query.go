// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package annotations

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/extraction-engine/pkg/types"
)

// QueryOptions holds parameters for annotation queries (R3).
type QueryOptions struct {
	// Query is the FTS5 full-text search string over extraction text (R3.1).
	Query string

	// Class filters by extraction class (R3.2).
	Class string

	// DocumentID filters by document (R3.3).
	DocumentID string

	// Unaligned restricts results to extractions with no grounded
	// interval, for reviewing spans the aligner could not place.
	Unaligned bool

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// IsEmpty reports whether the query has no search terms or filters.
func (q QueryOptions) IsEmpty() bool {
	return q.Query == "" && q.Class == "" && q.DocumentID == "" && !q.Unaligned
}

// QueryResult is a stored extraction with its document context (R3.4).
type QueryResult struct {
	types.Extraction `yaml:",inline"`
	DocumentID       string `json:"document_id" yaml:"document_id"`
	DocumentName     string `json:"document_name" yaml:"document_name"`
}

// Query searches stored extractions with optional full-text search and
// structured filters. Full-text queries are ranked by relevance;
// structured-only queries sort by document and position (R3.5).
func (s *Store) Query(ctx context.Context, opts QueryOptions) ([]QueryResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = opts.Query != ""
	)

	if useFTS {
		qb.WriteString(
			`SELECT e.class, e.text, e.attributes, e.char_start, e.char_end,
				e.document_id, d.name
			FROM extractions_fts
			JOIN extractions e ON e.rowid = extractions_fts.rowid
			LEFT JOIN documents d ON e.document_id = d.id
			WHERE extractions_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(
			`SELECT e.class, e.text, e.attributes, e.char_start, e.char_end,
				e.document_id, d.name
			FROM extractions e
			LEFT JOIN documents d ON e.document_id = d.id
			WHERE 1=1`)
	}

	if opts.Class != "" {
		qb.WriteString(` AND e.class = ?`)
		args = append(args, opts.Class)
	}

	if opts.DocumentID != "" {
		qb.WriteString(` AND e.document_id = ?`)
		args = append(args, opts.DocumentID)
	}

	if opts.Unaligned {
		qb.WriteString(` AND e.char_start IS NULL`)
	}

	if useFTS {
		qb.WriteString(` ORDER BY extractions_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY e.document_id, e.char_start`)
	}

	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying annotations: %w", err)
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var (
			qr         QueryResult
			attrsJSON  sql.NullString
			start, end sql.NullInt64
			name       sql.NullString
		)
		if err := rows.Scan(&qr.Class, &qr.Text, &attrsJSON, &start, &end, &qr.DocumentID, &name); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if attrsJSON.Valid {
			json.Unmarshal([]byte(attrsJSON.String), &qr.Attributes)
		}
		if start.Valid && end.Valid {
			qr.Interval = &types.CharInterval{Start: int(start.Int64), End: int(end.Int64)}
		}
		if name.Valid {
			qr.DocumentName = name.String
		}
		results = append(results, qr)
	}

	return results, rows.Err()
}

// Context returns the source passage surrounding an extraction: the
// interval widened by pad bytes on each side, clipped to the document
// (R4.1, R4.2).
func (s *Store) Context(ctx context.Context, documentID string, iv types.CharInterval, pad int) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT text FROM documents WHERE id = ?`, documentID,
	).Scan(&text)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("document %s not found", documentID)
		}
		return "", fmt.Errorf("looking up document: %w", err)
	}

	start := iv.Start - pad
	if start < 0 {
		start = 0
	}
	end := iv.End + pad
	if end > len(text) {
		end = len(text)
	}
	if start >= end {
		return "", fmt.Errorf("interval %v outside document %s", iv, documentID)
	}
	return text[start:end], nil
}
