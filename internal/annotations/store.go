// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package annotations persists extraction runs and serves queries over
// their grounded spans.
// Implements: prd005-annotation-store (R1-R4);
//
//	docs/ARCHITECTURE § Annotation Store.
package annotations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/extraction-engine/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "annotations.db"
)

// Store manages the annotation SQLite database.
type Store struct {
	db             *sql.DB
	annotationsDir string
	maxResults     int
}

// NewStore opens or creates the annotation database at
// annotationsDir/index/annotations.db, creating the schema as needed
// (R1.1, R1.2).
func NewStore(cfg types.StoreConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.AnnotationsDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{
		db:             db,
		annotationsDir: cfg.AnnotationsDir,
		maxResults:     maxResults,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			name TEXT,
			text TEXT NOT NULL,
			model TEXT,
			provider TEXT,
			num_chunks INTEGER,
			created_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS extractions (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id TEXT NOT NULL REFERENCES documents(id),
			class TEXT NOT NULL,
			text TEXT NOT NULL,
			attributes TEXT,
			char_start INTEGER,
			char_end INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_extractions_document_id ON extractions(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_extractions_class ON extractions(class)`,
		`CREATE TABLE IF NOT EXISTS run_errors (
			document_id TEXT NOT NULL REFERENCES documents(id),
			chunk_index INTEGER NOT NULL,
			kind TEXT NOT NULL,
			message TEXT,
			chunk_start INTEGER,
			chunk_end INTEGER,
			PRIMARY KEY (document_id, chunk_index)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='extractions_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE extractions_fts USING fts5(text, content=extractions, content_rowid=rowid)`,
			`CREATE TRIGGER extractions_ai AFTER INSERT ON extractions BEGIN
				INSERT INTO extractions_fts(rowid, text) VALUES (new.rowid, new.text);
			END`,
			`CREATE TRIGGER extractions_ad AFTER DELETE ON extractions BEGIN
				INSERT INTO extractions_fts(extractions_fts, rowid, text) VALUES('delete', old.rowid, old.text);
			END`,
			`CREATE TRIGGER extractions_au AFTER UPDATE ON extractions BEGIN
				INSERT INTO extractions_fts(extractions_fts, rowid, text) VALUES('delete', old.rowid, old.text);
				INSERT INTO extractions_fts(rowid, text) VALUES (new.rowid, new.text);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// DocumentID derives the stable identifier for a run: twelve hex digits
// of the SHA-256 over name and document text. Re-saving the same
// document under the same name overwrites the previous run (R2.3).
func DocumentID(name, text string) string {
	h := sha256.Sum256([]byte(name + "\x00" + text))
	return hex.EncodeToString(h[:])[:12]
}

// Save persists an extraction run and returns its document ID. Saving a
// document that already exists replaces its extractions and recorded
// chunk errors (R2.1-R2.3).
func (s *Store) Save(ctx context.Context, name string, doc *types.AnnotatedDocument) (string, error) {
	id := DocumentID(name, doc.Text)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM extractions WHERE document_id = ?`, id); err != nil {
		return "", fmt.Errorf("deleting old extractions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_errors WHERE document_id = ?`, id); err != nil {
		return "", fmt.Errorf("deleting old run errors: %w", err)
	}

	model, _ := doc.Metadata[types.MetaModelName].(string)
	providerName, _ := doc.Metadata[types.MetaProvider].(string)
	numChunks := asInt(doc.Metadata[types.MetaNumChunks])

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, name, text, model, provider, num_chunks, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, model=excluded.model, provider=excluded.provider,
			num_chunks=excluded.num_chunks, created_at=excluded.created_at`,
		id, name, doc.Text, model, providerName, numChunks,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("upserting document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO extractions (document_id, class, text, attributes, char_start, char_end)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, ext := range doc.Extractions {
		var attrsJSON any
		if len(ext.Attributes) > 0 {
			b, err := json.Marshal(ext.Attributes)
			if err != nil {
				return "", fmt.Errorf("marshaling attributes: %w", err)
			}
			attrsJSON = string(b)
		}
		var start, end any
		if ext.Interval != nil {
			start, end = ext.Interval.Start, ext.Interval.End
		}
		if _, err := stmt.ExecContext(ctx, id, ext.Class, ext.Text, attrsJSON, start, end); err != nil {
			return "", fmt.Errorf("inserting extraction: %w", err)
		}
	}

	for idx, ce := range doc.Errors() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO run_errors (document_id, chunk_index, kind, message, chunk_start, chunk_end)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, idx, string(ce.Kind), ce.Message, ce.ChunkStart, ce.ChunkEnd,
		)
		if err != nil {
			return "", fmt.Errorf("inserting run error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	return id, nil
}

// StoredRun is a persisted extraction run: the reconstructed document
// plus store-level bookkeeping.
type StoredRun struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Document  types.AnnotatedDocument
}

// Get loads a run by document ID (R2.4).
func (s *Store) Get(ctx context.Context, id string) (*StoredRun, error) {
	run := StoredRun{ID: id}
	var (
		model, providerName string
		numChunks           int
		createdAt           sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, text, model, provider, num_chunks, created_at FROM documents WHERE id = ?`, id,
	).Scan(&run.Name, &run.Document.Text, &model, &providerName, &numChunks, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("document %s not found", id)
		}
		return nil, fmt.Errorf("looking up document: %w", err)
	}
	if createdAt.Valid {
		run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt.String)
	}

	run.Document.Metadata = map[string]any{
		types.MetaModelName: model,
		types.MetaProvider:  providerName,
		types.MetaNumChunks: numChunks,
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT class, text, attributes, char_start, char_end
		 FROM extractions WHERE document_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("querying extractions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ext        types.Extraction
			attrsJSON  sql.NullString
			start, end sql.NullInt64
		)
		if err := rows.Scan(&ext.Class, &ext.Text, &attrsJSON, &start, &end); err != nil {
			return nil, fmt.Errorf("scanning extraction: %w", err)
		}
		if attrsJSON.Valid {
			json.Unmarshal([]byte(attrsJSON.String), &ext.Attributes)
		}
		if start.Valid && end.Valid {
			ext.Interval = &types.CharInterval{Start: int(start.Int64), End: int(end.Int64)}
		}
		run.Document.Extractions = append(run.Document.Extractions, ext)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	errs, err := s.runErrors(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		run.Document.Metadata[types.MetaErrors] = errs
	}

	return &run, nil
}

func (s *Store) runErrors(ctx context.Context, id string) (map[int]types.ChunkError, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_index, kind, message, chunk_start, chunk_end
		 FROM run_errors WHERE document_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying run errors: %w", err)
	}
	defer rows.Close()

	errs := make(map[int]types.ChunkError)
	for rows.Next() {
		var (
			idx  int
			kind string
			ce   types.ChunkError
		)
		if err := rows.Scan(&idx, &kind, &ce.Message, &ce.ChunkStart, &ce.ChunkEnd); err != nil {
			return nil, fmt.Errorf("scanning run error: %w", err)
		}
		ce.Kind = types.ErrorKind(kind)
		ce.ChunkIndex = idx
		errs[idx] = ce
	}
	return errs, rows.Err()
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
