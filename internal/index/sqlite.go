package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ent0n29/archivist/internal/chunker"
)

// SQLiteStore persists the document index in a single SQLite file,
// using an FTS5 virtual table for ranked keyword search.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite index: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			content,
			heading,
			breadcrumb,
			doc_id UNINDEXED,
			source UNINDEXED
		);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init index schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddChunks(ctx context.Context, docID string, chunks []chunker.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("clear stale chunks: %w", err)
	}
	for _, ch := range chunks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chunks_fts (content, heading, breadcrumb, doc_id, source) VALUES (?, ?, ?, ?, ?)`,
			ch.Content,
			ch.Metadata.Heading,
			ch.Metadata.Breadcrumb,
			docID,
			ch.Metadata.SourceFile,
		)
		if err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, query string, topK int) ([]Passage, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 4
	}

	// Quote each term so user punctuation cannot break FTS syntax.
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	match := strings.Join(quoted, " OR ")

	rows, err := s.db.QueryContext(ctx,
		`SELECT content, source, breadcrumb, bm25(chunks_fts) AS rank
		 FROM chunks_fts WHERE chunks_fts MATCH ?
		 ORDER BY rank LIMIT ?`,
		match, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	var out []Passage
	for rows.Next() {
		var p Passage
		var rank float64
		if err := rows.Scan(&p.Content, &p.Source, &p.Breadcrumb, &rank); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		// bm25 returns lower-is-better; flip it so callers sort descending.
		p.Score = -rank
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passages: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
