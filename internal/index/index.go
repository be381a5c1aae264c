// Package index stores document chunks and answers ranked keyword
// queries over them. Retrieval results carry source and breadcrumb
// metadata so the agent can cite where a passage came from.
package index

import (
	"context"
	"strings"

	"github.com/ent0n29/archivist/internal/chunker"
)

// Passage is one ranked retrieval result.
type Passage struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Breadcrumb string  `json:"breadcrumb,omitempty"`
	Score      float64 `json:"score"`
}

// Store persists chunks and serves keyword search.
type Store interface {
	AddChunks(ctx context.Context, docID string, chunks []chunker.Chunk) error
	Search(ctx context.Context, query string, topK int) ([]Passage, error)
	Close() error
}

// NewStore opens a SQLite-backed index when a path is configured,
// otherwise an in-memory index.
func NewStore(ctx context.Context, path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return NewMemoryStore(), nil
	}
	return NewSQLiteStore(ctx, path)
}

// queryTerms lowercases and tokenizes a free-text query for matching.
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		out = append(out, f)
	}
	return out
}
