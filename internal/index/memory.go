package index

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/ent0n29/archivist/internal/chunker"
)

type memoryEntry struct {
	docID      string
	source     string
	breadcrumb string
	content    string
	lowered    string
}

// MemoryStore is an in-process index for dev and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AddChunks(_ context.Context, docID string, chunks []chunker.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-ingesting a document replaces its chunks.
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.docID != docID {
			kept = append(kept, e)
		}
	}
	s.entries = kept

	for _, ch := range chunks {
		s.entries = append(s.entries, memoryEntry{
			docID:      docID,
			source:     ch.Metadata.SourceFile,
			breadcrumb: ch.Metadata.Breadcrumb,
			content:    ch.Content,
			lowered:    strings.ToLower(ch.Content + " " + ch.Metadata.Breadcrumb),
		})
	}
	return nil
}

func (s *MemoryStore) Search(_ context.Context, query string, topK int) ([]Passage, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 4
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Passage
	for _, e := range s.entries {
		score := 0.0
		for _, term := range terms {
			hits := strings.Count(e.lowered, term)
			if hits == 0 {
				continue
			}
			score += float64(hits)
			if strings.Contains(strings.ToLower(e.breadcrumb), term) {
				score += 2
			}
		}
		if score == 0 {
			continue
		}
		// Dampen the advantage of very long chunks.
		score /= math.Sqrt(float64(len(e.content)) + 1)
		out = append(out, Passage{
			Content:    e.content,
			Source:     e.source,
			Breadcrumb: e.breadcrumb,
			Score:      score,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
