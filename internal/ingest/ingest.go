// Package ingest feeds documentation files through the chunker into
// the retrieval index.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ent0n29/archivist/internal/chunker"
	"github.com/ent0n29/archivist/internal/index"
)

// Result summarizes one ingestion run.
type Result struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

// Ingester chunks Markdown files and stores the chunks in the index.
type Ingester struct {
	chunker *chunker.Chunker
	store   index.Store
}

func New(c *chunker.Chunker, store index.Store) *Ingester {
	return &Ingester{chunker: c, store: store}
}

// IngestPath indexes a single file, or every Markdown/text file under a
// directory.
func (g *Ingester) IngestPath(ctx context.Context, path string) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("stat %s: %w", path, err)
	}

	var res Result
	if !info.IsDir() {
		n, err := g.ingestFile(ctx, path)
		if err != nil {
			return Result{}, err
		}
		return Result{Documents: 1, Chunks: n}, nil
	}

	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !indexableFile(p) {
			return nil
		}
		n, err := g.ingestFile(ctx, p)
		if err != nil {
			return err
		}
		res.Documents++
		res.Chunks += n
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("walk %s: %w", path, err)
	}
	return res, nil
}

func (g *Ingester) ingestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	chunks := g.chunker.Chunk(path, data)
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := g.store.AddChunks(ctx, path, chunks); err != nil {
		return 0, fmt.Errorf("index %s: %w", path, err)
	}
	return len(chunks), nil
}

func indexableFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt":
		return true
	default:
		return false
	}
}
