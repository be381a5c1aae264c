package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/ent0n29/archivist/internal/ingest"
	"github.com/ent0n29/archivist/internal/reliability"
)

const indexDocsSchema = `{
	"type": "object",
	"properties": {
		"path": {"type": "string", "minLength": 1}
	},
	"required": ["path"],
	"additionalProperties": false
}`

// NewIndexDocsTool returns the ingestion tool that chunks Markdown
// documents and adds them to the retrieval index.
func NewIndexDocsTool(g *ingest.Ingester) Tool {
	return Tool{
		Name:        "index_docs",
		Description: "Chunk a Markdown file or directory and add it to the searchable documentation index.",
		Permission:  "write",
		Schema:      indexDocsSchema,
		Run: func(ctx context.Context, args Args) (string, error) {
			path, _ := args["path"].(string)
			res, err := g.IngestPath(ctx, path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return "", fmt.Errorf("%w: path %q does not exist", ErrInvalidArguments, path)
				}
				return "", reliability.MarkTransient(fmt.Errorf("ingest %s: %w", path, err))
			}
			return fmt.Sprintf("Indexed %d document(s) into %d chunk(s) from %s.", res.Documents, res.Chunks, path), nil
		},
	}
}
