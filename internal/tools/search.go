package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/archivist/internal/index"
	"github.com/ent0n29/archivist/internal/reliability"
)

const searchSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string", "minLength": 1},
		"top_k": {"type": "integer", "minimum": 1, "maximum": 20}
	},
	"required": ["query"],
	"additionalProperties": false
}`

const passagePreviewLimit = 600

// NewSearchTool returns the retrieval tool over the document index.
func NewSearchTool(store index.Store) Tool {
	return Tool{
		Name:        "search_docs",
		Description: "Search the indexed documentation and return ranked passages with their source location.",
		Permission:  "read",
		Schema:      searchSchema,
		Run: func(ctx context.Context, args Args) (string, error) {
			query, _ := args["query"].(string)
			topK := intArg(args, "top_k", 4)

			passages, err := store.Search(ctx, query, topK)
			if err != nil {
				// Index backends are I/O: worth a retry.
				return "", reliability.MarkTransient(fmt.Errorf("search index: %w", err))
			}
			if len(passages) == 0 {
				return "No matching passages found in the indexed documentation.", nil
			}
			return formatPassages(passages), nil
		},
	}
}

func formatPassages(passages []index.Passage) string {
	var b strings.Builder
	for i, p := range passages {
		loc := p.Source
		if p.Breadcrumb != "" {
			loc += " > " + p.Breadcrumb
		}
		fmt.Fprintf(&b, "[%d] (%s)\n%s\n", i+1, loc, previewText(p.Content))
		if i < len(passages)-1 {
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func previewText(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= passagePreviewLimit {
		return s
	}
	return string(runes[:passagePreviewLimit]) + "…"
}

// intArg reads an integer argument that may arrive as a JSON float64.
func intArg(args Args, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
