package chunker

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// heading is one ATX heading located in the source document.
type heading struct {
	Line  int
	Level int
	Title string
}

// extractHeadings parses the document with goldmark and returns its
// headings in source order.
func extractHeadings(source []byte) []heading {
	parser := goldmark.New().Parser()
	doc := parser.Parse(text.NewReader(source))

	lineStarts := buildLineStarts(source)
	var out []heading

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if h.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		seg := h.Lines().At(0)
		title := strings.TrimSpace(string(source[seg.Start:seg.Stop]))
		if title == "" {
			return ast.WalkContinue, nil
		}
		out = append(out, heading{
			Line:  lineAt(lineStarts, seg.Start),
			Level: h.Level,
			Title: title,
		})
		return ast.WalkContinue, nil
	})
	return out
}

func buildLineStarts(source []byte) []int {
	starts := []int{0}
	for i, b := range source {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func lineAt(starts []int, offset int) int {
	lo, hi := 0, len(starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

var fencedBlockRe = regexp.MustCompile("(?s)```.*?```")

// protectCodeBlocks swaps fenced code blocks for placeholders so that
// paragraph splitting never cuts inside a fence.
func protectCodeBlocks(body string) (string, map[string]string) {
	blocks := make(map[string]string)
	i := 0
	protected := fencedBlockRe.ReplaceAllStringFunc(body, func(match string) string {
		key := "\x00CODE_BLOCK_" + strconv.Itoa(i) + "\x00"
		blocks[key] = match
		i++
		return key
	})
	return protected, blocks
}

func restoreCodeBlocks(body string, blocks map[string]string) string {
	for key, block := range blocks {
		body = strings.ReplaceAll(body, key, block)
	}
	return body
}
