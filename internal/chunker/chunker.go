// Package chunker splits Markdown documentation into retrievable
// segments along its heading structure, carrying breadcrumb metadata so
// retrieval results keep their place in the document hierarchy.
package chunker

import (
	"path/filepath"
	"strings"
)

// Metadata describes where a chunk came from inside its document.
type Metadata struct {
	SourceFile   string `json:"source_file"`
	Format       string `json:"format"`
	ChunkID      int    `json:"chunk_id"`
	Heading      string `json:"heading,omitempty"`
	HeadingLevel int    `json:"heading_level,omitempty"`
	Breadcrumb   string `json:"breadcrumb,omitempty"`
	Inherited    bool   `json:"inherited_heading,omitempty"`
}

// Chunk is one retrievable segment of a document.
type Chunk struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Chunker splits documents into chunks of roughly ChunkSize characters,
// with optional line overlap between neighbours.
type Chunker struct {
	chunkSize int
	overlap   int
}

func New(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// section is an intermediate split unit carrying its breadcrumb.
type section struct {
	content    string
	heading    string
	level      int
	breadcrumb []string
}

// Chunk splits a Markdown document into segments. Chunks that carry no
// heading of their own inherit the previous chunk's breadcrumb and get
// a context prefix so they stay interpretable in isolation.
func (c *Chunker) Chunk(filePath string, source []byte) []Chunk {
	body := strings.ReplaceAll(string(source), "\r\n", "\n")
	headings := extractHeadings([]byte(body))

	var sections []section
	if len(headings) == 0 {
		for _, part := range c.splitByParagraph(body) {
			sections = append(sections, section{content: part})
		}
	} else {
		sections = c.splitByHeadings(body, headings)
	}

	sections = c.mergeShortSections(sections)
	if c.overlap > 0 {
		sections = c.applyOverlap(sections)
	}

	fileName := filepath.Base(filePath)
	format := strings.TrimPrefix(filepath.Ext(filePath), ".")
	if format == "" {
		format = "txt"
	}

	var chunks []Chunk
	var prevCrumb []string
	for i, sec := range sections {
		content := strings.TrimSpace(sec.content)
		if content == "" {
			continue
		}

		meta := Metadata{
			SourceFile: filePath,
			Format:     format,
			ChunkID:    i,
		}
		switch {
		case sec.heading != "":
			meta.Heading = sec.heading
			meta.HeadingLevel = sec.level
			meta.Breadcrumb = strings.Join(sec.breadcrumb, " > ")
			prevCrumb = sec.breadcrumb
		case len(prevCrumb) > 0:
			meta.Heading = prevCrumb[len(prevCrumb)-1]
			meta.Breadcrumb = strings.Join(prevCrumb, " > ")
			meta.Inherited = true
			if !strings.HasPrefix(content, "[Context:") {
				content = "[Context: " + fileName + " > " + meta.Breadcrumb + "]\n\n" + content
			}
		}

		chunks = append(chunks, Chunk{Content: content, Metadata: meta})
	}
	return chunks
}

// splitByHeadings cuts the document at heading boundaries, keeping a
// breadcrumb stack of enclosing headings. Sections longer than the
// chunk size fall back to paragraph splitting.
func (c *Chunker) splitByHeadings(body string, headings []heading) []section {
	lines := strings.Split(body, "\n")
	var out []section

	// Preamble before the first heading.
	if headings[0].Line > 0 {
		pre := strings.TrimSpace(strings.Join(lines[:headings[0].Line], "\n"))
		if pre != "" {
			for _, part := range c.splitIfLarge(pre) {
				out = append(out, section{content: part})
			}
		}
	}

	var stack []heading
	for i, h := range headings {
		end := len(lines)
		if i+1 < len(headings) {
			end = headings[i+1].Line
		}
		content := strings.TrimSpace(strings.Join(lines[h.Line:end], "\n"))
		if content == "" {
			continue
		}

		// Pop siblings and deeper levels, then push the current heading.
		for len(stack) > 0 && stack[len(stack)-1].Level >= h.Level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h)

		crumb := make([]string, len(stack))
		for j, s := range stack {
			crumb[j] = s.Title
		}

		parts := c.splitIfLarge(content)
		for j, part := range parts {
			sec := section{content: part, breadcrumb: crumb}
			if j == 0 {
				sec.heading = h.Title
				sec.level = h.Level
			}
			out = append(out, sec)
		}
	}
	return out
}

func (c *Chunker) splitIfLarge(content string) []string {
	if len(content) <= c.chunkSize {
		return []string{content}
	}
	return c.splitByParagraph(content)
}

// splitByParagraph accumulates paragraphs up to the chunk size. Fenced
// code blocks are protected so a fence is never cut in half.
func (c *Chunker) splitByParagraph(body string) []string {
	protected, blocks := protectCodeBlocks(body)
	paragraphs := strings.Split(protected, "\n\n")

	var out []string
	var current []string
	size := 0
	for _, para := range paragraphs {
		restored := restoreCodeBlocks(para, blocks)
		if size+len(restored) > c.chunkSize && len(current) > 0 {
			out = append(out, strings.Join(current, "\n\n"))
			current = current[:0]
			size = 0
		}
		current = append(current, restored)
		size += len(restored)
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, "\n\n"))
	}
	return out
}

// mergeShortSections folds consecutive sections together while their
// combined size stays under the chunk size, and never merges across a
// heading boundary so breadcrumbs stay accurate.
func (c *Chunker) mergeShortSections(sections []section) []section {
	if len(sections) == 0 {
		return nil
	}
	out := []section{sections[0]}
	for _, next := range sections[1:] {
		last := &out[len(out)-1]
		sameCrumb := next.heading == "" && strings.Join(next.breadcrumb, ">") == strings.Join(last.breadcrumb, ">")
		if sameCrumb && len(last.content)+len(next.content) <= c.chunkSize {
			last.content = last.content + "\n\n" + next.content
			continue
		}
		out = append(out, next)
	}
	return out
}

// applyOverlap prepends the tail lines of the previous section to each
// section, giving retrieval a little cross-boundary context.
func (c *Chunker) applyOverlap(sections []section) []section {
	if len(sections) <= 1 {
		return sections
	}
	out := make([]section, len(sections))
	copy(out, sections)
	for i := 1; i < len(out); i++ {
		prevLines := strings.Split(sections[i-1].content, "\n")
		n := c.overlap
		if n > len(prevLines) {
			n = len(prevLines)
		}
		tail := strings.Join(prevLines[len(prevLines)-n:], "\n")
		out[i].content = tail + "\n\n" + out[i].content
	}
	return out
}
