package ingest

import (
	"strings"
)

// Chunk is one markdown section prepared for embedding. Header is the
// section's own heading; ParentTitle is the document's H1 so every chunk
// keeps its document context after retrieval.
type Chunk struct {
	Text        string
	Header      string
	ParentTitle string
}

// ChunkMarkdown splits a markdown document into section chunks. Sections
// start at any heading line; text before the first heading becomes a
// preamble chunk under the document title. Empty sections are dropped.
func ChunkMarkdown(content string) []Chunk {
	lines := strings.Split(content, "\n")

	var chunks []Chunk
	var parentTitle string
	var header string
	var buf []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if text == "" {
			return
		}
		chunk := Chunk{Header: header, ParentTitle: parentTitle}
		// The header is part of the embedded text so section identity
		// survives into similarity space.
		if header != "" && header != parentTitle {
			chunk.Text = header + "\n" + text
		} else {
			chunk.Text = text
		}
		chunks = append(chunks, chunk)
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			flush()
			title := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if strings.HasPrefix(trimmed, "# ") || trimmed == "#"+title {
				if parentTitle == "" {
					parentTitle = title
				}
			}
			header = title
			continue
		}
		buf = append(buf, line)
	}
	flush()

	if parentTitle != "" {
		for i := range chunks {
			if chunks[i].ParentTitle == "" {
				chunks[i].ParentTitle = parentTitle
			}
		}
	}
	return chunks
}
