// Package chunker splits extracted rulebook text into overlapping search
// windows suitable for embedding.
package chunker

import (
	"strings"
)

// Default windowing parameters.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
	DefaultCharsPerPage = 3000
)

// Chunk is a windowed substring of a document's extracted text. Text is
// always the exact substring [CharStart, CharEnd) of the input, so the
// original text can be reconstructed by stripping the overlap.
type Chunk struct {
	Text      string
	Index     int
	CharStart int
	CharEnd   int
	Page      int
}

// Chunker performs deterministic segmentation of document text.
type Chunker struct {
	size         int
	overlap      int
	charsPerPage int
}

// New creates a Chunker. A non-positive size or chars-per-page and a
// negative overlap fall back to defaults (an overlap of 0 is kept); the
// overlap is clamped below the chunk size.
func New(size, overlap, charsPerPage int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size - 1
	}
	if charsPerPage <= 0 {
		charsPerPage = DefaultCharsPerPage
	}
	return &Chunker{size: size, overlap: overlap, charsPerPage: charsPerPage}
}

// Prepare segments text into chunks of at most the configured size, where
// each chunk begins with the trailing overlap of its predecessor. Split
// points prefer sentence terminators, then whitespace, then a hard cut.
// Empty input produces no chunks; a whitespace-only tail is dropped.
func (c *Chunker) Prepare(text string) []Chunk {
	// A whitespace-only tail would otherwise surface as whitespace-only
	// chunks; the offsets of everything before it are unaffected.
	text = strings.TrimRight(text, " \t\n\r\f")
	if text == "" {
		return nil
	}

	pages := newPageEstimator(text, c.charsPerPage)

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			end = len(text)
		} else {
			end = c.splitPoint(text, start, end)
		}

		chunks = append(chunks, Chunk{
			Text:      text[start:end],
			Index:     len(chunks),
			CharStart: start,
			CharEnd:   end,
			Page:      pages.pageAt(start),
		})

		if end == len(text) {
			break
		}
		start = end - c.overlap
	}
	return chunks
}

// splitPoint picks the cut position in (start+overlap, hardEnd]. The cut
// must land past the overlap region or the scan would stop advancing.
func (c *Chunker) splitPoint(text string, start, hardEnd int) int {
	min := start + c.overlap + 1

	// Prefer a sentence terminator followed by whitespace.
	for i := hardEnd - 1; i >= min; i-- {
		if isSentenceEnd(text[i]) && (i+1 >= len(text) || isSpace(text[i+1])) {
			return i + 1
		}
	}
	// Fall back to the last whitespace in the window.
	for i := hardEnd - 1; i >= min; i-- {
		if isSpace(text[i]) {
			return i + 1
		}
	}
	// Hard character boundary.
	return hardEnd
}

func isSentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}

// pageEstimator maps character offsets to page numbers. When the text
// carries form-feed page breaks those are authoritative; otherwise the
// page is approximated from the configured characters-per-page.
type pageEstimator struct {
	feeds        []int
	charsPerPage int
}

func newPageEstimator(text string, charsPerPage int) *pageEstimator {
	pe := &pageEstimator{charsPerPage: charsPerPage}
	for i := 0; i < len(text); i++ {
		if text[i] == '\f' {
			pe.feeds = append(pe.feeds, i)
		}
	}
	return pe
}

func (pe *pageEstimator) pageAt(offset int) int {
	if len(pe.feeds) > 0 {
		page := 1
		for _, f := range pe.feeds {
			if f < offset {
				page++
			} else {
				break
			}
		}
		return page
	}
	return offset/pe.charsPerPage + 1
}
