// Package chunker splits extracted document text into overlapping,
// bounded-size segments aligned to paragraph and sentence boundaries
// where possible.
package chunker

import "strings"

// Chunker splits text into overlapping chunks.
type Chunker struct {
	size      int
	overlap   int
	minLength int
}

// New creates a Chunker targeting the given chunk size with the given
// overlap between consecutive chunks. Overlap is capped at half the target
// size. Chunks shorter than minLength are discarded as noise.
func New(size, overlap, minLength int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > size/2 {
		overlap = size / 2
	}
	if minLength < 0 {
		minLength = 0
	}
	return &Chunker{size: size, overlap: overlap, minLength: minLength}
}

// Split breaks text into chunks. When the natural window end falls inside
// the text, the cut point is moved back to the nearest paragraph break,
// failing that to the nearest sentence end, failing that it stays at the
// raw target size. The window start always advances by at least one byte
// per iteration, so the loop terminates for any input.
func (c *Chunker) Split(text string) []string {
	var chunks []string

	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			end = len(text)
		} else {
			end = c.cutPoint(text, start, end)
		}

		piece := strings.TrimSpace(text[start:end])
		if len(piece) >= c.minLength {
			chunks = append(chunks, piece)
		}

		if end >= len(text) {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// cutPoint finds the best boundary at or before end. A boundary is only
// usable if it lies beyond the overlap threshold, otherwise the window
// would not make progress.
func (c *Chunker) cutPoint(text string, start, end int) int {
	window := text[start:end]

	if i := strings.LastIndex(window, "\n\n"); i > c.overlap {
		return start + i
	}
	if i := lastSentenceEnd(window); i > c.overlap {
		return start + i + 1
	}
	return end
}

// lastSentenceEnd returns the index of the last sentence-ending punctuation
// mark in s, or -1 if there is none.
func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}
