package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Chunk is a bounded segment of source text with stable identity and
// source attribution.
type Chunk struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	SourceURL   string `json:"source_url"`
	SourceTitle string `json:"source_title"`
}

// ScoredChunk is a chunk returned from retrieval with a normalized
// similarity score (1.0 = perfect match).
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// Source is a unique originating document, derived from chunk attribution.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ChunkID creates a deterministic chunk ID from the source URL and the
// chunk's ordinal position within that source. Re-chunking the same source
// with the same parameters yields the same IDs.
func ChunkID(sourceURL string, ordinal int) string {
	return fmt.Sprintf("%s#chunk_%d", sourceURL, ordinal)
}

// SourceKey creates a deterministic short key from a URL, used for archive
// object names. The key is a SHA-256 hash (first 16 chars) of the URL.
func SourceKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return hex.EncodeToString(hash[:])[:16]
}

// UniqueSources de-duplicates ranked chunks by source URL, preserving the
// order in which each source was first encountered.
func UniqueSources(chunks []ScoredChunk) []Source {
	plain := make([]Chunk, len(chunks))
	for i, c := range chunks {
		plain[i] = c.Chunk
	}
	return SourcesOf(plain)
}

// SourcesOf derives the unique (url, title) pairs from chunk attribution,
// preserving first-seen order.
func SourcesOf(chunks []Chunk) []Source {
	seen := make(map[string]bool, len(chunks))
	var sources []Source
	for _, c := range chunks {
		if seen[c.SourceURL] {
			continue
		}
		seen[c.SourceURL] = true
		sources = append(sources, Source{URL: c.SourceURL, Title: c.SourceTitle})
	}
	return sources
}
