package models

import (
	"strings"
	"testing"
)

func TestChunkID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		ordinal int
		want    string
	}{
		{"first chunk", "https://example.com/policy", 0, "https://example.com/policy#chunk_0"},
		{"later chunk", "https://example.com/policy", 12, "https://example.com/policy#chunk_12"},
		{"URL with query", "https://example.com/policy?v=2", 1, "https://example.com/policy?v=2#chunk_1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChunkID(tt.url, tt.ordinal); got != tt.want {
				t.Errorf("ChunkID(%q, %d) = %q, want %q", tt.url, tt.ordinal, got, tt.want)
			}
		})
	}
}

func TestSourceKey(t *testing.T) {
	url := "https://example.com/travel-policy"

	key := SourceKey(url)
	if len(key) != 16 {
		t.Errorf("key length should be 16, got %d", len(key))
	}
	if key != SourceKey(url) {
		t.Error("key should be deterministic")
	}
	if key == SourceKey("https://example.com/other") {
		t.Error("different URLs should produce different keys")
	}
}

func TestUniqueSources(t *testing.T) {
	chunks := []ScoredChunk{
		{Chunk: Chunk{SourceURL: "https://a.example/rates", SourceTitle: "Rates"}, Score: 0.9},
		{Chunk: Chunk{SourceURL: "https://b.example/visas", SourceTitle: "Visas"}, Score: 0.8},
		{Chunk: Chunk{SourceURL: "https://a.example/rates", SourceTitle: "Rates"}, Score: 0.7},
		{Chunk: Chunk{SourceURL: "https://c.example/lodging", SourceTitle: "Lodging"}, Score: 0.6},
	}

	sources := UniqueSources(chunks)

	if len(sources) != 3 {
		t.Fatalf("expected 3 unique sources, got %d", len(sources))
	}

	// First-seen order must be preserved.
	wantOrder := []string{"https://a.example/rates", "https://b.example/visas", "https://c.example/lodging"}
	for i, want := range wantOrder {
		if sources[i].URL != want {
			t.Errorf("sources[%d].URL = %q, want %q", i, sources[i].URL, want)
		}
	}

	if sources[0].Title != "Rates" {
		t.Errorf("sources[0].Title = %q, want %q", sources[0].Title, "Rates")
	}
}

func TestUniqueSources_Empty(t *testing.T) {
	if sources := UniqueSources(nil); len(sources) != 0 {
		t.Errorf("expected no sources, got %d", len(sources))
	}
}

func TestChunkID_ContainsOrdinalMarker(t *testing.T) {
	id := ChunkID("https://example.com/doc", 3)
	if !strings.Contains(id, "#chunk_") {
		t.Errorf("chunk ID %q should contain the ordinal marker", id)
	}
}
