package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Chunker.Size != 1000 {
		t.Errorf("Chunker.Size = %d, want 1000", cfg.Chunker.Size)
	}
	if cfg.Chunker.Overlap != 100 {
		t.Errorf("Chunker.Overlap = %d, want 100", cfg.Chunker.Overlap)
	}
	if cfg.Embeddings.Concurrency != 15 {
		t.Errorf("Embeddings.Concurrency = %d, want 15", cfg.Embeddings.Concurrency)
	}
	if cfg.Embeddings.MaxRetries != 3 {
		t.Errorf("Embeddings.MaxRetries = %d, want 3", cfg.Embeddings.MaxRetries)
	}
	if cfg.Fetcher.Timeout != 30*time.Second {
		t.Errorf("Fetcher.Timeout = %v, want 30s", cfg.Fetcher.Timeout)
	}
	if cfg.Fetcher.UserAgent == "" {
		t.Error("Fetcher.UserAgent should not be empty")
	}
	if cfg.Index.DataDir == "" {
		t.Error("Index.DataDir should not be empty")
	}
	if cfg.Archive.Enabled {
		t.Error("Archive should be disabled by default")
	}
}
