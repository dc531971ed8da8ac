package retriever

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tripwell/policy-rag/internal/embeddings"
	"github.com/tripwell/policy-rag/internal/fetcher"
	"github.com/tripwell/policy-rag/internal/vecindex"
	"github.com/tripwell/policy-rag/pkg/models"
)

// embedHandler serves an OpenAI-style embeddings endpoint. failSubstring,
// when non-empty, makes the provider permanently reject inputs containing
// it.
func embedHandler(t *testing.T, failSubstring string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if failSubstring != "" && strings.Contains(req.Input, failSubstring) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		// A crude but deterministic 3-dimensional embedding.
		vec := []float32{float32(len(req.Input) % 7), float32(len(req.Input) % 13), 1}
		resp := map[string]any{
			"data": []map[string]any{{"embedding": vec}},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// policyText builds three ~140-char paragraphs, each starting with a
// distinct marker, that the test chunker cuts into three chunks.
func policyText() string {
	paras := make([]string, 0, 3)
	for _, marker := range []string{"alpha", "bravo", "delta"} {
		paras = append(paras, strings.TrimSpace(marker+": "+strings.Repeat("policy detail. ", 9)))
	}
	return strings.Join(paras, "\n\n")
}

func contentServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if body, ok := pages[r.URL.Path]; ok {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte(body))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestService(t *testing.T, dataDir string, sources []string, embed http.HandlerFunc) *Service {
	t.Helper()
	embedSrv := httptest.NewServer(embed)
	t.Cleanup(embedSrv.Close)

	s, err := New(Config{
		DataDir: dataDir,
		Sources: sources,
		Embeddings: embeddings.Config{
			BaseURL:     embedSrv.URL,
			Model:       "test-model",
			Concurrency: 4,
			MaxRetries:  2,
			RetryDelay:  time.Millisecond,
		},
		Fetcher: fetcher.Config{Delay: 10 * time.Millisecond, UserAgent: "test-agent"},
		Chunker: ChunkerConfig{Size: 160, Overlap: 10, MinLength: 30},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return s
}

func TestRetrieveChunks_EmptyIndex(t *testing.T) {
	s := newTestService(t, t.TempDir(), nil, embedHandler(t, ""))

	results, err := s.RetrieveChunks(t.Context(), "per diem rate", 5)
	if err != nil {
		t.Fatalf("RetrieveChunks() error = %v", err)
	}

	if results.Chunks == nil || len(results.Chunks) != 0 {
		t.Errorf("Chunks = %v, want empty slice", results.Chunks)
	}
	if results.Sources == nil || len(results.Sources) != 0 {
		t.Errorf("Sources = %v, want empty slice", results.Sources)
	}
}

func TestInitialize_BuildsFromSources(t *testing.T) {
	content := contentServer(t, map[string]string{"/policy": policyText()})
	dataDir := t.TempDir()
	s := newTestService(t, dataDir, []string{content.URL + "/policy"}, embedHandler(t, ""))

	if err := s.Initialize(t.Context(), false); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	count, err := s.VectorCount(t.Context())
	if err != nil {
		t.Fatalf("VectorCount() error = %v", err)
	}
	if count != 3 {
		t.Errorf("VectorCount() = %d, want 3", count)
	}

	// Both artifacts must be on disk after the build.
	store := vecindex.NewStore(dataDir, 3)
	if err := store.Load(); err != nil {
		t.Fatalf("loading persisted artifacts: %v", err)
	}
	if store.Count() != 3 {
		t.Errorf("persisted vector count = %d, want 3", store.Count())
	}

	results, err := s.RetrieveChunks(t.Context(), "what is the travel policy", 5)
	if err != nil {
		t.Fatalf("RetrieveChunks() error = %v", err)
	}
	if len(results.Chunks) != 3 {
		t.Fatalf("retrieved %d chunks, want 3", len(results.Chunks))
	}
	if len(results.Sources) != 1 {
		t.Errorf("retrieved %d sources, want 1 after dedup", len(results.Sources))
	}
	for i, c := range results.Chunks {
		if c.Score <= 0 || c.Score > 1 {
			t.Errorf("chunks[%d].Score = %v, want within (0, 1]", i, c.Score)
		}
		if i > 0 && c.Score > results.Chunks[i-1].Score {
			t.Errorf("chunks not in non-increasing score order at %d", i)
		}
		if c.ID == "" || c.SourceURL == "" {
			t.Errorf("chunks[%d] missing attribution: %+v", i, c.Chunk)
		}
	}
}

func TestInitialize_ForceRefreshRebuilds(t *testing.T) {
	var mu sync.Mutex
	body := policyText()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		mu.Lock()
		defer mu.Unlock()
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	dataDir := t.TempDir()
	s := newTestService(t, dataDir, []string{server.URL + "/policy"}, embedHandler(t, ""))

	if err := s.Initialize(t.Context(), false); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if count, _ := s.VectorCount(t.Context()); count != 3 {
		t.Fatalf("VectorCount() = %d before refresh, want 3", count)
	}

	// The source shrinks to a single paragraph; a forced refresh must
	// replace the stale three-chunk state, not reuse it.
	mu.Lock()
	body = strings.TrimSpace("updated: " + strings.Repeat("policy detail. ", 9))
	mu.Unlock()

	if err := s.Initialize(t.Context(), true); err != nil {
		t.Fatalf("Initialize(force) error = %v", err)
	}
	if count, _ := s.VectorCount(t.Context()); count != 1 {
		t.Errorf("VectorCount() = %d after refresh, want 1", count)
	}

	results, err := s.RetrieveChunks(t.Context(), "travel policy", 5)
	if err != nil {
		t.Fatalf("RetrieveChunks() error = %v", err)
	}
	if len(results.Chunks) != 1 || !strings.Contains(results.Chunks[0].Text, "updated") {
		t.Errorf("retrieved %+v, want the rebuilt single chunk", results.Chunks)
	}

	// Persisted artifacts reflect the rebuild.
	store := vecindex.NewStore(dataDir, 3)
	if err := store.Load(); err != nil {
		t.Fatalf("loading persisted artifacts: %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("persisted vector count = %d, want 1", store.Count())
	}
}

func TestInitialize_SkipsFailingSource(t *testing.T) {
	content := contentServer(t, map[string]string{"/policy": policyText()})
	sources := []string{"http://127.0.0.1:1/nope", content.URL + "/policy"}
	s := newTestService(t, t.TempDir(), sources, embedHandler(t, ""))

	if err := s.Initialize(t.Context(), false); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	// The unreachable source is skipped; its sibling is still indexed.
	count, err := s.VectorCount(t.Context())
	if err != nil {
		t.Fatalf("VectorCount() error = %v", err)
	}
	if count != 3 {
		t.Errorf("VectorCount() = %d, want 3 from the reachable source", count)
	}
}

func TestInitialize_ReusesPersistedState(t *testing.T) {
	content := contentServer(t, map[string]string{"/policy": policyText()})
	dataDir := t.TempDir()

	first := newTestService(t, dataDir, []string{content.URL + "/policy"}, embedHandler(t, ""))
	if err := first.Initialize(t.Context(), false); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	// A second service over the same data dir, with no sources configured,
	// must come up from the persisted artifacts alone.
	second := newTestService(t, dataDir, nil, embedHandler(t, ""))
	count, err := second.VectorCount(t.Context())
	if err != nil {
		t.Fatalf("VectorCount() error = %v", err)
	}
	if count != 3 {
		t.Errorf("VectorCount() = %d, want 3 from persisted state", count)
	}
}

func TestRetrieveChunks_MetadataShorterThanIndex(t *testing.T) {
	// Persist two vectors but only one metadata record; the hit at the
	// uncovered position is skipped rather than failing the query.
	dataDir := t.TempDir()
	store := vecindex.NewStore(dataDir, 3)
	chunks := []models.Chunk{
		{ID: "a#chunk_0", Text: "first", SourceURL: "a", SourceTitle: "A"},
		{ID: "a#chunk_1", Text: "second", SourceURL: "a", SourceTitle: "A"},
	}
	if err := store.Append([][]float32{{1, 0, 0}, {0, 1, 0}}, chunks); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(); err != nil {
		t.Fatal(err)
	}
	truncated, err := json.Marshal(chunks[:1])
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, vecindex.MetadataFile), truncated, 0o644); err != nil {
		t.Fatal(err)
	}

	s := newTestService(t, dataDir, nil, embedHandler(t, ""))

	results, err := s.RetrieveChunks(t.Context(), "travel policy", 5)
	if err != nil {
		t.Fatalf("RetrieveChunks() error = %v", err)
	}
	if len(results.Chunks) != 1 {
		t.Fatalf("retrieved %d chunks, want 1 covered by metadata", len(results.Chunks))
	}
	if results.Chunks[0].ID != "a#chunk_0" {
		t.Errorf("ID = %q, want the chunk with metadata", results.Chunks[0].ID)
	}
}

func TestAddURLSource(t *testing.T) {
	content := contentServer(t, map[string]string{"/expenses": policyText()})
	s := newTestService(t, t.TempDir(), nil, embedHandler(t, ""))
	sourceURL := content.URL + "/expenses"

	result := s.AddURLSource(t.Context(), sourceURL)
	if !result.Success {
		t.Fatalf("AddURLSource() failed: %s", result.Message)
	}
	if result.ChunksAdded != 3 {
		t.Errorf("ChunksAdded = %d, want 3", result.ChunksAdded)
	}

	count, _ := s.VectorCount(t.Context())
	if count != result.ChunksAdded {
		t.Errorf("VectorCount() = %d, want %d", count, result.ChunksAdded)
	}

	// Second addition of the same URL is rejected.
	again := s.AddURLSource(t.Context(), sourceURL)
	if again.Success {
		t.Error("second AddURLSource() should fail")
	}
	if !strings.Contains(again.Message, "already exists") {
		t.Errorf("Message = %q, want already-exists rejection", again.Message)
	}
	if count, _ = s.VectorCount(t.Context()); count != result.ChunksAdded {
		t.Errorf("VectorCount() = %d after rejected add, want %d", count, result.ChunksAdded)
	}
}

func TestAddURLSource_InvalidURL(t *testing.T) {
	s := newTestService(t, t.TempDir(), nil, embedHandler(t, ""))

	for _, bad := range []string{"not-a-url", "ftp://example.com/file", "http://"} {
		result := s.AddURLSource(t.Context(), bad)
		if result.Success {
			t.Errorf("AddURLSource(%q) should fail", bad)
		}
	}
}

func TestAddURLSource_UnreachableSource(t *testing.T) {
	s := newTestService(t, t.TempDir(), nil, embedHandler(t, ""))

	result := s.AddURLSource(t.Context(), "http://127.0.0.1:1/nope")
	if result.Success {
		t.Error("AddURLSource() should fail for an unreachable source")
	}
	if result.ChunksAdded != 0 {
		t.Errorf("ChunksAdded = %d, want 0", result.ChunksAdded)
	}
}

func TestResetDatabase(t *testing.T) {
	content := contentServer(t, map[string]string{"/policy": policyText()})
	s := newTestService(t, t.TempDir(), []string{content.URL + "/policy"}, embedHandler(t, ""))

	if err := s.Initialize(t.Context(), false); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	result := s.ResetDatabase()
	if !result.Success {
		t.Fatalf("ResetDatabase() failed: %s", result.Message)
	}

	count, err := s.VectorCount(t.Context())
	if err != nil {
		t.Fatalf("VectorCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("VectorCount() = %d after reset, want 0", count)
	}

	// A reset index stays empty; queries do not trigger a rebuild.
	results, err := s.RetrieveChunks(t.Context(), "travel policy", 5)
	if err != nil {
		t.Fatalf("RetrieveChunks() error = %v", err)
	}
	if len(results.Chunks) != 0 || len(results.Sources) != 0 {
		t.Errorf("RetrieveChunks() after reset = %+v, want empty", results)
	}
}

func TestIngest_PartialEmbeddingFailure(t *testing.T) {
	content := contentServer(t, map[string]string{"/policy": policyText()})
	// The provider permanently rejects the chunk containing "bravo".
	s := newTestService(t, t.TempDir(), nil, embedHandler(t, "bravo"))

	result := s.AddURLSource(t.Context(), content.URL+"/policy")
	if !result.Success {
		t.Fatalf("AddURLSource() failed: %s", result.Message)
	}
	if result.ChunksAdded != 2 {
		t.Errorf("ChunksAdded = %d, want 2 of 3", result.ChunksAdded)
	}

	results, err := s.RetrieveChunks(t.Context(), "travel policy", 5)
	if err != nil {
		t.Fatalf("RetrieveChunks() error = %v", err)
	}
	for i, c := range results.Chunks {
		if strings.Contains(c.Text, "bravo") {
			t.Errorf("chunks[%d] contains text whose embedding failed", i)
		}
	}
}

func TestStatus(t *testing.T) {
	content := contentServer(t, map[string]string{"/policy": policyText()})
	s := newTestService(t, t.TempDir(), []string{content.URL + "/policy"}, embedHandler(t, ""))

	status, err := s.Status(t.Context())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}

	if !status.Initialized {
		t.Error("Status should report initialized after lazy init")
	}
	if status.VectorCount != 3 || status.ChunkCount != 3 {
		t.Errorf("counts = (%d, %d), want (3, 3)", status.VectorCount, status.ChunkCount)
	}
	if len(status.SourceURLs) != 1 {
		t.Errorf("SourceURLs = %d entries, want 1", len(status.SourceURLs))
	}
	if status.LastUpdateTime.IsZero() {
		t.Error("LastUpdateTime should be set after a build")
	}
}

func TestSourceURLs_ColdService(t *testing.T) {
	s := newTestService(t, t.TempDir(), nil, embedHandler(t, ""))

	sources, err := s.SourceURLs(t.Context())
	if err != nil {
		t.Fatalf("SourceURLs() error = %v", err)
	}
	if sources == nil || len(sources) != 0 {
		t.Errorf("SourceURLs() = %v, want empty slice", sources)
	}
}
