// Package retriever owns the retrieval/indexing pipeline: it turns source
// documents into embedded chunks in a persistent vector index and answers
// similarity queries with deduplicated source attribution.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tripwell/policy-rag/internal/archive"
	"github.com/tripwell/policy-rag/internal/chunker"
	"github.com/tripwell/policy-rag/internal/embeddings"
	"github.com/tripwell/policy-rag/internal/extractor"
	"github.com/tripwell/policy-rag/internal/fetcher"
	"github.com/tripwell/policy-rag/internal/vecindex"
	"github.com/tripwell/policy-rag/pkg/models"
)

// DefaultTopN is the number of chunks retrieved when the caller does not
// specify one.
const DefaultTopN = 5

// ChunkerConfig holds chunking parameters.
type ChunkerConfig struct {
	Size      int
	Overlap   int
	MinLength int
}

// ArchiveConfig holds optional raw-document archive parameters.
type ArchiveConfig struct {
	Enabled         bool
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Config holds retriever configuration.
type Config struct {
	DataDir    string
	Sources    []string
	Embeddings embeddings.Config
	Fetcher    fetcher.Config
	Chunker    ChunkerConfig
	Archive    ArchiveConfig
}

// Results is the answer to a retrieval query: ranked chunks plus the
// deduplicated sources they came from.
type Results struct {
	Chunks  []models.ScoredChunk `json:"chunks"`
	Sources []models.Source      `json:"sources"`
}

// AddResult reports the outcome of an incremental source addition.
type AddResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ChunksAdded int    `json:"chunks_added"`
}

// ResetResult reports the outcome of a database reset.
type ResetResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Status is a read-only snapshot of the service state.
type Status struct {
	Initialized    bool            `json:"initialized"`
	LastUpdateTime time.Time       `json:"last_update_time"`
	ChunkCount     int             `json:"chunk_count"`
	VectorCount    int             `json:"vector_count"`
	SourceURLs     []models.Source `json:"source_urls"`
}

// Service owns the vector index, its metadata, and the ingestion pipeline.
// Construct one per process and share it by reference.
//
// Mutating operations are not internally serialized against retrieval or
// each other; callers needing that must serialize externally.
type Service struct {
	store     *vecindex.Store
	embedder  *embeddings.Client
	fetcher   *fetcher.Fetcher
	extractor *extractor.Extractor
	chunker   *chunker.Chunker
	archive   *archive.Client // nil when archival is disabled
	sources   []string

	initGroup   singleflight.Group
	initialized atomic.Bool
	lastUpdate  time.Time
}

// New creates a Service from configuration.
func New(config Config) (*Service, error) {
	embedClient, err := embeddings.New(config.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings client: %w", err)
	}

	var archiveClient *archive.Client
	if config.Archive.Enabled {
		archiveClient, err = archive.New(archive.Config{
			Endpoint:        config.Archive.Endpoint,
			Bucket:          config.Archive.Bucket,
			AccessKeyID:     config.Archive.AccessKeyID,
			SecretAccessKey: config.Archive.SecretAccessKey,
			UseSSL:          config.Archive.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create archive client: %w", err)
		}
		slog.Info("raw-document archive enabled", "endpoint", config.Archive.Endpoint, "bucket", config.Archive.Bucket)
	}

	dim := embeddings.Dimensions(config.Embeddings.Model)

	return &Service{
		store:     vecindex.NewStore(config.DataDir, dim),
		embedder:  embedClient,
		fetcher:   fetcher.New(config.Fetcher),
		extractor: extractor.New(),
		chunker:   chunker.New(config.Chunker.Size, config.Chunker.Overlap, config.Chunker.MinLength),
		archive:   archiveClient,
		sources:   config.Sources,
	}, nil
}

// Initialize loads persisted state, rebuilding the index from the
// configured sources only when no valid persisted state exists or
// forceRefresh is set. Concurrent callers share a single initialization
// run.
func (s *Service) Initialize(ctx context.Context, forceRefresh bool) error {
	if s.initialized.Load() && !forceRefresh {
		return nil
	}

	_, err, _ := s.initGroup.Do("init", func() (any, error) {
		return nil, s.initialize(ctx, forceRefresh)
	})
	return err
}

func (s *Service) initialize(ctx context.Context, forceRefresh bool) error {
	// A caller that queued behind a completed run must not re-run it.
	if s.initialized.Load() && !forceRefresh {
		return nil
	}

	if err := s.store.Load(); err != nil {
		return fmt.Errorf("failed to load persisted index: %w", err)
	}

	if forceRefresh {
		if err := s.store.Reset(); err != nil {
			slog.Warn("failed to clear persisted artifacts before refresh", "error", err)
		}
	}

	if s.store.Count() == 0 && len(s.sources) > 0 {
		s.rebuild(ctx)
	} else {
		slog.Debug("using persisted index", "vectors", s.store.Count())
	}

	s.initialized.Store(true)
	return nil
}

// rebuild ingests every configured source. A failing source is logged and
// skipped; siblings are unaffected.
func (s *Service) rebuild(ctx context.Context) {
	slog.Info("building index from configured sources", "sources", len(s.sources))

	total := 0
	for _, sourceURL := range s.sources {
		added, err := s.ingestSource(ctx, sourceURL)
		if err != nil {
			slog.Warn("failed to ingest source", "url", sourceURL, "error", err)
			continue
		}
		total += added
	}

	if total > 0 {
		if err := s.store.Save(); err != nil {
			slog.Warn("failed to persist index after rebuild", "error", err)
		}
		s.lastUpdate = time.Now()
	}
	slog.Info("index build complete", "chunks", total, "vectors", s.store.Count())
}

// ingestSource runs fetch → extract → chunk → embed for one source and
// appends the results to the index/metadata pair. It does not persist.
func (s *Service) ingestSource(ctx context.Context, sourceURL string) (int, error) {
	pages, err := s.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return 0, err
	}

	if s.archive != nil {
		s.archivePages(ctx, sourceURL, pages)
	}

	var pending []models.Chunk
	for _, page := range pages {
		result, err := s.extractor.Extract(page.URL, page.ContentType, page.Body)
		if err != nil {
			slog.Warn("failed to extract page", "url", page.URL, "error", err)
			continue
		}

		title := result.Title
		if title == "" {
			title = page.URL
		}

		for i, text := range s.chunker.Split(result.Text) {
			pending = append(pending, models.Chunk{
				ID:          models.ChunkID(page.URL, i),
				Text:        text,
				SourceURL:   page.URL,
				SourceTitle: title,
			})
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	embedded := s.embedder.EmbedBatch(ctx, pending)
	if len(embedded) < len(pending) {
		slog.Warn("some chunks failed to embed", "url", sourceURL,
			"failed", len(pending)-len(embedded), "total", len(pending))
	}
	if len(embedded) == 0 {
		return 0, nil
	}

	vectors := make([][]float32, len(embedded))
	chunks := make([]models.Chunk, len(embedded))
	for i, e := range embedded {
		vectors[i] = e.Vector
		chunks[i] = e.Chunk
	}

	s.store.EnsureDim(len(vectors[0]))
	if err := s.store.Append(vectors, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// archivePages stores the raw fetched pages; archival failures are logged
// and never affect ingestion.
func (s *Service) archivePages(ctx context.Context, sourceURL string, pages []fetcher.Page) {
	if err := s.archive.EnsureBucket(ctx); err != nil {
		slog.Warn("failed to prepare archive bucket", "error", err)
		return
	}

	var archived []string
	for _, page := range pages {
		if err := s.archive.PutPage(ctx, sourceURL, page.URL, page.Body, page.ContentType); err != nil {
			slog.Warn("failed to archive page", "url", page.URL, "error", err)
			continue
		}
		archived = append(archived, page.URL)
	}

	if err := s.archive.PutManifest(ctx, sourceURL, archived); err != nil {
		slog.Warn("failed to archive manifest", "url", sourceURL, "error", err)
	}
}

// RetrieveChunks embeds the query, searches the index for the topN nearest
// chunks, and returns them with their deduplicated sources. An empty or
// uninitialized index, or an invalid query embedding, yields an empty
// result rather than an error.
func (s *Service) RetrieveChunks(ctx context.Context, query string, topN int) (*Results, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}
	empty := &Results{Chunks: []models.ScoredChunk{}, Sources: []models.Source{}}

	if err := s.Initialize(ctx, false); err != nil {
		return empty, err
	}
	if s.store.Count() == 0 {
		return empty, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("failed to embed query", "error", err)
		return empty, nil
	}
	if len(vector) == 0 || len(vector) != s.store.Dim() {
		slog.Warn("query embedding has unexpected shape", "got", len(vector), "want", s.store.Dim())
		return empty, nil
	}

	scored := make([]models.ScoredChunk, 0, topN)
	for _, r := range s.store.Search(vector, topN) {
		chunk, ok := s.store.Chunk(r.Position)
		if !ok {
			slog.Warn("search result outside metadata bounds", "position", r.Position, "metadata", len(s.store.Chunks()))
			continue
		}
		scored = append(scored, models.ScoredChunk{Chunk: chunk, Score: vecindex.Score(r.Distance)})
	}

	sources := models.UniqueSources(scored)
	if sources == nil {
		sources = []models.Source{}
	}
	return &Results{Chunks: scored, Sources: sources}, nil
}

// AddURLSource ingests a single new source URL and persists the mutated
// index. Malformed and already-ingested URLs are rejected. When
// persistence fails the in-memory state remains mutated and the failure is
// reported.
func (s *Service) AddURLSource(ctx context.Context, sourceURL string) *AddResult {
	parsed, err := url.Parse(sourceURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return &AddResult{Message: fmt.Sprintf("invalid URL: %s", sourceURL)}
	}

	if err := s.Initialize(ctx, false); err != nil {
		return &AddResult{Message: fmt.Sprintf("initialization failed: %v", err)}
	}

	if s.store.HasSource(sourceURL) {
		return &AddResult{Message: fmt.Sprintf("source already exists: %s", sourceURL)}
	}

	added, err := s.ingestSource(ctx, sourceURL)
	if err != nil {
		return &AddResult{Message: fmt.Sprintf("failed to ingest source: %v", err)}
	}
	if added == 0 {
		return &AddResult{Success: true, Message: "source yielded no indexable chunks"}
	}

	if err := s.store.Save(); err != nil {
		return &AddResult{
			ChunksAdded: added,
			Message:     fmt.Sprintf("chunks added in memory but persistence failed: %v", err),
		}
	}

	s.lastUpdate = time.Now()
	return &AddResult{
		Success:     true,
		ChunksAdded: added,
		Message:     fmt.Sprintf("added %d chunks from %s", added, sourceURL),
	}
}

// ResetDatabase deletes both persisted artifacts and clears the in-memory
// index and metadata. Memory is always cleared; the result reports any
// artifact deletions that failed. The service stays initialized in its
// empty state, so a later query does not trigger a rebuild.
func (s *Service) ResetDatabase() *ResetResult {
	err := s.store.Reset()
	s.initialized.Store(true)
	s.lastUpdate = time.Now()

	if err != nil {
		return &ResetResult{Message: fmt.Sprintf("memory cleared, but artifact deletion failed: %v", err)}
	}
	return &ResetResult{Success: true, Message: "database reset"}
}

// Status returns a snapshot of the service state, triggering lazy
// initialization so a cold service reports accurate (possibly empty)
// state.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	if err := s.Initialize(ctx, false); err != nil {
		return nil, err
	}

	sources := models.SourcesOf(s.store.Chunks())
	if sources == nil {
		sources = []models.Source{}
	}
	return &Status{
		Initialized:    s.initialized.Load(),
		LastUpdateTime: s.lastUpdate,
		ChunkCount:     len(s.store.Chunks()),
		VectorCount:    s.store.Count(),
		SourceURLs:     sources,
	}, nil
}

// VectorCount returns the number of indexed vectors.
func (s *Service) VectorCount(ctx context.Context) (int, error) {
	if err := s.Initialize(ctx, false); err != nil {
		return 0, err
	}
	return s.store.Count(), nil
}

// SourceURLs returns the unique ingested sources in first-seen order.
func (s *Service) SourceURLs(ctx context.Context) ([]models.Source, error) {
	if err := s.Initialize(ctx, false); err != nil {
		return nil, err
	}
	sources := models.SourcesOf(s.store.Chunks())
	if sources == nil {
		sources = []models.Source{}
	}
	return sources, nil
}
