package vecindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tripwell/policy-rag/pkg/models"
)

const (
	// IndexFile is the binary vector index artifact name.
	IndexFile = "index.bin"
	// MetadataFile is the chunk metadata artifact name.
	MetadataFile = "metadata.json"
)

// Store pairs a vector index with a positionally aligned list of chunk
// metadata records and persists both under a data directory. The two
// structures grow in lockstep: metadata[i] describes the vector at
// position i.
type Store struct {
	dir   string
	index *Index
	meta  []models.Chunk
}

// NewStore creates an empty store for vectors of the given dimension,
// persisted under dir.
func NewStore(dir string, dim int) *Store {
	return &Store{dir: dir, index: NewIndex(dim)}
}

func (s *Store) indexPath() string    { return filepath.Join(s.dir, IndexFile) }
func (s *Store) metadataPath() string { return filepath.Join(s.dir, MetadataFile) }

// Count returns the number of indexed vectors.
func (s *Store) Count() int { return s.index.Count() }

// Dim returns the index vector dimension.
func (s *Store) Dim() int { return s.index.Dim() }

// Chunk returns the metadata record at the given index position.
func (s *Store) Chunk(position int) (models.Chunk, bool) {
	if position < 0 || position >= len(s.meta) {
		return models.Chunk{}, false
	}
	return s.meta[position], true
}

// Chunks returns all metadata records in index order.
func (s *Store) Chunks() []models.Chunk { return s.meta }

// HasSource reports whether any metadata record originates from url.
func (s *Store) HasSource(url string) bool {
	for _, c := range s.meta {
		if c.SourceURL == url {
			return true
		}
	}
	return false
}

// EnsureDim re-dimensions an empty index to match the provider's actual
// output. It is a no-op once vectors have been stored.
func (s *Store) EnsureDim(dim int) {
	if s.index.Count() == 0 && dim > 0 && dim != s.index.Dim() {
		slog.Debug("re-dimensioning empty index", "from", s.index.Dim(), "to", dim)
		s.index = NewIndex(dim)
	}
}

// Append adds vectors and their metadata records in a single call,
// preserving the lockstep invariant.
func (s *Store) Append(vectors [][]float32, chunks []models.Chunk) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("vectors (%d) and chunks (%d) must grow in lockstep", len(vectors), len(chunks))
	}
	if err := s.index.Add(vectors); err != nil {
		return err
	}
	s.meta = append(s.meta, chunks...)
	return nil
}

// Search returns the topN nearest stored vectors to query.
func (s *Store) Search(query []float32, topN int) []Result {
	return s.index.Search(query, topN)
}

// Load reads both persisted artifacts. A missing artifact yields an empty
// structure; a corrupt index file is deleted and replaced with an empty
// index; unparseable metadata is treated as empty. A count mismatch
// between the two is logged but tolerated, the index count being ground
// truth for what can be searched.
func (s *Store) Load() error {
	dim := s.index.Dim()

	index, err := s.loadIndex(dim)
	if err != nil {
		return err
	}
	s.index = index
	s.meta = s.loadMetadata()

	if len(s.meta) != s.index.Count() {
		slog.Warn("index/metadata count mismatch, proceeding",
			"vectors", s.index.Count(), "metadata", len(s.meta))
	}
	return nil
}

func (s *Store) loadIndex(dim int) (*Index, error) {
	f, err := os.Open(s.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return NewIndex(dim), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()

	var size int64
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}

	index, err := ReadIndex(f, size)
	if err != nil {
		slog.Warn("index file unreadable, rebuilding empty", "path", s.indexPath(), "error", err)
		os.Remove(s.indexPath())
		return NewIndex(dim), nil
	}
	if index.Dim() != dim {
		slog.Warn("loaded index dimension differs from configured model",
			"loaded", index.Dim(), "configured", dim)
	}
	return index, nil
}

func (s *Store) loadMetadata() []models.Chunk {
	data, err := os.ReadFile(s.metadataPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		slog.Warn("metadata file unreadable, treating as empty", "path", s.metadataPath(), "error", err)
		return nil
	}

	var meta []models.Chunk
	if err := json.Unmarshal(data, &meta); err != nil {
		slog.Warn("metadata file unparseable, treating as empty", "path", s.metadataPath(), "error", err)
		return nil
	}
	return meta
}

// Save persists both artifacts, each written to a temp file and atomically
// renamed into place.
func (s *Store) Save() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	if err := writeFileAtomic(s.indexPath(), s.index.WriteTo); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}

	if err := writeFileAtomic(s.metadataPath(), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		meta := s.meta
		if meta == nil {
			meta = []models.Chunk{}
		}
		return enc.Encode(meta)
	}); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

// Reset deletes both on-disk artifacts and clears the in-memory index and
// metadata. Memory is always cleared, even when file deletion fails; the
// returned error reports which deletions failed.
func (s *Store) Reset() error {
	var errs []error
	for _, path := range []string{s.indexPath(), s.metadataPath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", path, err))
		}
	}

	s.index = NewIndex(s.index.Dim())
	s.meta = nil

	return errors.Join(errs...)
}
