// Package vecindex provides a persistent flat vector index with exact
// nearest-neighbor search by squared Euclidean distance, paired with a
// positionally aligned chunk metadata store.
package vecindex

import (
	"fmt"
	"sort"
)

// Result is a single nearest-neighbor hit. Position is the vector's 0-based
// slot in the index; Distance is the squared L2 distance to the query.
type Result struct {
	Position int
	Distance float64
}

// Index is a flat, append-only collection of fixed-dimension vectors.
// Positions are never reused or compacted.
type Index struct {
	dim     int
	vectors [][]float32
}

// NewIndex creates an empty index for vectors of the given dimension.
func NewIndex(dim int) *Index {
	return &Index{dim: dim}
}

// Dim returns the vector dimension.
func (x *Index) Dim() int { return x.dim }

// Count returns the number of stored vectors.
func (x *Index) Count() int { return len(x.vectors) }

// Add appends vectors to the index. All vectors must match the index
// dimension; on a mismatch nothing is appended.
func (x *Index) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), x.dim)
		}
	}
	x.vectors = append(x.vectors, vectors...)
	return nil
}

// Search returns the topN stored vectors nearest to query, ascending by
// squared L2 distance. Ties are broken by index position.
func (x *Index) Search(query []float32, topN int) []Result {
	if len(query) != x.dim || len(x.vectors) == 0 || topN <= 0 {
		return nil
	}

	results := make([]Result, len(x.vectors))
	for i, v := range x.vectors {
		results[i] = Result{Position: i, Distance: squaredL2(query, v)}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Position < results[j].Position
	})

	if topN < len(results) {
		results = results[:topN]
	}
	return results
}

// Score converts a squared L2 distance to a normalized similarity score:
// 1.0 is a perfect match and the score decreases monotonically with
// distance.
func Score(distance float64) float64 {
	return 1 / (1 + distance)
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
