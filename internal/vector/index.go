// Package vector provides approximate and exact nearest-neighbor indexes over normalized vectors.
package vector

import (
	"context"
	"sort"
)

// VectorIndex defines vector storage and similarity search keyed by record path.
// Add replaces any vector already stored under the same ID.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Size() int
	Type() string
	Close() error
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID    string
	Score float64 // inner product, equal to cosine similarity for normalized vectors
}

// sortResults orders by descending score, breaking ties by ascending ID.
func sortResults(results []*VectorResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

func topK(results []*VectorResult, k int) []*VectorResult {
	sortResults(results)
	if k < len(results) {
		results = results[:k]
	}
	return results
}
