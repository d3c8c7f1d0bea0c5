// Package embedding talks to the remote service that describes images and embeds text.
package embedding

import (
	"context"
	"hash/fnv"

	"github.com/hyperjump/gazou/internal/models"
)

// Gateway produces descriptions and vectors for thumbnails, and vectors for free text.
type Gateway interface {
	// DescribeImages submits every thumbnail in one call. Results are in submission order.
	// When rename is true the service may propose a new base name for each image.
	DescribeImages(ctx context.Context, thumbnails []string, rename bool) ([]models.ImageEmbedding, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// HashString returns a stable non-negative hash of s.
func HashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
