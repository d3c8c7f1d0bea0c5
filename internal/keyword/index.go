// Package keyword provides full-text search over image names and descriptions.
package keyword

import (
	"context"

	"github.com/hyperjump/gazou/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// NameBoost multiplies the score contribution from matches in the file name.
	// Values > 1 make name matches rank higher. Use 1.0 for no boost.
	NameBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2). Default 1.
	Fuzziness int
}

// KeywordIndex defines keyword search operations keyed by record path.
type KeywordIndex interface {
	Index(ctx context.Context, records []*models.IndexRecord) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, paths []string) error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit. ID is the record path.
type KeywordResult struct {
	ID    string
	Score float64
}

// document is what gets stored in the index for one record.
type document struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Root        string `json:"root"`
}
