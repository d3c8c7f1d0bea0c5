package models

import "fmt"

// SearchResult is a single similarity hit.
type SearchResult struct {
	Name        string  `json:"name"`
	Path        string  `json:"path"`
	Root        string  `json:"root"`
	Thumbnail   string  `json:"thumbnail"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// NewSearchResult builds a result from a stored record and its score.
func NewSearchResult(rec *IndexRecord, score float64) *SearchResult {
	return &SearchResult{
		Name:        rec.Name,
		Path:        rec.Path,
		Root:        rec.Root,
		Thumbnail:   rec.Thumbnail,
		Description: rec.Description,
		Score:       score,
	}
}

// SearchRequest is the body of a search call.
type SearchRequest struct {
	Keyword string `json:"keyword"`
	Top     int    `json:"top"`
}

// Validate rejects empty keywords and negative tops, and caps top at maxTop when maxTop > 0.
func (r *SearchRequest) Validate(maxTop int) error {
	if r.Keyword == "" {
		return fmt.Errorf("keyword cannot be empty: %w", ErrInvalidInput)
	}
	if r.Top < 0 {
		return fmt.Errorf("top must not be negative: %w", ErrInvalidInput)
	}
	if maxTop > 0 && r.Top > maxTop {
		r.Top = maxTop
	}
	return nil
}

// SearchResponse wraps the ranked results of a query.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	Keyword   string          `json:"keyword"`
	QueryTime int64           `json:"query_time_ms"`
}
