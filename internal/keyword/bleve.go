package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/gazou/internal/models"
)

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an in-memory index.
// If you change the index mapping in code, remove the index directory to force a rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase + tokenize, no stemming.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	docMapping.AddFieldMappingsAt("root", bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("image", docMapping)
	im.DefaultType = "image"
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces records in one batch.
func (b *BleveIndex) Index(ctx context.Context, records []*models.IndexRecord) error {
	batch := b.index.NewBatch()
	for _, rec := range records {
		doc := document{
			Name:        nameTerms(rec.Name),
			Description: rec.Description,
			Root:        rec.Root,
		}
		if err := batch.Index(rec.Path, doc); err != nil {
			return fmt.Errorf("index %s: %w", rec.Path, err)
		}
	}
	return b.index.Batch(batch)
}

// nameTerms splits a file name on the separators people put into names so its words are searchable.
func nameTerms(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '.':
			return ' '
		}
		return r
	}, name)
}

// Delete removes records by path. Unknown paths are ignored.
func (b *BleveIndex) Delete(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, p := range paths {
		batch.Delete(p)
	}
	return b.index.Batch(batch)
}

// Search runs a match query over name and description and returns up to limit results.
// When opts.NameBoost > 1, name and description are queried separately and merged additively,
// with documents that match every query term ranked above partial matches.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	nameBoost := 1.0
	fuzzy := false
	fuzziness := 1
	if opts != nil {
		if opts.NameBoost > 0 {
			nameBoost = opts.NameBoost
		}
		fuzzy = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}
	if nameBoost <= 1.0 {
		return b.searchSingle(query, limit, fuzzy, fuzziness)
	}
	return b.searchWithBoost(query, limit, nameBoost, fuzzy, fuzziness)
}

func (b *BleveIndex) searchSingle(query string, limit int, fuzzy bool, fuzziness int) ([]*KeywordResult, error) {
	req := bleve.NewSearchRequest(b.buildQuery(query, "", fuzzy, fuzziness))
	req.Size = limit
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

func (b *BleveIndex) searchWithBoost(query string, limit int, nameBoost float64, fuzzy bool, fuzziness int) ([]*KeywordResult, error) {
	reqSize := max(limit*2, 50)
	scores := make(map[string]float64)
	for _, field := range []string{"name", "description"} {
		req := bleve.NewSearchRequest(b.buildQuery(query, field, fuzzy, fuzziness))
		req.Size = reqSize
		res, err := b.index.Search(req)
		if err != nil {
			return nil, fmt.Errorf("Bleve %s search failed: %w", field, err)
		}
		weight := 1.0
		if field == "name" {
			weight = nameBoost
		}
		for _, hit := range res.Hits {
			scores[hit.ID] += hit.Score * weight
		}
	}

	terms := tokenizeQuery(query)
	if len(terms) > 1 {
		coverage := b.termCoverage(terms, reqSize, fuzzy, fuzziness)
		for id := range scores {
			matched := max(coverage[id], 1)
			c := float64(matched) / float64(len(terms))
			scores[id] *= c * c
		}
	}

	out := make([]*KeywordResult, 0, len(scores))
	for id, score := range scores {
		out = append(out, &KeywordResult{ID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildQuery returns a match query, or a disjunction of fuzzy term queries when fuzzy is set.
// An empty field searches all fields.
func (b *BleveIndex) buildQuery(query, field string, fuzzy bool, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(query)
	if !fuzzy || len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// termCoverage counts how many distinct query terms each document matches.
func (b *BleveIndex) termCoverage(terms []string, reqSize int, fuzzy bool, fuzziness int) map[string]int {
	coverage := make(map[string]int)
	for _, term := range terms {
		req := bleve.NewSearchRequest(b.buildQuery(term, "", fuzzy, fuzziness))
		req.Size = reqSize
		res, err := b.index.Search(req)
		if err != nil {
			continue
		}
		for _, hit := range res.Hits {
			coverage[hit.ID]++
		}
	}
	return coverage
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
