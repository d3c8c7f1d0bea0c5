package keyword

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/gazou/internal/models"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "bleve"))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveIndex_SearchFindsDescription(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	recs := []*models.IndexRecord{
		{Path: "/r/a.png", Name: "a.png", Root: "/r", Description: "A tabby cat sleeping on a red sofa"},
		{Path: "/r/b.png", Name: "b.png", Root: "/r", Description: "Mountain lake at sunrise"},
	}
	if err := idx.Index(ctx, recs); err != nil {
		t.Fatalf("Index: %v", err)
	}

	results, err := idx.Search(ctx, "sofa", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "/r/a.png" {
		t.Fatalf("expected /r/a.png, got %+v", results)
	}
}

func TestBleveIndex_SearchFindsNameWords(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	recs := []*models.IndexRecord{
		{Path: "/r/beach_holiday-2023.jpg", Name: "beach_holiday-2023.jpg", Root: "/r", Description: "people"},
	}
	if err := idx.Index(ctx, recs); err != nil {
		t.Fatalf("Index: %v", err)
	}
	results, err := idx.Search(ctx, "holiday", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected name word to match, got %d results", len(results))
	}
}

func TestBleveIndex_NameBoostAndCoverage(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	recs := []*models.IndexRecord{
		{Path: "/r/1.png", Name: "dog.png", Root: "/r", Description: "an animal in a park"},
		{Path: "/r/2.png", Name: "x.png", Root: "/r", Description: "a dog chasing a ball in the park"},
		{Path: "/r/3.png", Name: "y.png", Root: "/r", Description: "a ball"},
	}
	if err := idx.Index(ctx, recs); err != nil {
		t.Fatalf("Index: %v", err)
	}
	results, err := idx.Search(ctx, "dog ball", 10, &SearchOptions{NameBoost: 3})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	rank := make(map[string]int)
	for i, r := range results {
		rank[r.ID] = i
	}
	if rank["/r/2.png"] > rank["/r/3.png"] {
		t.Errorf("record matching every term should outrank a partial match: %+v", results)
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, []*models.IndexRecord{{Path: "/r/a.png", Name: "a.png", Description: "lighthouse"}})

	results, _ := idx.Search(ctx, "lighthuose", 10, nil)
	if len(results) != 0 {
		t.Errorf("exact search should not match a typo, got %d", len(results))
	}
	results, err := idx.Search(ctx, "lighthuose", 10, &SearchOptions{FuzzyEnabled: true, Fuzziness: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("fuzzy search should match, got %d", len(results))
	}
}

func TestBleveIndex_ReopenKeepsDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleve")
	idx1, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	ctx := context.Background()
	if err := idx1.Index(ctx, []*models.IndexRecord{{Path: "/r/a.png", Name: "a.png", Description: "uniqueword"}}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx2, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex (open existing): %v", err)
	}
	defer idx2.Close()
	results, err := idx2.Search(ctx, "uniqueword", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected reopened index to keep documents, got %d", len(results))
	}
}

func TestBleveIndex_Delete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	_ = idx.Index(ctx, []*models.IndexRecord{{Path: "/r/a.png", Name: "a.png", Description: "onlyhere"}})

	if err := idx.Delete(ctx, []string{"/r/a.png", "/r/unknown.png"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	results, _ := idx.Search(ctx, "onlyhere", 10, nil)
	if len(results) != 0 {
		t.Errorf("expected 0 results after delete, got %d", len(results))
	}
	n, _ := idx.DocCount()
	if n != 0 {
		t.Errorf("DocCount=%d", n)
	}
}

func TestNewBleveIndex_MemOnly(t *testing.T) {
	idx, err := NewBleveIndex("")
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	defer idx.Close()
	if n, _ := idx.DocCount(); n != 0 {
		t.Errorf("DocCount=%d", n)
	}
}
