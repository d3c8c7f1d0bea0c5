package vector

import (
	"context"
	"testing"
)

func TestNewVectorIndex_Types(t *testing.T) {
	tests := []struct {
		indexType string
		wantType  string
	}{
		{"", "ivf"},
		{"ivf", "ivf"},
		{"memory", "memory"},
	}
	for _, tt := range tests {
		t.Run(tt.indexType, func(t *testing.T) {
			idx, err := NewVectorIndex(tt.indexType, 3)
			if err != nil {
				t.Fatalf("NewVectorIndex(%q): %v", tt.indexType, err)
			}
			defer idx.Close()
			if idx.Type() != tt.wantType {
				t.Errorf("Type=%s, want %s", idx.Type(), tt.wantType)
			}
			if err := idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0}}); err != nil {
				t.Fatalf("Add: %v", err)
			}
			if idx.Size() != 1 {
				t.Errorf("Size=%d, want 1", idx.Size())
			}
		})
	}
}

func TestNewVectorIndex_Unknown(t *testing.T) {
	_, err := NewVectorIndex("unknown", 3)
	if err == nil {
		t.Error("expected error for unknown index type")
	}
}

func TestNewVectorIndex_InvalidDimension(t *testing.T) {
	for _, typ := range []string{"memory", "ivf"} {
		if _, err := NewVectorIndex(typ, 0); err == nil {
			t.Errorf("%s: expected error for zero dimension", typ)
		}
	}
}

func TestIsFAISSAvailable(t *testing.T) {
	// The result depends on build tags.
	t.Logf("FAISS available: %v", IsFAISSAvailable())
}

func TestNewVectorIndex_FAISS(t *testing.T) {
	if !IsFAISSAvailable() {
		t.Skip("FAISS not available (build with -tags=faiss)")
	}
	idx, err := NewVectorIndex("faiss", 3)
	if err != nil {
		t.Fatalf("NewVectorIndex(faiss): %v", err)
	}
	defer idx.Close()
	if err := idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
}
