package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search. Good for small collections.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeIVF uses the pure-Go inverted-file index with scalar quantization.
	IndexTypeIVF IndexType = "ivf"
	// IndexTypeFAISS uses FAISS for flat inner-product search.
	// Requires FAISS library and build tag -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// NewVectorIndex creates a vector index of the specified type.
// Supported types: "ivf" (default), "memory", "faiss". IVF options are ignored by the other types.
func NewVectorIndex(indexType string, dimensions int, opts ...IVFOption) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeIVF, "":
		return NewIVFIndex(dimensions, opts...)
	case IndexTypeMemory:
		return NewMemoryIndex(dimensions)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: ivf, memory, faiss)", indexType)
	}
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
// This is determined by the build tag -tags=faiss.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
