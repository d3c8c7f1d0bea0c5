package embedding

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/hyperjump/gazou/internal/models"
)

// MockGateway is a deterministic gateway for tests and offline use. Vectors are derived from a
// hash of the thumbnail bytes or query text, so the same input always gets the same vector.
type MockGateway struct {
	dimensions int

	mu          sync.Mutex
	describeErr error
	textErr     error
	describes   [][]string
	texts       []string
	names       map[string]string
}

// NewMockGateway returns a gateway that produces deterministic vectors of the given dimensions.
func NewMockGateway(dimensions int) *MockGateway {
	if dimensions <= 0 {
		dimensions = 768
	}
	return &MockGateway{dimensions: dimensions, names: make(map[string]string)}
}

// FailDescribe makes subsequent DescribeImages calls return err. Nil restores success.
func (m *MockGateway) FailDescribe(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.describeErr = err
}

// FailText makes subsequent EmbedText calls return err. Nil restores success.
func (m *MockGateway) FailText(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.textErr = err
}

// SuggestName makes the gateway propose name for any thumbnail whose bytes equal content.
func (m *MockGateway) SuggestName(content []byte, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[string(content)] = name
}

// DescribeCalls returns the thumbnail lists of every DescribeImages call so far.
func (m *MockGateway) DescribeCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.describes...)
}

// TextCalls returns the text of every EmbedText call so far.
func (m *MockGateway) TextCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// DescribeImages returns one deterministic embedding per thumbnail.
func (m *MockGateway) DescribeImages(ctx context.Context, thumbnails []string, rename bool) ([]models.ImageEmbedding, error) {
	m.mu.Lock()
	m.describes = append(m.describes, append([]string(nil), thumbnails...))
	err := m.describeErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]models.ImageEmbedding, len(thumbnails))
	for i, p := range thumbnails {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrFileSystem, err)
		}
		h := HashString(string(data))
		out[i] = models.ImageEmbedding{
			Description: fmt.Sprintf("image %016x", h),
			Vector:      m.vector(h),
		}
		if rename {
			m.mu.Lock()
			out[i].SuggestedName = m.names[string(data)]
			m.mu.Unlock()
		}
	}
	return out, nil
}

// EmbedText returns a deterministic embedding based on the text hash.
func (m *MockGateway) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	err := m.textErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.vector(HashString(text)), nil
}

// VectorFor returns the vector DescribeImages produces for a thumbnail with these bytes.
func (m *MockGateway) VectorFor(content []byte) []float32 {
	return m.vector(HashString(string(content)))
}

// vector spreads h over the dimensions and normalizes to unit length.
func (m *MockGateway) vector(h uint64) []float32 {
	emb := make([]float32, m.dimensions)
	seed := float64(h%1_000_003) + 1
	var sum float64
	for i := range emb {
		v := math.Sin(seed*float64(i+1))*0.1 + 0.01
		emb[i] = float32(v)
		sum += v * v
	}
	norm := 1.0 / math.Sqrt(sum)
	for i := range emb {
		emb[i] = float32(float64(emb[i]) * norm)
	}
	return emb
}
