//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"errors"
)

var errNoFAISS = errors.New("faiss index not compiled in: rebuild with cgo and -tags=faiss, or use index type ivf")

// FAISSIndex is the placeholder used when the binary is built without FAISS. Every operation
// fails with the same error so a misconfigured index type is reported once at open.
type FAISSIndex struct{}

func NewFAISSIndex(dimensions int) (*FAISSIndex, error) { return nil, errNoFAISS }

func (f *FAISSIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	return errNoFAISS
}

func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	return nil, errNoFAISS
}

func (f *FAISSIndex) Remove(ctx context.Context, ids []string) error { return errNoFAISS }

func (f *FAISSIndex) Size() int { return 0 }

func (f *FAISSIndex) Rows() int { return 0 }

func (f *FAISSIndex) Close() error { return nil }

func (f *FAISSIndex) Type() string { return string(IndexTypeFAISS) }
