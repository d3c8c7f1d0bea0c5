//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/MetaIndexes_c.h>
#include <faiss/c_api/impl/AuxIndexStructures_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

// FAISSIndex wraps an IndexFlatIP in an IndexIDMap so each record path keeps a stable label
// that can be removed from FAISS itself. Replacing a path removes its old row first.
type FAISSIndex struct {
	index      *C.FaissIndexIDMap
	dimensions int
	labels     map[string]int64
	paths      map[int64]string
	next       int64
	mu         sync.RWMutex
}

// NewFAISSIndex creates an exact inner-product FAISS index over vectors of the given dimension.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	var flat *C.FaissIndexFlatIP
	if C.faiss_IndexFlatIP_new_with(&flat, C.idx_t(dimensions)) != 0 {
		return nil, faissError("create flat index")
	}
	var mapped *C.FaissIndexIDMap
	if C.faiss_IndexIDMap_new(&mapped, flat) != 0 {
		C.faiss_Index_free(flat)
		return nil, faissError("create id map")
	}
	C.faiss_IndexIDMap_set_own_fields(mapped, 1)
	return &FAISSIndex{
		index:      mapped,
		dimensions: dimensions,
		labels:     make(map[string]int64),
		paths:      make(map[int64]string),
	}, nil
}

func faissError(op string) error {
	msg := "unknown error"
	if cErr := C.faiss_get_last_error(); cErr != nil {
		msg = C.GoString(cErr)
	}
	return fmt.Errorf("faiss %s: %s", op, msg)
}

// Add stores vectors under ids. When an ID repeats within the batch the last vector wins.
func (f *FAISSIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	last := make(map[string]int, len(ids))
	order := make([]string, 0, len(ids))
	for i, id := range ids {
		if len(vectors[i]) != f.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), f.dimensions)
		}
		if _, seen := last[id]; !seen {
			order = append(order, id)
		}
		last[id] = i
	}
	if len(order) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var stale []int64
	for _, id := range order {
		if label, ok := f.labels[id]; ok {
			stale = append(stale, label)
		}
	}
	if err := f.removeLabels(stale); err != nil {
		return err
	}

	flat := make([]float32, 0, len(order)*f.dimensions)
	labels := make([]int64, len(order))
	for i, id := range order {
		flat = append(flat, vectors[last[id]]...)
		labels[i] = f.next + int64(i)
	}
	ret := C.faiss_Index_add_with_ids(
		f.index,
		C.idx_t(len(order)),
		(*C.float)(unsafe.Pointer(&flat[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return faissError("add")
	}
	for i, id := range order {
		f.labels[id] = labels[i]
		f.paths[labels[i]] = id
	}
	f.next += int64(len(order))
	return nil
}

// Search returns the top-k vectors by inner product, ties broken by ID.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if k > len(f.labels) {
		k = len(f.labels)
	}
	if k <= 0 {
		return nil, nil
	}
	scores := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&scores[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, faissError("search")
	}

	results := make([]*VectorResult, 0, k)
	for i, label := range labels {
		// FAISS pads with -1 when fewer rows than k survive.
		id, ok := f.paths[label]
		if label < 0 || !ok {
			continue
		}
		results = append(results, &VectorResult{ID: id, Score: float64(scores[i])})
	}
	return topK(results, k), nil
}

// Remove deletes vectors by ID. Unknown IDs are ignored.
func (f *FAISSIndex) Remove(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	labels := make([]int64, 0, len(ids))
	for _, id := range ids {
		if label, ok := f.labels[id]; ok {
			labels = append(labels, label)
		}
	}
	return f.removeLabels(labels)
}

// removeLabels drops rows from FAISS and the label maps. Callers hold f.mu.
func (f *FAISSIndex) removeLabels(labels []int64) error {
	if len(labels) == 0 {
		return nil
	}
	var sel *C.FaissIDSelectorBatch
	if C.faiss_IDSelectorBatch_new(&sel, C.size_t(len(labels)), (*C.idx_t)(unsafe.Pointer(&labels[0]))) != 0 {
		return faissError("select ids")
	}
	defer C.faiss_IDSelector_free((*C.FaissIDSelector)(unsafe.Pointer(sel)))

	var removed C.size_t
	if C.faiss_Index_remove_ids(f.index, (*C.FaissIDSelector)(unsafe.Pointer(sel)), &removed) != 0 {
		return faissError("remove")
	}
	for _, label := range labels {
		delete(f.labels, f.paths[label])
		delete(f.paths, label)
	}
	return nil
}

// Size returns the number of stored vectors.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.labels)
}

// Rows returns how many rows FAISS itself holds. It matches Size after every call.
func (f *FAISSIndex) Rows() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return 0
	}
	return int(C.faiss_Index_ntotal(f.index))
}

// Close frees the id map and the flat index it owns.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
