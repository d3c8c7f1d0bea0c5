package indexer

import (
	"github.com/hyperjump/gazou/internal/models"
)

// flight follows the paths of one chunk from thumbnailing to upsert, so that removals and
// renames reported by the watcher while the gateway call is outstanding are not lost.
type flight struct {
	paths []string
	gone  []bool
}

func (idx *Indexer) track(chunk []string) *flight {
	f := &flight{paths: append([]string(nil), chunk...), gone: make([]bool, len(chunk))}
	idx.flightMu.Lock()
	idx.inFlight[f] = struct{}{}
	idx.flightMu.Unlock()
	return f
}

func (idx *Indexer) untrack(f *flight) {
	idx.flightMu.Lock()
	delete(idx.inFlight, f)
	idx.flightMu.Unlock()
}

// current returns the chunk paths as they are now. Removed entries are empty.
func (idx *Indexer) current(f *flight) []string {
	idx.flightMu.Lock()
	defer idx.flightMu.Unlock()
	out := make([]string, len(f.paths))
	for i, p := range f.paths {
		if !f.gone[i] {
			out[i] = p
		}
	}
	return out
}

// Forget marks every in-flight path at or beneath path as removed. Their records are not written.
func (idx *Indexer) Forget(path string) {
	idx.flightMu.Lock()
	defer idx.flightMu.Unlock()
	for f := range idx.inFlight {
		for i, p := range f.paths {
			if models.IsWithin(path, p) {
				f.gone[i] = true
			}
		}
	}
}

// Moved redirects in-flight paths at or beneath from to the same place under to.
func (idx *Indexer) Moved(from, to string) {
	idx.flightMu.Lock()
	defer idx.flightMu.Unlock()
	for f := range idx.inFlight {
		for i, p := range f.paths {
			if moved, ok := models.Rebase(p, from, to); ok {
				f.paths[i] = moved
			}
		}
	}
}
