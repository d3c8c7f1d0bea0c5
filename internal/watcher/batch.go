package watcher

import (
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/gazou/internal/models"
)

// DefaultDebounce is how long a directory must be quiet before pending modifications are indexed.
const DefaultDebounce = 5 * time.Second

type batchState int

const (
	stateIdle batchState = iota
	stateAccumulating
)

func (s batchState) String() string {
	if s == stateAccumulating {
		return "accumulating"
	}
	return "idle"
}

// pendingBatch collects modified paths for one directory. The first path moves it from Idle to
// Accumulating; every further path pushes the deadline out by the debounce. When the deadline
// passes the deduplicated set is handed to flush and the batch returns to Idle.
type pendingBatch struct {
	debounce time.Duration
	flush    func(paths []string)

	mu       sync.Mutex
	state    batchState
	paths    map[string]struct{}
	deadline time.Time
	timer    *time.Timer
	gen      uint64
	stopped  bool
}

func newPendingBatch(debounce time.Duration, flush func([]string)) *pendingBatch {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &pendingBatch{
		debounce: debounce,
		flush:    flush,
		paths:    make(map[string]struct{}),
	}
}

// add records paths and re-arms the timer.
func (b *pendingBatch) add(paths ...string) {
	if len(paths) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	for _, p := range paths {
		b.paths[p] = struct{}{}
	}
	b.state = stateAccumulating
	b.armLocked()
}

func (b *pendingBatch) armLocked() {
	b.gen++
	gen := b.gen
	b.deadline = time.Now().Add(b.debounce)
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.debounce, func() { b.fire(gen) })
}

// fire flushes when gen is still the latest arming. Older timers that lost the race to Stop
// see a newer gen and do nothing.
func (b *pendingBatch) fire(gen uint64) {
	b.mu.Lock()
	if b.stopped || gen != b.gen || b.state != stateAccumulating {
		b.mu.Unlock()
		return
	}
	paths := b.takeLocked()
	b.mu.Unlock()
	if len(paths) > 0 {
		b.flush(paths)
	}
}

func (b *pendingBatch) takeLocked() []string {
	paths := make([]string, 0, len(b.paths))
	for p := range b.paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	b.paths = make(map[string]struct{})
	b.state = stateIdle
	b.deadline = time.Time{}
	b.timer = nil
	return paths
}

// rename moves pending entries at or beneath oldPath to newPath. The deadline is untouched.
func (b *pendingBatch) rename(oldPath, newPath string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for p := range b.paths {
		if moved, ok := models.Rebase(p, oldPath, newPath); ok {
			delete(b.paths, p)
			b.paths[moved] = struct{}{}
		}
	}
}

// drop forgets pending entries at or beneath path. An emptied batch goes back to Idle.
func (b *pendingBatch) drop(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for p := range b.paths {
		if models.IsWithin(path, p) {
			delete(b.paths, p)
		}
	}
	if len(b.paths) == 0 && b.state == stateAccumulating {
		if b.timer != nil {
			b.timer.Stop()
		}
		b.gen++
		b.takeLocked()
	}
}

// snapshot returns the state and a sorted copy of the pending paths.
func (b *pendingBatch) snapshot() (batchState, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	paths := make([]string, 0, len(b.paths))
	for p := range b.paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return b.state, paths
}

// stop discards pending paths; no flush happens afterwards.
func (b *pendingBatch) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
	}
	b.paths = make(map[string]struct{})
	b.state = stateIdle
}
