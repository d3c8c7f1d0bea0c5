package watcher

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushRecorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *flushRecorder) flush(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, paths)
}

func (r *flushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestPendingBatch_StateMachine(t *testing.T) {
	rec := &flushRecorder{}
	b := newPendingBatch(30*time.Millisecond, rec.flush)

	state, _ := b.snapshot()
	assert.Equal(t, stateIdle, state)

	b.add("/r/a.jpg", "/r/b.jpg", "/r/a.jpg")
	state, paths := b.snapshot()
	assert.Equal(t, stateAccumulating, state)
	assert.Equal(t, []string{"/r/a.jpg", "/r/b.jpg"}, paths)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"/r/a.jpg", "/r/b.jpg"}, rec.batches[0])
	state, _ = b.snapshot()
	assert.Equal(t, stateIdle, state)

	b.add("/r/c.jpg")
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"/r/c.jpg"}, rec.batches[1])
}

func TestPendingBatch_RenameMigratesDescendants(t *testing.T) {
	b := newPendingBatch(time.Hour, func([]string) {})
	defer b.stop()
	b.add("/r/trip/a.jpg", "/r/trip/sub/b.jpg", "/r/tripod.jpg")

	b.rename("/r/trip", "/r/holiday")

	_, paths := b.snapshot()
	assert.Equal(t, []string{"/r/holiday/a.jpg", "/r/holiday/sub/b.jpg", "/r/tripod.jpg"}, paths)
}

func TestPendingBatch_DropToIdle(t *testing.T) {
	rec := &flushRecorder{}
	b := newPendingBatch(20*time.Millisecond, rec.flush)
	b.add("/r/a/x.jpg", "/r/a/y.jpg")

	b.drop("/r/a")

	state, paths := b.snapshot()
	assert.Equal(t, stateIdle, state)
	assert.Empty(t, paths)
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, rec.count())
}

func TestPendingBatch_StopDiscards(t *testing.T) {
	rec := &flushRecorder{}
	b := newPendingBatch(20*time.Millisecond, rec.flush)
	b.add("/r/a.jpg")
	b.stop()
	b.add("/r/b.jpg")

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, rec.count())
	assert.Equal(t, "idle", stateIdle.String())
	assert.Equal(t, "accumulating", stateAccumulating.String())
}
