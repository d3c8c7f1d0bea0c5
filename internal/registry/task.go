package registry

import (
	"context"
	"sync"
	"time"

	"github.com/hyperjump/gazou/internal/models"
)

// Task tracks one crawl-and-index run for a directory. It completes independently of the
// registration that started it.
type Task struct {
	root    string
	started time.Time
	done    chan struct{}

	mu       sync.Mutex
	progress models.Progress
	outcome  models.BatchOutcome
	finished time.Time
}

// TaskStatus is a point-in-time view of a Task.
type TaskStatus struct {
	Root       string     `json:"root"`
	Total      int        `json:"total"`
	Current    int        `json:"current"`
	Indexed    int        `json:"indexed"`
	Failed     int        `json:"failed"`
	Done       bool       `json:"done"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func newTask(root string) *Task {
	return &Task{root: root, started: time.Now(), done: make(chan struct{})}
}

// Root returns the directory the task indexes.
func (t *Task) Root() string {
	return t.root
}

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) (models.BatchOutcome, error) {
	select {
	case <-t.done:
		out, _ := t.Outcome()
		return out, nil
	case <-ctx.Done():
		return models.BatchOutcome{}, ctx.Err()
	}
}

// Outcome returns the final outcome; ok is false while the task is still running.
func (t *Task) Outcome() (models.BatchOutcome, bool) {
	select {
	case <-t.done:
	default:
		return models.BatchOutcome{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome, true
}

// Progress returns the latest progress report.
func (t *Task) Progress() models.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Status returns a serializable snapshot.
func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := TaskStatus{
		Root:      t.root,
		Total:     t.progress.Total,
		Current:   t.progress.Current,
		StartedAt: t.started,
	}
	if !t.finished.IsZero() {
		finished := t.finished
		st.Done = true
		st.FinishedAt = &finished
		st.Indexed = t.outcome.Indexed
		st.Failed = t.outcome.Failed
		if err := t.outcome.Err(); err != nil {
			st.Error = err.Error()
		}
	}
	return st
}

func (t *Task) report(p models.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = p
}

func (t *Task) finish(out models.BatchOutcome) {
	t.mu.Lock()
	t.outcome = out
	t.progress.Total = out.Total
	t.finished = time.Now()
	t.mu.Unlock()
	close(t.done)
}
