package models

// Progress is reported after each chunk of an indexing batch.
// Total is the number of paths in the batch and Current the number whose chunk has been processed.
// Err is set when the chunk just processed failed.
type Progress struct {
	Total   int   `json:"total"`
	Current int   `json:"current"`
	Err     error `json:"-"`
}

// Done reports whether every path has been processed.
func (p Progress) Done() bool {
	return p.Current >= p.Total
}

// ProgressFunc receives progress updates. It may be nil.
type ProgressFunc func(Progress)

// BatchOutcome summarizes an indexing batch.
type BatchOutcome struct {
	Total   int     `json:"total"`
	Indexed int     `json:"indexed"`
	Failed  int     `json:"failed"`
	Errors  []error `json:"-"`
}

// Err returns the first chunk error, or nil when every chunk succeeded.
func (o BatchOutcome) Err() error {
	if len(o.Errors) == 0 {
		return nil
	}
	return o.Errors[0]
}
