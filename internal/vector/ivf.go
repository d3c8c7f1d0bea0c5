package vector

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultNProbe         = 8
	defaultTrainThreshold = 256
	defaultRerankFactor   = 4
	kmeansIterations      = 12
	maxTrainingSample     = 65536
)

// IVFIndex is an inverted-file index: a k-means coarse quantizer partitions vectors into lists,
// each vector is also kept as an int8 scalar-quantized code for a cheap first pass, and the best
// candidates are re-ranked with full precision.
//
// Until the collection reaches the training threshold the index answers exactly. Training runs in
// the background and is repeated whenever the collection has doubled since the last training.
// Vectors added between trainings are assigned to their nearest existing list, so they are
// searchable immediately.
type IVFIndex struct {
	dimensions    int
	nlist         int
	nprobe        int
	threshold     int
	rerankFactor  int
	seed          uint64
	logger        *zap.Logger
	mu            sync.RWMutex
	entries       map[string]*ivfEntry
	centroids     [][]float32
	lists         []map[string]struct{}
	trainedAtSize int
	training      bool
	closed        bool
	wg            sync.WaitGroup
}

type ivfEntry struct {
	vec   []float32
	code  []int8
	scale float32
	list  int
}

// IVFOption configures an IVFIndex.
type IVFOption func(*IVFIndex)

// WithNList fixes the number of lists. Zero derives it from the collection size at training time.
func WithNList(n int) IVFOption {
	return func(x *IVFIndex) { x.nlist = n }
}

// WithNProbe sets how many lists a query scans.
func WithNProbe(n int) IVFOption {
	return func(x *IVFIndex) {
		if n > 0 {
			x.nprobe = n
		}
	}
}

// WithTrainThreshold sets the collection size at which the first training happens.
func WithTrainThreshold(n int) IVFOption {
	return func(x *IVFIndex) {
		if n > 0 {
			x.threshold = n
		}
	}
}

// WithIVFLogger sets a logger for training events.
func WithIVFLogger(l *zap.Logger) IVFOption {
	return func(x *IVFIndex) {
		if l != nil {
			x.logger = l
		}
	}
}

// NewIVFIndex creates an untrained IVF index.
func NewIVFIndex(dimensions int, opts ...IVFOption) (*IVFIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	x := &IVFIndex{
		dimensions:   dimensions,
		nprobe:       defaultNProbe,
		threshold:    defaultTrainThreshold,
		rerankFactor: defaultRerankFactor,
		seed:         0x9e3779b97f4a7c15,
		logger:       zap.NewNop(),
		entries:      make(map[string]*ivfEntry),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

// Type returns the index type identifier.
func (x *IVFIndex) Type() string {
	return string(IndexTypeIVF)
}

// Trained reports whether a coarse quantizer is in place.
func (x *IVFIndex) Trained() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.centroids != nil
}

// Lists returns the number of inverted lists, zero before training.
func (x *IVFIndex) Lists() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.centroids)
}

// Add stores vectors under ids, replacing existing entries, and schedules training when due.
func (x *IVFIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	for _, v := range vectors {
		if len(v) != x.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), x.dimensions)
		}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for i, id := range ids {
		vec := make([]float32, x.dimensions)
		copy(vec, vectors[i])
		x.removeLocked(id)
		e := &ivfEntry{vec: vec, list: -1}
		e.code, e.scale = quantize(vec)
		x.entries[id] = e
		x.assignLocked(id, e)
	}
	x.maybeTrainLocked()
	return nil
}

// Remove deletes vectors by ID. Unknown IDs are ignored.
func (x *IVFIndex) Remove(ctx context.Context, ids []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		x.removeLocked(id)
	}
	return nil
}

func (x *IVFIndex) removeLocked(id string) {
	e, ok := x.entries[id]
	if !ok {
		return
	}
	if e.list >= 0 && e.list < len(x.lists) {
		delete(x.lists[e.list], id)
	}
	delete(x.entries, id)
}

func (x *IVFIndex) assignLocked(id string, e *ivfEntry) {
	if x.centroids == nil {
		e.list = -1
		return
	}
	e.list = nearestCentroid(x.centroids, e.vec)
	x.lists[e.list][id] = struct{}{}
}

func (x *IVFIndex) maybeTrainLocked() {
	n := len(x.entries)
	if x.training || x.closed || n < x.threshold {
		return
	}
	if x.centroids != nil && n < 2*x.trainedAtSize {
		return
	}
	x.training = true
	sample := x.sampleLocked()
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		x.train(sample)
	}()
}

func (x *IVFIndex) sampleLocked() [][]float32 {
	sample := make([][]float32, 0, min(len(x.entries), maxTrainingSample))
	for _, e := range x.entries {
		if len(sample) == maxTrainingSample {
			break
		}
		sample = append(sample, e.vec)
	}
	return sample
}

// Train builds the coarse quantizer synchronously from the current contents.
func (x *IVFIndex) Train(ctx context.Context) error {
	x.mu.Lock()
	if x.training {
		x.mu.Unlock()
		x.wg.Wait()
		return nil
	}
	if len(x.entries) == 0 {
		x.mu.Unlock()
		return fmt.Errorf("cannot train an empty index")
	}
	x.training = true
	sample := x.sampleLocked()
	x.mu.Unlock()
	x.train(sample)
	return ctx.Err()
}

// WaitTraining blocks until any background training has finished.
func (x *IVFIndex) WaitTraining() {
	x.wg.Wait()
}

func (x *IVFIndex) train(sample [][]float32) {
	start := time.Now()
	nlist := x.nlist
	if nlist <= 0 {
		nlist = int(math.Sqrt(float64(len(sample))))
	}
	nlist = max(1, min(nlist, len(sample)))
	rng := rand.New(rand.NewPCG(x.seed, uint64(len(sample))))
	centroids := kmeans(sample, nlist, kmeansIterations, rng)

	x.mu.Lock()
	defer x.mu.Unlock()
	x.training = false
	if x.closed {
		return
	}
	x.centroids = centroids
	x.lists = make([]map[string]struct{}, len(centroids))
	for i := range x.lists {
		x.lists[i] = make(map[string]struct{})
	}
	for id, e := range x.entries {
		x.assignLocked(id, e)
	}
	x.trainedAtSize = len(x.entries)
	x.logger.Info("vector index trained",
		zap.Int("lists", len(centroids)),
		zap.Int("vectors", x.trainedAtSize),
		zap.Duration("took", time.Since(start)))
}

type candidate struct {
	id     string
	approx float64
}

// Search returns the top-k vectors by inner product. Exact before training, approximate after.
func (x *IVFIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != x.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), x.dimensions)
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if k <= 0 || len(x.entries) == 0 {
		return nil, nil
	}
	if x.centroids == nil {
		results := make([]*VectorResult, 0, len(x.entries))
		for id, e := range x.entries {
			results = append(results, &VectorResult{ID: id, Score: InnerProduct(query, e.vec)})
		}
		return topK(results, k), nil
	}

	order := rankCentroids(x.centroids, query)
	want := k * x.rerankFactor
	var cands []candidate
	for probed, list := range order {
		if probed >= x.nprobe && len(cands) >= k {
			break
		}
		for id := range x.lists[list] {
			e := x.entries[id]
			cands = append(cands, candidate{id: id, approx: approxDot(query, e.code, e.scale)})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].approx != cands[j].approx {
			return cands[i].approx > cands[j].approx
		}
		return cands[i].id < cands[j].id
	})
	if len(cands) > want {
		cands = cands[:want]
	}
	results := make([]*VectorResult, len(cands))
	for i, c := range cands {
		results[i] = &VectorResult{ID: c.id, Score: InnerProduct(query, x.entries[c.id].vec)}
	}
	return topK(results, k), nil
}

// Size returns the number of vectors in the index.
func (x *IVFIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Close stops accepting training results and waits for a running training.
func (x *IVFIndex) Close() error {
	x.mu.Lock()
	x.closed = true
	x.mu.Unlock()
	x.wg.Wait()
	return nil
}

// quantize maps a vector to int8 codes with a single symmetric scale.
func quantize(v []float32) ([]int8, float32) {
	var maxAbs float32
	for _, f := range v {
		if a := float32(math.Abs(float64(f))); a > maxAbs {
			maxAbs = a
		}
	}
	code := make([]int8, len(v))
	if maxAbs == 0 {
		return code, 0
	}
	scale := maxAbs / 127
	for i, f := range v {
		code[i] = int8(math.Round(float64(f / scale)))
	}
	return code, scale
}

func approxDot(q []float32, code []int8, scale float32) float64 {
	var dot float64
	for i, c := range code {
		dot += float64(q[i]) * float64(c)
	}
	return dot * float64(scale)
}

func nearestCentroid(centroids [][]float32, v []float32) int {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centroids {
		if d := squaredDistance(c, v); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func rankCentroids(centroids [][]float32, q []float32) []int {
	order := make([]int, len(centroids))
	dist := make([]float64, len(centroids))
	for i, c := range centroids {
		order[i] = i
		dist[i] = squaredDistance(c, q)
	}
	sort.Slice(order, func(a, b int) bool { return dist[order[a]] < dist[order[b]] })
	return order
}

// kmeans runs Lloyd's algorithm seeded with distinct random samples.
func kmeans(points [][]float32, k, iterations int, rng *rand.Rand) [][]float32 {
	dim := len(points[0])
	centroids := make([][]float32, k)
	for i, p := range rng.Perm(len(points))[:k] {
		centroids[i] = append([]float32(nil), points[p]...)
	}
	assign := make([]int, len(points))
	for it := 0; it < iterations; it++ {
		changed := false
		for i, p := range points {
			c := nearestCentroid(centroids, p)
			if it == 0 || c != assign[i] {
				changed = true
			}
			assign[i] = c
		}
		if !changed {
			break
		}
		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, p := range points {
			c := assign[i]
			counts[c]++
			for j, f := range p {
				sums[c][j] += float64(f)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				copy(centroids[c], points[rng.IntN(len(points))])
				continue
			}
			for j := range centroids[c] {
				centroids[c][j] = float32(sums[c][j] / float64(counts[c]))
			}
		}
	}
	return centroids
}
