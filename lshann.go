package lshann

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/hupe1980/lshann/dataset"
	"github.com/hupe1980/lshann/internal/hashsource"
	"github.com/hupe1980/lshann/internal/prefixmap"
	"github.com/hupe1980/lshann/internal/sketch"
	"github.com/hupe1980/lshann/similarity"
)

const (
	// MaxHashBits is the length of a repetition hash code in bits.
	MaxHashBits = 24

	// DefaultSketchRepetitions is the number of sketch repetitions the
	// planner starts from before degrading to fit the memory budget.
	DefaultSketchRepetitions = 32
)

// Index is an LSH-based approximate nearest neighbor index.
//
// Points are inserted, committed with Rebuild and then searched. Inserted
// points are invisible to searches until the next Rebuild. Searches on a
// rebuilt index may run concurrently; inserts and rebuilds are serialized
// against them internally.
type Index struct {
	opts    options
	logger  *Logger
	metrics MetricsCollector

	measure      similarity.Measure
	family       similarity.Family
	sketchFamily similarity.Family
	rng          *rand.Rand

	mu       sync.RWMutex
	store    *dataset.Store
	source   hashsource.Source
	maps     []*prefixmap.Map
	sketches *sketch.Store

	// indexed is the number of points covered by the repetition tables.
	// Points with ids >= indexed are pending until the next rebuild.
	indexed uint32
}

// New creates an empty index for the given similarity tag ("angular",
// "jaccard" or "euclidean"). args is the dimensionality for vector
// similarities and the universe size for jaccard.
func New(similarityTag string, args uint32, optFns ...Option) (*Index, error) {
	measure, err := similarity.ByTag(similarityTag)
	if err != nil {
		return nil, err
	}
	if args == 0 {
		return nil, &ErrInvalidDimension{Dimension: 0}
	}

	o := applyOptions(optFns)

	seed := o.seed
	if !o.hasSeed {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // hash sampling, not crypto

	desc := dataset.NewDescription(measure.Format(), args)

	return &Index{
		opts:         o,
		logger:       o.logger.WithSimilarity(measure.Tag()),
		metrics:      o.metricsCollector,
		measure:      measure,
		family:       measure.DefaultFamily(desc, rng),
		sketchFamily: measure.SketchFamily(desc, rng),
		rng:          rng,
		store:        dataset.NewStore(desc),
	}, nil
}

// NewAngular creates an index over unit vectors of the given dimensionality,
// compared by angular similarity.
func NewAngular(dim int, optFns ...Option) (*Index, error) {
	if dim <= 0 {
		return nil, &ErrInvalidDimension{Dimension: dim}
	}
	return New("angular", uint32(dim), optFns...)
}

// NewJaccard creates an index over id sets drawn from a universe of the
// given size, compared by jaccard similarity.
func NewJaccard(universe int, optFns ...Option) (*Index, error) {
	if universe <= 0 {
		return nil, &ErrInvalidDimension{Dimension: universe}
	}
	return New("jaccard", uint32(universe), optFns...)
}

// NewEuclidean creates an index over real vectors of the given
// dimensionality, compared by the distance-based similarity 1/(1+d).
func NewEuclidean(dim int, optFns ...Option) (*Index, error) {
	if dim <= 0 {
		return nil, &ErrInvalidDimension{Dimension: dim}
	}
	return New("euclidean", uint32(dim), optFns...)
}

// Insert appends a point and returns its id. The point becomes searchable
// after the next Rebuild.
func (idx *Index) Insert(p dataset.Point) (uint32, error) {
	start := time.Now()

	idx.mu.Lock()
	var id uint32
	var err error
	if idx.store.Description().Format == dataset.FormatIDSet {
		id, err = idx.store.AppendSet(p.Set)
	} else {
		id, err = idx.store.AppendVector(p.Vector)
	}
	idx.mu.Unlock()

	err = translateError(err)
	idx.metrics.RecordInsert(time.Since(start), err)
	idx.logger.LogInsert(context.Background(), id, err)

	return id, err
}

// InsertVector appends a float vector. See Insert.
func (idx *Index) InsertVector(v []float32) (uint32, error) {
	return idx.Insert(dataset.Point{Vector: v})
}

// InsertSet appends a sorted set of unique ids. See Insert.
func (idx *Index) InsertSet(set []uint32) (uint32, error) {
	return idx.Insert(dataset.Point{Set: set})
}

// Len returns the number of inserted points, including points not yet
// committed by a rebuild.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.store.Len()
}

// IndexedLen returns the number of points covered by the repetition tables.
func (idx *Index) IndexedLen() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return int(idx.indexed)
}

// Description returns the dataset description of the index.
func (idx *Index) Description() dataset.Description {
	return idx.store.Description()
}

// Stats describes the current shape and size of an index.
type Stats struct {
	Points            int
	IndexedPoints     int
	Repetitions       int
	SketchRepetitions int
	MemoryUsage       uint64
}

// Stats returns a snapshot of the index shape.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	s := Stats{
		Points:        idx.store.Len(),
		IndexedPoints: int(idx.indexed),
		MemoryUsage:   idx.memoryUsageLocked(),
	}
	if idx.source != nil {
		s.Repetitions = idx.source.Repetitions()
	}
	if idx.sketches != nil {
		s.SketchRepetitions = idx.sketches.Reps()
	}
	return s
}

// MemoryUsage returns the approximate number of bytes held by the index.
func (idx *Index) MemoryUsage() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.memoryUsageLocked()
}

func (idx *Index) memoryUsageLocked() uint64 {
	total := idx.store.MemoryUsage()
	for _, m := range idx.maps {
		total += m.MemoryUsage()
	}
	if idx.sketches != nil {
		total += idx.sketches.MemoryUsage()
	}
	return total
}
