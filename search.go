package lshann

import (
	"context"
	"math/bits"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/lshann/dataset"
	"github.com/hupe1980/lshann/internal/prefixmap"
	"github.com/hupe1980/lshann/internal/topk"
)

// Result is a single search hit.
type Result struct {
	ID         uint32
	Similarity float32
}

type searchOptions struct {
	filter        *roaring.Bitmap
	maxSimilarity float32
}

// SearchOption configures a single search call.
type SearchOption func(*searchOptions)

// WithFilter restricts the search to ids present in the bitmap. Filtered
// points still occupy hash buckets; they are skipped during candidate
// evaluation.
func WithFilter(filter *roaring.Bitmap) SearchOption {
	return func(o *searchOptions) {
		o.filter = filter
	}
}

// WithMaxSimilarity tells the search that no point is more similar to the
// query than the given value. A tight hint lets the search terminate
// earlier; an incorrect one voids the recall guarantee.
func WithMaxSimilarity(sim float32) SearchOption {
	return func(o *searchOptions) {
		o.maxSimilarity = sim
	}
}

// Search returns the k points most similar to q, in order of decreasing
// similarity. Each of the true k nearest neighbors appears in the result
// with probability at least recall.
//
// Only points committed by a Rebuild are searched. On an index that has
// never been rebuilt the result is empty.
func (idx *Index) Search(q dataset.Point, k int, recall float32, optFns ...SearchOption) ([]Result, error) {
	start := time.Now()

	results, err := idx.search(q, k, recall, optFns)

	idx.metrics.RecordSearch(k, time.Since(start), err)
	idx.logger.LogSearch(context.Background(), k, len(results), err)

	return results, err
}

// SearchVector searches with a float vector query. See Search.
func (idx *Index) SearchVector(v []float32, k int, recall float32, optFns ...SearchOption) ([]Result, error) {
	return idx.Search(dataset.Point{Vector: v}, k, recall, optFns...)
}

// SearchSet searches with a sorted id set query. See Search.
func (idx *Index) SearchSet(set []uint32, k int, recall float32, optFns ...SearchOption) ([]Result, error) {
	return idx.Search(dataset.Point{Set: set}, k, recall, optFns...)
}

func (idx *Index) search(q dataset.Point, k int, recall float32, optFns []SearchOption) ([]Result, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	if recall <= 0 || recall > 1 {
		return nil, ErrInvalidRecall
	}

	var o searchOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	prepared, err := idx.store.PrepareQuery(q)
	if err != nil {
		return nil, translateError(err)
	}

	if idx.source == nil || idx.indexed == 0 {
		return []Result{}, nil
	}

	return idx.searchIndexed(prepared, k, recall, &o), nil
}

// searchIndexed walks the repetition tables from the longest hash prefix
// down, growing the candidate ranges one prefix length at a time until the
// failure bound drops below 1-recall.
func (idx *Index) searchIndexed(q dataset.Point, k int, recall float32, o *searchOptions) []Result {
	reps := idx.source.Repetitions()

	codes := make([]uint32, reps)
	idx.source.HashRepetitions(q, codes)

	queries := make([]*prefixmap.Query, reps)
	for r := range queries {
		queries[r] = idx.maps[r].NewQuery(codes[r])
	}

	querySketches := idx.sketches.Compute(q)
	sketchReps := idx.sketches.Reps()

	visited := bitset.New(uint(idx.indexed))
	queue := topk.NewQueue(k)

	kthSim := o.maxSimilarity
	maxDist := idx.sketches.MaxHammingDistance(kthSim)

	var considered, rejected int
	defer func() {
		idx.metrics.RecordCandidates(considered, rejected)
	}()

	eps := 1 - recall

	for l, phase := MaxHashBits, 0; ; phase++ {
		sketchRep := phase % sketchReps
		qsk := querySketches[sketchRep]

		for r := 0; r < reps; r++ {
			left, right := queries[r].NextRange()

			for _, ids := range [2][]uint32{left, right} {
				for _, id := range ids {
					if visited.Test(uint(id)) {
						continue
					}
					visited.Set(uint(id))

					if o.filter != nil && !o.filter.Contains(id) {
						continue
					}
					considered++

					if bits.OnesCount64(qsk^idx.sketches.At(sketchRep, id)) > maxDist {
						rejected++
						continue
					}

					s := idx.measure.Similarity(q, idx.store.At(id))
					queue.Push(topk.Candidate{ID: id, Similarity: s})

					if root, full := queue.KthSimilarity(); full && root > kthSim {
						kthSim = root
						maxDist = idx.sketches.MaxHammingDistance(kthSim)
					}
				}
			}

			if idx.source.FailureProbability(l, r+1, reps, kthSim) <= eps {
				return toResults(queue.Sorted())
			}
		}

		if l == 0 {
			break
		}
		l = max(0, l-idx.source.BitsPerFunction())
	}

	return toResults(queue.Sorted())
}

// SearchBruteForce returns the exact k nearest neighbors by scanning every
// inserted point, including points not yet committed by a rebuild.
func (idx *Index) SearchBruteForce(q dataset.Point, k int, optFns ...SearchOption) ([]Result, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}

	var o searchOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	prepared, err := idx.store.PrepareQuery(q)
	if err != nil {
		return nil, translateError(err)
	}

	queue := topk.NewQueue(k)
	n := uint32(idx.store.Len())
	for id := uint32(0); id < n; id++ {
		if o.filter != nil && !o.filter.Contains(id) {
			continue
		}
		s := idx.measure.Similarity(prepared, idx.store.At(id))
		queue.Push(topk.Candidate{ID: id, Similarity: s})
	}

	return toResults(queue.Sorted()), nil
}

func toResults(candidates []topk.Candidate) []Result {
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{ID: c.ID, Similarity: c.Similarity}
	}
	return results
}
