package lshann

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lshann/internal/hashsource"
	"github.com/hupe1980/lshann/internal/prefixmap"
	"github.com/hupe1980/lshann/internal/sketch"
)

// Rebuild commits pending inserts into the repetition tables.
//
// The first rebuild, and any rebuild after the planner changes the index
// shape, hashes every stored point; later rebuilds only hash the points
// inserted since the previous one. Hashing runs in parallel across points
// and table absorption in parallel across repetitions.
//
// A rebuild that fails or is canceled leaves the index in its pre-rebuild
// state; previously committed points stay searchable.
func (idx *Index) Rebuild(ctx context.Context) error {
	start := time.Now()

	idx.mu.Lock()
	err := idx.rebuildLocked(ctx)
	points := int(idx.indexed)
	reps := 0
	if idx.source != nil {
		reps = idx.source.Repetitions()
	}
	idx.mu.Unlock()

	idx.metrics.RecordRebuild(points, time.Since(start), err)
	idx.logger.LogRebuild(ctx, points, reps, err)

	return err
}

func (idx *Index) rebuildLocked(ctx context.Context) error {
	shape, err := idx.planShape()
	if err != nil {
		return err
	}

	// The new tables are staged in locals and swapped onto the index only
	// after both stages succeed.
	source := idx.source
	maps := idx.maps
	sketches := idx.sketches
	first := idx.indexed

	fromScratch := source == nil ||
		source.Repetitions() != shape.repetitions ||
		sketches.Reps() != shape.sketchReps
	if fromScratch {
		source = idx.newSource(shape.repetitions)
		maps = make([]*prefixmap.Map, shape.repetitions)
		for r := range maps {
			maps[r] = prefixmap.New(MaxHashBits, source.BitsPerFunction())
		}
		sketches = sketch.NewStore(idx.sketchFamily, shape.sketchReps)
		first = 0
	}

	n := uint32(idx.store.Len())
	if !fromScratch && first == n {
		return nil
	}

	count := int(n - first)
	reps := source.Repetitions()

	// Stage 1: hash the pending points, row-major per point.
	codes := make([]uint32, count*reps)
	sketchRows := make([][]uint64, count)

	workers := runtime.GOMAXPROCS(0)
	g, gctx := errgroup.WithContext(ctx)
	chunk := (count + workers - 1) / workers
	for lo := 0; lo < count; lo += chunk {
		lo, hi := lo, min(lo+chunk, count)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				p := idx.store.At(first + uint32(i))
				source.HashRepetitions(p, codes[i*reps:(i+1)*reps])
				sketchRows[i] = sketches.Compute(p)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Stage 2: absorb into the repetition tables. Once this starts it runs
	// to completion, so the tables stay mutually consistent.
	var absorb errgroup.Group
	for r := 0; r < reps; r++ {
		r := r
		absorb.Go(func() error {
			entries := make([]prefixmap.Entry, count)
			for i := range entries {
				entries[i] = prefixmap.Entry{
					ID:   first + uint32(i),
					Hash: codes[i*reps+r],
				}
			}
			maps[r].Rebuild(entries)
			return nil
		})
	}
	if err := absorb.Wait(); err != nil {
		return err
	}

	for _, row := range sketchRows {
		sketches.Append(row)
	}

	idx.source = source
	idx.maps = maps
	idx.sketches = sketches
	idx.indexed = n

	return nil
}

func (idx *Index) newSource(reps int) hashsource.Source {
	switch idx.opts.strategy {
	case HashSourcePool:
		return hashsource.NewPool(idx.family, idx.rng, idx.opts.poolBits, reps, MaxHashBits)
	case HashSourceTensoring:
		return hashsource.NewTensoring(idx.family, reps, MaxHashBits)
	default:
		return hashsource.NewIndependent(idx.family, reps, MaxHashBits)
	}
}
