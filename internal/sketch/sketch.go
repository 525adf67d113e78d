// Package sketch maintains compact bit-sketches used to reject candidates
// before the exact similarity computation.
//
// Each point holds one 64-bit sketch per sketch repetition, built from
// one-bit LSH functions. Two points with high similarity agree on most
// sketch bits, so a Hamming distance above a similarity-derived threshold
// identifies a candidate that cannot be competitive.
package sketch

import (
	"math"

	"github.com/hupe1980/lshann/dataset"
	"github.com/hupe1980/lshann/persistence"
	"github.com/hupe1980/lshann/similarity"
)

// Bits is the width of a single sketch.
const Bits = 64

// BytesPerSketch is the incremental cost of one stored point per repetition,
// used by the memory planner.
const BytesPerSketch = 8

// Store holds the sketches of all indexed points.
//
// Like the rest of the index it is append-only between rebuilds; reads are
// safe from any number of goroutines while no append is in progress.
type Store struct {
	family    similarity.Family
	functions [][]similarity.Function

	// sketches[rep] is indexed by point id.
	sketches [][]uint64
}

// NewStore samples sketch functions for the given number of repetitions.
func NewStore(family similarity.Family, reps int) *Store {
	perSketch := Bits / family.BitsPerFunction()
	functions := make([][]similarity.Function, reps)
	for r := range functions {
		fns := make([]similarity.Function, perSketch)
		for i := range fns {
			fns[i] = family.Sample()
		}
		functions[r] = fns
	}
	return &Store{
		family:    family,
		functions: functions,
		sketches:  make([][]uint64, reps),
	}
}

// Reps returns the number of sketch repetitions.
func (s *Store) Reps() int { return len(s.functions) }

// Len returns the number of sketched points.
func (s *Store) Len() int {
	if len(s.sketches) == 0 {
		return 0
	}
	return len(s.sketches[0])
}

// Compute returns the sketches of a point, one per repetition.
func (s *Store) Compute(p dataset.Point) []uint64 {
	bpf := s.family.BitsPerFunction()
	row := make([]uint64, len(s.functions))
	for r, fns := range s.functions {
		var sk uint64
		for _, fn := range fns {
			sk = sk<<bpf | fn.Hash(p)
		}
		row[r] = sk
	}
	return row
}

// Append stores a precomputed sketch row. The row's point id is the current
// length of the store.
func (s *Store) Append(row []uint64) {
	for r := range s.sketches {
		s.sketches[r] = append(s.sketches[r], row[r])
	}
}

// At returns the stored sketch of a point for one repetition.
func (s *Store) At(rep int, id uint32) uint64 {
	return s.sketches[rep][id]
}

// MaxHammingDistance returns the largest Hamming distance a candidate may
// have to the query sketch while remaining admissible at the given
// similarity floor.
//
// Sketch bits differ independently with probability 1-p where p is the
// family's single-bit collision probability, so the median distance of a
// point at the floor is Bits*(1-p). Admitting up to the median keeps points
// above the floor with probability at least one half.
func (s *Store) MaxHammingDistance(kthSim float32) int {
	p := s.family.CollisionProbability(kthSim, 1)
	return int(math.Ceil(float64(Bits) * float64(1-p)))
}

// MemoryUsage returns the approximate number of bytes held by the store.
func (s *Store) MemoryUsage() uint64 {
	var total uint64
	for _, reps := range s.sketches {
		total += uint64(len(reps)) * BytesPerSketch
	}
	return total
}

// Save writes the sketch functions and the stored sketches.
func (s *Store) Save(w *persistence.Writer) error {
	if err := w.WriteUint64(uint64(len(s.functions))); err != nil {
		return err
	}
	for _, fns := range s.functions {
		if err := w.WriteUint64(uint64(len(fns))); err != nil {
			return err
		}
		for _, fn := range fns {
			if err := s.family.SaveFunction(w, fn); err != nil {
				return err
			}
		}
	}
	for _, reps := range s.sketches {
		if err := w.WriteUint64Slice(reps); err != nil {
			return err
		}
	}
	return nil
}

// Load restores a store written by Save. The family must match the one the
// store was built with.
func Load(r *persistence.Reader, family similarity.Family) (*Store, error) {
	reps, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	functions := make([][]similarity.Function, reps)
	for i := range functions {
		count, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		fns := make([]similarity.Function, count)
		for j := range fns {
			if fns[j], err = family.LoadFunction(r); err != nil {
				return nil, err
			}
		}
		functions[i] = fns
	}
	sketches := make([][]uint64, reps)
	for i := range sketches {
		if sketches[i], err = r.ReadUint64Slice(); err != nil {
			return nil, err
		}
	}
	return &Store{family: family, functions: functions, sketches: sketches}, nil
}
