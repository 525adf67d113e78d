// Package hashsource manufactures concatenated LSH codes for many index
// repetitions from a common family of base hash functions.
//
// A source owns sampled sub-hash functions and combines their outputs into
// codes of exactly HashLength bits. Three strategies trade hash quality
// against computation: independent functions per repetition, sampling from a
// shared pool, and tensoring of half-length codes.
package hashsource

import (
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/lshann/dataset"
	"github.com/hupe1980/lshann/persistence"
	"github.com/hupe1980/lshann/similarity"
)

// Source produces one hash code per repetition for a stored point.
//
// Codes occupy the low HashLength bits of the returned words. A source is
// immutable after construction and safe for concurrent use.
type Source interface {
	// HashRepetitions fills out with one code per repetition.
	// len(out) must equal Repetitions.
	HashRepetitions(p dataset.Point, out []uint32)

	Repetitions() int
	HashLength() int
	BitsPerFunction() int

	// CollisionProbability returns the probability that two points with the
	// given similarity collide on the given number of code bits.
	CollisionProbability(sim float32, bits int) float32

	// FailureProbability bounds the probability that no point with
	// similarity >= kthSim has been surfaced after done repetitions at the
	// current prefix length and the remaining repetitions at the previous,
	// longer length.
	FailureProbability(prefixLength, done, total int, kthSim float32) float32

	// Save writes the source, including its sampled functions, so that an
	// equal source can be restored with Load.
	Save(w *persistence.Writer) error
}

// Strategy tags identify source implementations in snapshots.
const (
	typeIndependent uint8 = iota
	typePool
	typeTensoring
)

// ErrUnknownSource is returned when a snapshot names a source strategy this
// version does not implement.
var ErrUnknownSource = errors.New("unknown hash source type")

// Load restores a source written by Save. The family must match the one the
// source was built with.
func Load(r *persistence.Reader, family similarity.Family) (Source, error) {
	tag, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case typeIndependent:
		return loadIndependent(r, family)
	case typePool:
		return loadPool(r, family)
	case typeTensoring:
		return loadTensoring(r, family)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownSource, tag)
	}
}

// functionsPerCode returns the number of concatenated functions and the
// excess bits to cut for a code of the given length.
func functionsPerCode(hashLength, bitsPerFunction int) (count, cut int) {
	count = (hashLength + bitsPerFunction - 1) / bitsPerFunction
	cut = count*bitsPerFunction - hashLength
	return count, cut
}

// concatenate folds the outputs of fns into a single code and drops the
// excess low bits so the result is exactly the requested length.
func concatenate(fns []similarity.Function, p dataset.Point, bitsPerFunction, cut int) uint32 {
	var code uint64
	for _, fn := range fns {
		code = code<<bitsPerFunction | fn.Hash(p)
	}
	return uint32(code >> cut)
}

// concatenatePrecomputed folds already-computed function outputs.
func concatenatePrecomputed(values []uint64, indices []uint32, bitsPerFunction, cut int) uint32 {
	var code uint64
	for _, idx := range indices {
		code = code<<bitsPerFunction | values[idx]
	}
	return uint32(code >> cut)
}

// independenceFailureBound is the shared termination bound. It treats
// repetitions as independent, which pool and tensoring sources only
// approximate.
func independenceFailureBound(family similarity.Family, prefixLength, done, total int, kthSim float32) float32 {
	cur := family.CollisionProbability(kthSim, prefixLength)
	prev := family.CollisionProbability(kthSim, prefixLength+family.BitsPerFunction())
	f := math.Pow(float64(1-cur), float64(done)) *
		math.Pow(float64(1-prev), float64(total-done))
	return float32(f)
}

func saveFunctions(w *persistence.Writer, family similarity.Family, fns []similarity.Function) error {
	if err := w.WriteUint64(uint64(len(fns))); err != nil {
		return err
	}
	for _, fn := range fns {
		if err := family.SaveFunction(w, fn); err != nil {
			return err
		}
	}
	return nil
}

func loadFunctions(r *persistence.Reader, family similarity.Family) ([]similarity.Function, error) {
	count, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	fns := make([]similarity.Function, count)
	for i := range fns {
		if fns[i], err = family.LoadFunction(r); err != nil {
			return nil, err
		}
	}
	return fns, nil
}
