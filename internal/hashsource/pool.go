package hashsource

import (
	"math/rand"

	"github.com/hupe1980/lshann/dataset"
	"github.com/hupe1980/lshann/persistence"
	"github.com/hupe1980/lshann/similarity"
)

// Pool shares a fixed pool of sub-hash functions between all repetitions.
// Each repetition samples, with replacement, which pool members it
// concatenates. A point is hashed by every pool function exactly once per
// HashRepetitions call, so the cost is bounded by the pool size instead of
// growing with the repetition count.
//
// Repetitions built from a shared pool are not independent. The termination
// bound still assumes independence, so a pool that is too small yields
// recalls below the target.
type Pool struct {
	family     similarity.Family
	functions  []similarity.Function
	indices    [][]uint32
	hashLength int
	cut        int
}

// NewPool samples a pool of poolBits worth of functions and a random
// composition for each repetition.
func NewPool(family similarity.Family, rng *rand.Rand, poolBits, reps, hashLength int) *Pool {
	bpf := family.BitsPerFunction()
	poolSize := poolBits / bpf
	if poolSize < 1 {
		poolSize = 1
	}
	functions := make([]similarity.Function, poolSize)
	for i := range functions {
		functions[i] = family.Sample()
	}

	perRep, cut := functionsPerCode(hashLength, bpf)
	indices := make([][]uint32, reps)
	for rep := range indices {
		repIndices := make([]uint32, perRep)
		for i := range repIndices {
			repIndices[i] = uint32(rng.Intn(poolSize))
		}
		indices[rep] = repIndices
	}

	return &Pool{
		family:     family,
		functions:  functions,
		indices:    indices,
		hashLength: hashLength,
		cut:        cut,
	}
}

// HashRepetitions evaluates every pool function once, then concatenates per
// repetition.
func (s *Pool) HashRepetitions(p dataset.Point, out []uint32) {
	values := make([]uint64, len(s.functions))
	for i, fn := range s.functions {
		values[i] = fn.Hash(p)
	}
	bpf := s.family.BitsPerFunction()
	for rep, repIndices := range s.indices {
		out[rep] = concatenatePrecomputed(values, repIndices, bpf, s.cut)
	}
}

// Repetitions returns the number of codes produced per point.
func (s *Pool) Repetitions() int { return len(s.indices) }

// HashLength returns the number of bits per code.
func (s *Pool) HashLength() int { return s.hashLength }

// BitsPerFunction returns the family's bits per sub-hash.
func (s *Pool) BitsPerFunction() int { return s.family.BitsPerFunction() }

// CollisionProbability delegates to the family.
func (s *Pool) CollisionProbability(sim float32, bits int) float32 {
	return s.family.CollisionProbability(sim, bits)
}

// FailureProbability bounds the query failure probability under the
// independence approximation.
func (s *Pool) FailureProbability(prefixLength, done, total int, kthSim float32) float32 {
	return independenceFailureBound(s.family, prefixLength, done, total, kthSim)
}

// Save writes the source parameters, the pool and the per-repetition
// compositions.
func (s *Pool) Save(w *persistence.Writer) error {
	if err := w.WriteUint8(typePool); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(s.hashLength)); err != nil {
		return err
	}
	if err := saveFunctions(w, s.family, s.functions); err != nil {
		return err
	}
	if err := w.WriteUint64(uint64(len(s.indices))); err != nil {
		return err
	}
	for _, repIndices := range s.indices {
		if err := w.WriteUint32Slice(repIndices); err != nil {
			return err
		}
	}
	return nil
}

func loadPool(r *persistence.Reader, family similarity.Family) (*Pool, error) {
	hashLength, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	functions, err := loadFunctions(r, family)
	if err != nil {
		return nil, err
	}
	reps, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	indices := make([][]uint32, reps)
	for rep := range indices {
		if indices[rep], err = r.ReadUint32Slice(); err != nil {
			return nil, err
		}
	}
	_, cut := functionsPerCode(int(hashLength), family.BitsPerFunction())
	return &Pool{
		family:     family,
		functions:  functions,
		indices:    indices,
		hashLength: int(hashLength),
		cut:        cut,
	}, nil
}
