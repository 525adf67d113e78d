package hashsource

import (
	"github.com/hupe1980/lshann/dataset"
	"github.com/hupe1980/lshann/persistence"
	"github.com/hupe1980/lshann/similarity"
)

// Independent owns distinct sub-hash functions for every repetition. It is
// the most expensive source to evaluate but its repetitions are fully
// independent, making the termination bound exact.
type Independent struct {
	family     similarity.Family
	functions  []similarity.Function
	reps       int
	hashLength int
	perRep     int
	cut        int
}

// NewIndependent samples functions for the given number of repetitions and
// code length.
func NewIndependent(family similarity.Family, reps, hashLength int) *Independent {
	perRep, cut := functionsPerCode(hashLength, family.BitsPerFunction())
	functions := make([]similarity.Function, 0, reps*perRep)
	for i := 0; i < reps*perRep; i++ {
		functions = append(functions, family.Sample())
	}
	return &Independent{
		family:     family,
		functions:  functions,
		reps:       reps,
		hashLength: hashLength,
		perRep:     perRep,
		cut:        cut,
	}
}

// HashRepetitions computes one code per repetition from the repetition's own
// slice of functions.
func (s *Independent) HashRepetitions(p dataset.Point, out []uint32) {
	bpf := s.family.BitsPerFunction()
	for rep := 0; rep < s.reps; rep++ {
		fns := s.functions[rep*s.perRep : (rep+1)*s.perRep]
		out[rep] = concatenate(fns, p, bpf, s.cut)
	}
}

// Repetitions returns the number of codes produced per point.
func (s *Independent) Repetitions() int { return s.reps }

// HashLength returns the number of bits per code.
func (s *Independent) HashLength() int { return s.hashLength }

// BitsPerFunction returns the family's bits per sub-hash.
func (s *Independent) BitsPerFunction() int { return s.family.BitsPerFunction() }

// CollisionProbability delegates to the family.
func (s *Independent) CollisionProbability(sim float32, bits int) float32 {
	return s.family.CollisionProbability(sim, bits)
}

// FailureProbability bounds the query failure probability. Repetitions are
// fully independent, so the bound is exact up to the family's collision
// model.
func (s *Independent) FailureProbability(prefixLength, done, total int, kthSim float32) float32 {
	return independenceFailureBound(s.family, prefixLength, done, total, kthSim)
}

// Save writes the source parameters and all sampled functions.
func (s *Independent) Save(w *persistence.Writer) error {
	if err := w.WriteUint8(typeIndependent); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(s.reps)); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(s.hashLength)); err != nil {
		return err
	}
	return saveFunctions(w, s.family, s.functions)
}

func loadIndependent(r *persistence.Reader, family similarity.Family) (*Independent, error) {
	reps, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	hashLength, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	functions, err := loadFunctions(r, family)
	if err != nil {
		return nil, err
	}
	perRep, cut := functionsPerCode(int(hashLength), family.BitsPerFunction())
	return &Independent{
		family:     family,
		functions:  functions,
		reps:       int(reps),
		hashLength: int(hashLength),
		perRep:     perRep,
		cut:        cut,
	}, nil
}
