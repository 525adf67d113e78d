package hashsource

import (
	"math"

	"github.com/hupe1980/lshann/dataset"
	"github.com/hupe1980/lshann/persistence"
	"github.com/hupe1980/lshann/similarity"
)

// Tensoring manufactures repetitions by pairing half-length codes. It keeps
// ceil(sqrt(reps)) independent sub-codes for the upper half of the code and
// as many for the lower half; repetition r pairs left code r mod t with
// right code r / t. Hashing a point costs O(sqrt(reps)) full codes.
//
// Repetitions sharing a half are pairwise dependent. The termination bound
// assumes independence and therefore underestimates the failure probability.
type Tensoring struct {
	family     similarity.Family
	left       [][]similarity.Function
	right      [][]similarity.Function
	reps       int
	hashLength int
	leftBits   int
	rightBits  int
	leftCut    int
	rightCut   int
}

// NewTensoring samples half-code functions for the given number of
// repetitions and code length.
func NewTensoring(family similarity.Family, reps, hashLength int) *Tensoring {
	t := int(math.Ceil(math.Sqrt(float64(reps))))
	if t < 1 {
		t = 1
	}
	leftBits := (hashLength + 1) / 2
	rightBits := hashLength / 2

	bpf := family.BitsPerFunction()
	perLeft, leftCut := functionsPerCode(leftBits, bpf)
	perRight, rightCut := functionsPerCode(rightBits, bpf)

	sampleHalf := func(per int) [][]similarity.Function {
		half := make([][]similarity.Function, t)
		for i := range half {
			fns := make([]similarity.Function, per)
			for j := range fns {
				fns[j] = family.Sample()
			}
			half[i] = fns
		}
		return half
	}

	return &Tensoring{
		family:     family,
		left:       sampleHalf(perLeft),
		right:      sampleHalf(perRight),
		reps:       reps,
		hashLength: hashLength,
		leftBits:   leftBits,
		rightBits:  rightBits,
		leftCut:    leftCut,
		rightCut:   rightCut,
	}
}

// HashRepetitions computes the half codes once and combines them per
// repetition.
func (s *Tensoring) HashRepetitions(p dataset.Point, out []uint32) {
	bpf := s.family.BitsPerFunction()
	t := len(s.left)

	leftCodes := make([]uint32, t)
	rightCodes := make([]uint32, t)
	for i := 0; i < t; i++ {
		leftCodes[i] = concatenate(s.left[i], p, bpf, s.leftCut)
		rightCodes[i] = concatenate(s.right[i], p, bpf, s.rightCut)
	}

	for rep := 0; rep < s.reps; rep++ {
		out[rep] = leftCodes[rep%t]<<s.rightBits | rightCodes[rep/t]
	}
}

// Repetitions returns the number of codes produced per point.
func (s *Tensoring) Repetitions() int { return s.reps }

// HashLength returns the number of bits per code.
func (s *Tensoring) HashLength() int { return s.hashLength }

// BitsPerFunction returns the family's bits per sub-hash.
func (s *Tensoring) BitsPerFunction() int { return s.family.BitsPerFunction() }

// CollisionProbability delegates to the family.
func (s *Tensoring) CollisionProbability(sim float32, bits int) float32 {
	return s.family.CollisionProbability(sim, bits)
}

// FailureProbability bounds the query failure probability under the
// independence approximation.
func (s *Tensoring) FailureProbability(prefixLength, done, total int, kthSim float32) float32 {
	return independenceFailureBound(s.family, prefixLength, done, total, kthSim)
}

// Save writes the source parameters and the half-code functions.
func (s *Tensoring) Save(w *persistence.Writer) error {
	if err := w.WriteUint8(typeTensoring); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(s.reps)); err != nil {
		return err
	}
	if err := w.WriteUint32(uint32(s.hashLength)); err != nil {
		return err
	}
	for _, half := range [2][][]similarity.Function{s.left, s.right} {
		if err := w.WriteUint64(uint64(len(half))); err != nil {
			return err
		}
		for _, fns := range half {
			if err := saveFunctions(w, s.family, fns); err != nil {
				return err
			}
		}
	}
	return nil
}

func loadTensoring(r *persistence.Reader, family similarity.Family) (*Tensoring, error) {
	reps, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	hashLength, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}

	loadHalf := func() ([][]similarity.Function, error) {
		count, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		half := make([][]similarity.Function, count)
		for i := range half {
			if half[i], err = loadFunctions(r, family); err != nil {
				return nil, err
			}
		}
		return half, nil
	}

	left, err := loadHalf()
	if err != nil {
		return nil, err
	}
	right, err := loadHalf()
	if err != nil {
		return nil, err
	}

	leftBits := (int(hashLength) + 1) / 2
	rightBits := int(hashLength) / 2
	bpf := family.BitsPerFunction()
	_, leftCut := functionsPerCode(leftBits, bpf)
	_, rightCut := functionsPerCode(rightBits, bpf)

	return &Tensoring{
		family:     family,
		left:       left,
		right:      right,
		reps:       int(reps),
		hashLength: int(hashLength),
		leftBits:   leftBits,
		rightBits:  rightBits,
		leftCut:    leftCut,
		rightCut:   rightCut,
	}, nil
}
