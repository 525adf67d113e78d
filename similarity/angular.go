package similarity

import (
	"math"
	"math/bits"
	"math/rand"

	"github.com/hupe1980/lshann/dataset"
	"github.com/hupe1980/lshann/internal/math32"
	"github.com/hupe1980/lshann/persistence"
)

// Angular measures the similarity of unit vectors as (cos θ + 1) / 2.
type Angular struct{}

// Tag returns the similarity tag.
func (Angular) Tag() string { return "angular" }

// Format returns the storage format for angular points.
func (Angular) Format() dataset.Format { return dataset.FormatUnitVector }

// Similarity computes the angular similarity of two unit vectors.
func (Angular) Similarity(a, b dataset.Point) float32 {
	return clamp01((math32.Dot(a.Vector, b.Vector) + 1) / 2)
}

// DefaultFamily returns the cross-polytope family used for index hashes.
func (Angular) DefaultFamily(desc dataset.Description, rng *rand.Rand) Family {
	return NewCrossPolytope(desc, rng)
}

// SketchFamily returns the sign-of-projection family used for sketches.
func (Angular) SketchFamily(desc dataset.Description, rng *rand.Rand) Family {
	return NewSimHash(desc, rng)
}

// SimHash hashes a vector to the sign of its projection onto a random
// gaussian direction. One bit per function.
type SimHash struct {
	dim int
	rng *rand.Rand
}

// NewSimHash creates a sign-of-projection family for the given dataset shape.
func NewSimHash(desc dataset.Description, rng *rand.Rand) *SimHash {
	return &SimHash{dim: int(desc.StorageLen), rng: rng}
}

// Sample draws a random gaussian direction.
func (s *SimHash) Sample() Function {
	plane := make([]float32, s.dim)
	for i := range plane {
		plane[i] = float32(s.rng.NormFloat64())
	}
	return &simHashFunction{plane: plane}
}

// BitsPerFunction returns 1.
func (s *SimHash) BitsPerFunction() int { return 1 }

// CollisionProbability returns the probability that two points with the given
// angular similarity agree on the given number of sign bits.
func (s *SimHash) CollisionProbability(sim float32, bits int) float32 {
	return powBits(simHashP1(sim), bits, 1)
}

// ICollisionProbability returns the similarity at which a single sign bit
// collides with probability p.
func (s *SimHash) ICollisionProbability(p float32) float32 {
	return invertCollisionProbability(simHashP1, p)
}

// SaveFunction writes the sampled direction.
func (s *SimHash) SaveFunction(w *persistence.Writer, f Function) error {
	return w.WriteFloat32Slice(f.(*simHashFunction).plane)
}

// LoadFunction reads a sampled direction.
func (s *SimHash) LoadFunction(r *persistence.Reader) (Function, error) {
	plane, err := r.ReadFloat32Slice()
	if err != nil {
		return nil, err
	}
	return &simHashFunction{plane: plane}, nil
}

func simHashP1(sim float32) float32 {
	cos := float64(2*sim - 1)
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return float32(1 - math.Acos(cos)/math.Pi)
}

type simHashFunction struct {
	plane []float32
}

func (f *simHashFunction) Hash(p dataset.Point) uint64 {
	if math32.Dot(f.plane, p.Vector) >= 0 {
		return 1
	}
	return 0
}

// CrossPolytope hashes a vector to its closest signed standard basis vector
// after a pseudo-random rotation. The rotation is three rounds of a random
// sign flip followed by a fast Hadamard transform, so a function costs
// O(d log d) instead of a dense matrix multiply.
type CrossPolytope struct {
	dim    int
	padded int
	bits   int
	rng    *rand.Rand
}

// NewCrossPolytope creates a cross-polytope family for the given dataset
// shape. The working dimension is padded to the next power of two.
func NewCrossPolytope(desc dataset.Description, rng *rand.Rand) *CrossPolytope {
	padded := 1
	for padded < int(desc.StorageLen) {
		padded *= 2
	}
	return &CrossPolytope{
		dim:    int(desc.StorageLen),
		padded: padded,
		bits:   bits.TrailingZeros(uint(padded)) + 1,
		rng:    rng,
	}
}

// Sample draws the three sign diagonals of a pseudo-random rotation.
func (c *CrossPolytope) Sample() Function {
	f := &crossPolytopeFunction{padded: c.padded, bits: c.bits}
	for i := range f.signs {
		diag := make([]float32, c.padded)
		for j := range diag {
			if c.rng.Intn(2) == 0 {
				diag[j] = 1
			} else {
				diag[j] = -1
			}
		}
		f.signs[i] = diag
	}
	return f
}

// BitsPerFunction returns log2 of twice the padded dimension.
func (c *CrossPolytope) BitsPerFunction() int { return c.bits }

// CollisionProbability returns the probability that two points with the given
// angular similarity hash to the same basis vector for the given number of
// bits.
func (c *CrossPolytope) CollisionProbability(sim float32, bits int) float32 {
	return powBits(c.p1(sim), bits, c.bits)
}

// ICollisionProbability returns the similarity at which a single function
// collides with probability p.
func (c *CrossPolytope) ICollisionProbability(p float32) float32 {
	return invertCollisionProbability(c.p1, p)
}

// p1 is the asymptotic single-function collision probability of
// cross-polytope LSH for points at squared distance c2 on the unit sphere.
func (c *CrossPolytope) p1(sim float32) float32 {
	cos := float64(2*sim - 1)
	c2 := 2 - 2*cos
	if c2 <= 0 {
		return 1
	}
	if c2 >= 4 {
		return 0
	}
	logP := -c2 / (4 - c2) * math.Log(float64(2*c.padded))
	return float32(math.Exp(logP))
}

// SaveFunction writes the three sign diagonals.
func (c *CrossPolytope) SaveFunction(w *persistence.Writer, f Function) error {
	cp := f.(*crossPolytopeFunction)
	for _, diag := range cp.signs {
		if err := w.WriteFloat32Slice(diag); err != nil {
			return err
		}
	}
	return nil
}

// LoadFunction reads the three sign diagonals.
func (c *CrossPolytope) LoadFunction(r *persistence.Reader) (Function, error) {
	f := &crossPolytopeFunction{padded: c.padded, bits: c.bits}
	for i := range f.signs {
		diag, err := r.ReadFloat32Slice()
		if err != nil {
			return nil, err
		}
		f.signs[i] = diag
	}
	return f, nil
}

type crossPolytopeFunction struct {
	padded int
	bits   int
	signs  [3][]float32
}

func (f *crossPolytopeFunction) Hash(p dataset.Point) uint64 {
	buf := make([]float32, f.padded)
	copy(buf, p.Vector)

	for _, diag := range f.signs {
		for i := range buf {
			buf[i] *= diag[i]
		}
		hadamardInPlace(buf)
	}

	best := 0
	bestAbs := float32(-1)
	for i, v := range buf {
		abs := v
		if abs < 0 {
			abs = -abs
		}
		if abs > bestAbs {
			bestAbs = abs
			best = i
		}
	}

	h := uint64(best) << 1
	if buf[best] < 0 {
		h |= 1
	}
	return h
}

// hadamardInPlace applies the unnormalized fast Walsh-Hadamard transform.
// len(buf) must be a power of two. Normalization is skipped because only the
// argmax of the result is used.
func hadamardInPlace(buf []float32) {
	for h := 1; h < len(buf); h *= 2 {
		for i := 0; i < len(buf); i += 2 * h {
			for j := i; j < i+h; j++ {
				x, y := buf[j], buf[j+h]
				buf[j] = x + y
				buf[j+h] = x - y
			}
		}
	}
}
