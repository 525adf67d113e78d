package similarity

import (
	"math"
	"math/rand"

	"github.com/hupe1980/lshann/dataset"
	"github.com/hupe1980/lshann/internal/math32"
	"github.com/hupe1980/lshann/persistence"
)

// Euclidean measures similarity as 1 / (1 + d) where d is the euclidean
// distance. Vectors are stored unnormalized.
type Euclidean struct{}

// Tag returns the similarity tag.
func (Euclidean) Tag() string { return "euclidean" }

// Format returns the storage format for euclidean points.
func (Euclidean) Format() dataset.Format { return dataset.FormatRealVector }

// Similarity computes the distance-based similarity of two vectors.
func (Euclidean) Similarity(a, b dataset.Point) float32 {
	d := math.Sqrt(float64(math32.SquaredL2(a.Vector, b.Vector)))
	return float32(1 / (1 + d))
}

// DefaultFamily returns the p-stable projection family used for index hashes.
func (Euclidean) DefaultFamily(desc dataset.Description, rng *rand.Rand) Family {
	return NewL2Hash(desc, rng)
}

// SketchFamily returns the sign-of-projection family used for sketches.
func (Euclidean) SketchFamily(desc dataset.Description, rng *rand.Rand) Family {
	return NewSimHash(desc, rng)
}

const (
	// l2HashWidth is the bucket width of the p-stable projection.
	l2HashWidth = 4.0

	// l2HashBits is the width of a single bucket index.
	l2HashBits = 4
)

// L2Hash hashes a vector to a clamped bucket index of its projection onto a
// random gaussian direction, following the p-stable scheme of Datar et al.
type L2Hash struct {
	dim int
	rng *rand.Rand
}

// NewL2Hash creates a p-stable projection family for the given dataset shape.
func NewL2Hash(desc dataset.Description, rng *rand.Rand) *L2Hash {
	return &L2Hash{dim: int(desc.StorageLen), rng: rng}
}

// Sample draws a random gaussian direction and offset.
func (l *L2Hash) Sample() Function {
	plane := make([]float32, l.dim)
	for i := range plane {
		plane[i] = float32(l.rng.NormFloat64())
	}
	return &l2HashFunction{
		plane: plane,
		b:     float32(l.rng.NormFloat64() * l2HashWidth),
	}
}

// BitsPerFunction returns the bucket index width.
func (l *L2Hash) BitsPerFunction() int { return l2HashBits }

// CollisionProbability returns the probability that two points with the given
// similarity land in the same buckets for the given number of bits.
func (l *L2Hash) CollisionProbability(sim float32, bits int) float32 {
	return powBits(l2HashP1(sim), bits, l2HashBits)
}

// ICollisionProbability returns the similarity at which a single function
// collides with probability p.
func (l *L2Hash) ICollisionProbability(p float32) float32 {
	return invertCollisionProbability(l2HashP1, p)
}

// l2HashP1 is the collision probability of a width-r p-stable projection for
// points at distance d, with d recovered from the similarity.
func l2HashP1(sim float32) float32 {
	if sim >= 1 {
		return 1
	}
	if sim <= 0 {
		return 0
	}
	d := 1/float64(sim) - 1
	t := l2HashWidth / d
	p := math.Erf(t/math.Sqrt2) - math.Sqrt(2/math.Pi)/t*(1-math.Exp(-t*t/2))
	return clamp01(float32(p))
}

// SaveFunction writes the offset followed by the direction.
func (l *L2Hash) SaveFunction(w *persistence.Writer, f Function) error {
	fn := f.(*l2HashFunction)
	if err := w.WriteFloat32(fn.b); err != nil {
		return err
	}
	return w.WriteFloat32Slice(fn.plane)
}

// LoadFunction reads an offset and a direction.
func (l *L2Hash) LoadFunction(r *persistence.Reader) (Function, error) {
	b, err := r.ReadFloat32()
	if err != nil {
		return nil, err
	}
	plane, err := r.ReadFloat32Slice()
	if err != nil {
		return nil, err
	}
	return &l2HashFunction{plane: plane, b: b}, nil
}

type l2HashFunction struct {
	plane []float32
	b     float32
}

func (f *l2HashFunction) Hash(p dataset.Point) uint64 {
	const upper = (1 << l2HashBits) - 1
	v := math.Floor(float64((math32.Dot(f.plane, p.Vector) + f.b) / l2HashWidth))
	if v < 0 {
		v = 0
	}
	if v > upper {
		v = upper
	}
	return uint64(v)
}
