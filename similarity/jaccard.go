package similarity

import (
	"encoding/binary"
	"math/bits"
	"math/rand"

	"github.com/twmb/murmur3"

	"github.com/hupe1980/lshann/dataset"
	"github.com/hupe1980/lshann/persistence"
)

// Jaccard measures set similarity as |A ∩ B| / |A ∪ B|.
type Jaccard struct{}

// Tag returns the similarity tag.
func (Jaccard) Tag() string { return "jaccard" }

// Format returns the storage format for jaccard points.
func (Jaccard) Format() dataset.Format { return dataset.FormatIDSet }

// Similarity computes the jaccard similarity of two sorted id sets. Two empty
// sets are treated as identical.
func (Jaccard) Similarity(a, b dataset.Point) float32 {
	inter := 0
	i, j := 0, 0
	for i < len(a.Set) && j < len(b.Set) {
		switch {
		case a.Set[i] < b.Set[j]:
			i++
		case a.Set[i] > b.Set[j]:
			j++
		default:
			inter++
			i++
			j++
		}
	}
	union := len(a.Set) + len(b.Set) - inter
	if union == 0 {
		return 1
	}
	return float32(inter) / float32(union)
}

// DefaultFamily returns the minhash family used for index hashes.
func (Jaccard) DefaultFamily(desc dataset.Description, rng *rand.Rand) Family {
	return NewMinHash(desc, rng)
}

// SketchFamily returns the one-bit minhash family used for sketches.
func (Jaccard) SketchFamily(desc dataset.Description, rng *rand.Rand) Family {
	return NewOneBitMinHash(desc, rng)
}

// maxMinHashBits bounds the token width of a minhash function so that a
// single function never exceeds an index hash code.
const maxMinHashBits = 24

// MinHash hashes a set to the token that minimizes a seeded murmur3 hash.
// A function outputs the token itself, ceil(log2(universe)) bits wide.
type MinHash struct {
	universe uint32
	bits     int
	rng      *rand.Rand
}

// NewMinHash creates a minhash family for the given universe size.
func NewMinHash(desc dataset.Description, rng *rand.Rand) *MinHash {
	b := bits.Len32(desc.Args - 1)
	if desc.Args <= 1 {
		b = 1
	}
	if b > maxMinHashBits {
		b = maxMinHashBits
	}
	return &MinHash{universe: desc.Args, bits: b, rng: rng}
}

// Sample draws a random murmur3 seed.
func (m *MinHash) Sample() Function {
	return &minHashFunction{seed: m.rng.Uint32(), bits: m.bits}
}

// BitsPerFunction returns the token width.
func (m *MinHash) BitsPerFunction() int { return m.bits }

// CollisionProbability returns the probability that two sets with the given
// jaccard similarity agree on the given number of minhash bits.
func (m *MinHash) CollisionProbability(sim float32, bits int) float32 {
	return powBits(m.p1(sim), bits, m.bits)
}

// ICollisionProbability returns the similarity at which a single function
// collides with probability p.
func (m *MinHash) ICollisionProbability(p float32) float32 {
	return invertCollisionProbability(m.p1, p)
}

// p1 accounts for accidental token collisions among the truncated bits.
func (m *MinHash) p1(sim float32) float32 {
	return clamp01(sim + (1-sim)/float32(uint64(1)<<m.bits))
}

// SaveFunction writes the murmur3 seed.
func (m *MinHash) SaveFunction(w *persistence.Writer, f Function) error {
	return w.WriteUint32(f.(*minHashFunction).seed)
}

// LoadFunction reads a murmur3 seed.
func (m *MinHash) LoadFunction(r *persistence.Reader) (Function, error) {
	seed, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return &minHashFunction{seed: seed, bits: m.bits}, nil
}

type minHashFunction struct {
	seed uint32
	bits int
}

// Hash returns the token with the smallest seeded hash. The empty set hashes
// to the all-ones token, which no stored token can equal when the universe is
// not a power of two away from full.
func (f *minHashFunction) Hash(p dataset.Point) uint64 {
	if len(p.Set) == 0 {
		return (uint64(1) << f.bits) - 1
	}
	var buf [4]byte
	best := p.Set[0]
	bestHash := uint32(0xffffffff)
	for _, token := range p.Set {
		binary.LittleEndian.PutUint32(buf[:], token)
		h := murmur3.SeedSum32(f.seed, buf[:])
		if h < bestHash {
			bestHash = h
			best = token
		}
	}
	return uint64(best) & ((uint64(1) << f.bits) - 1)
}

// OneBitMinHash hashes a set to the parity of its minhash token. One bit per
// function, used for sketches.
type OneBitMinHash struct {
	inner *MinHash
}

// NewOneBitMinHash creates a one-bit minhash family for the given universe.
func NewOneBitMinHash(desc dataset.Description, rng *rand.Rand) *OneBitMinHash {
	return &OneBitMinHash{inner: NewMinHash(desc, rng)}
}

// Sample draws a random murmur3 seed.
func (o *OneBitMinHash) Sample() Function {
	return &oneBitMinHashFunction{inner: o.inner.Sample().(*minHashFunction)}
}

// BitsPerFunction returns 1.
func (o *OneBitMinHash) BitsPerFunction() int { return 1 }

// CollisionProbability returns the probability that two sets with the given
// jaccard similarity agree on the given number of parity bits.
func (o *OneBitMinHash) CollisionProbability(sim float32, bits int) float32 {
	return powBits(oneBitMinHashP1(sim), bits, 1)
}

// ICollisionProbability returns the similarity at which a single parity bit
// collides with probability p.
func (o *OneBitMinHash) ICollisionProbability(p float32) float32 {
	return invertCollisionProbability(oneBitMinHashP1, p)
}

func oneBitMinHashP1(sim float32) float32 {
	return (1 + sim) / 2
}

// SaveFunction writes the murmur3 seed.
func (o *OneBitMinHash) SaveFunction(w *persistence.Writer, f Function) error {
	return w.WriteUint32(f.(*oneBitMinHashFunction).inner.seed)
}

// LoadFunction reads a murmur3 seed.
func (o *OneBitMinHash) LoadFunction(r *persistence.Reader) (Function, error) {
	inner, err := o.inner.LoadFunction(r)
	if err != nil {
		return nil, err
	}
	return &oneBitMinHashFunction{inner: inner.(*minHashFunction)}, nil
}

type oneBitMinHashFunction struct {
	inner *minHashFunction
}

func (f *oneBitMinHashFunction) Hash(p dataset.Point) uint64 {
	return f.inner.Hash(p) & 1
}
