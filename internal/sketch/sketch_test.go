package sketch

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lshann/dataset"
	"github.com/hupe1980/lshann/persistence"
	"github.com/hupe1980/lshann/similarity"
)

func testStore(rng *rand.Rand, reps int) *Store {
	family := similarity.NewSimHash(dataset.NewDescription(dataset.FormatUnitVector, 16), rng)
	return NewStore(family, reps)
}

func randomPoint(rng *rand.Rand) dataset.Point {
	v := make([]float32, 16)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return dataset.Point{Vector: v}
}

func TestStoreComputeAppendAt(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s := testStore(rng, 3)
	assert.Equal(t, 3, s.Reps())
	assert.Equal(t, 0, s.Len())

	rows := make([][]uint64, 8)
	for i := range rows {
		rows[i] = s.Compute(randomPoint(rng))
		require.Len(t, rows[i], 3)
		s.Append(rows[i])
	}
	assert.Equal(t, 8, s.Len())

	for id, row := range rows {
		for rep, want := range row {
			assert.Equal(t, want, s.At(rep, uint32(id)))
		}
	}
}

func TestStoreComputeDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	s := testStore(rng, 2)

	p := randomPoint(rng)
	assert.Equal(t, s.Compute(p), s.Compute(p))
}

func TestMaxHammingDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s := testStore(rng, 1)

	// Tighter similarity floors admit fewer differing bits.
	prev := Bits + 1
	for _, sim := range []float32{0, 0.25, 0.5, 0.75, 1} {
		d := s.MaxHammingDistance(sim)
		assert.GreaterOrEqual(t, d, 0)
		assert.LessOrEqual(t, d, Bits)
		assert.LessOrEqual(t, d, prev, "sim=%f", sim)
		prev = d
	}

	// Identical points agree on every bit.
	assert.Equal(t, 0, s.MaxHammingDistance(1))
}

func TestStoreSaveLoad(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	family := similarity.NewSimHash(dataset.NewDescription(dataset.FormatUnitVector, 16), rng)
	s := NewStore(family, 2)

	points := make([]dataset.Point, 16)
	for i := range points {
		points[i] = randomPoint(rng)
		s.Append(s.Compute(points[i]))
	}

	var buf bytes.Buffer
	require.NoError(t, s.Save(persistence.NewWriter(&buf)))

	loaded, err := Load(persistence.NewReader(&buf), family)
	require.NoError(t, err)
	assert.Equal(t, s.Reps(), loaded.Reps())
	assert.Equal(t, s.Len(), loaded.Len())

	for id := range points {
		for rep := 0; rep < s.Reps(); rep++ {
			assert.Equal(t, s.At(rep, uint32(id)), loaded.At(rep, uint32(id)))
		}
		// The restored functions sketch new points the same way.
		assert.Equal(t, s.Compute(points[id]), loaded.Compute(points[id]))
	}
}

func TestStoreMemoryUsage(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	s := testStore(rng, 4)
	assert.Zero(t, s.MemoryUsage())

	s.Append(s.Compute(randomPoint(rng)))
	assert.Equal(t, uint64(4*BytesPerSketch), s.MemoryUsage())
}
