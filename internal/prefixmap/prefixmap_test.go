package prefixmap

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lshann/persistence"
)

const testHashLength = 24

// collectPhases drains a query over the full prefix ladder and returns the
// ids surfaced per phase.
func collectPhases(m *Map, hash uint32, bitsPerFunction int) [][]uint32 {
	q := m.NewQuery(hash)
	var phases [][]uint32
	for l := testHashLength; ; {
		left, right := q.NextRange()
		ids := append(append([]uint32{}, left...), right...)
		phases = append(phases, ids)
		if l == 0 {
			break
		}
		l = max(0, l-bitsPerFunction)
	}
	return phases
}

func TestMapRebuild(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		m := New(testHashLength, 1)
		assert.Equal(t, 0, m.Len())

		q := m.NewQuery(0x123456)
		left, right := q.NextRange()
		assert.Empty(t, left)
		assert.Empty(t, right)
	})

	t.Run("Incremental", func(t *testing.T) {
		m := New(testHashLength, 1)
		m.Rebuild([]Entry{{ID: 0, Hash: 5}, {ID: 1, Hash: 3}})
		assert.Equal(t, 2, m.Len())

		m.Rebuild([]Entry{{ID: 2, Hash: 4}})
		assert.Equal(t, 3, m.Len())
	})
}

func TestQueryExpandsToPrefixNeighbors(t *testing.T) {
	m := New(testHashLength, 8)
	m.Rebuild([]Entry{
		{ID: 0, Hash: 0x010000},
		{ID: 1, Hash: 0x010001},
		{ID: 2, Hash: 0x020000},
		{ID: 3, Hash: 0x7f0000},
	})

	// The insertion slot of the query lies between the 0x01 and 0x02
	// entries, so the first expansion surfaces the shared-prefix entries to
	// the left and nothing to the right.
	q := m.NewQuery(0x010002)
	left, right := q.NextRange()
	assert.ElementsMatch(t, []uint32{0, 1}, left)
	assert.Empty(t, right)
}

func TestQuerySurfacesEachIDOnce(t *testing.T) {
	for _, bpf := range []int{1, 4, 24} {
		rng := rand.New(rand.NewSource(7))
		const n = 2000

		entries := make([]Entry, n)
		for i := range entries {
			entries[i] = Entry{ID: uint32(i), Hash: rng.Uint32() & 0xffffff}
		}
		m := New(testHashLength, bpf)
		m.Rebuild(entries)

		phases := collectPhases(m, rng.Uint32()&0xffffff, bpf)

		seen := map[uint32]int{}
		total := 0
		for _, ids := range phases {
			for _, id := range ids {
				seen[id]++
				total++
			}
		}
		assert.Equal(t, n, total, "bpf=%d", bpf)
		for id, count := range seen {
			require.Equal(t, 1, count, "bpf=%d id=%d", bpf, id)
		}
	}
}

func TestQuerySmallMapFullCoverage(t *testing.T) {
	// Maps smaller than a segment still surface every entry.
	m := New(testHashLength, 1)
	m.Rebuild([]Entry{
		{ID: 0, Hash: 0x000001},
		{ID: 1, Hash: 0xfffff0},
	})

	phases := collectPhases(m, 0x800000, 1)

	seen := map[uint32]int{}
	for _, ids := range phases {
		for _, id := range ids {
			seen[id]++
		}
	}
	assert.Equal(t, map[uint32]int{0: 1, 1: 1}, seen)
}

func TestMapSaveLoad(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	entries := make([]Entry, 100)
	for i := range entries {
		entries[i] = Entry{ID: uint32(i), Hash: rng.Uint32() & 0xffffff}
	}
	m := New(testHashLength, 4)
	m.Rebuild(entries)

	var buf bytes.Buffer
	require.NoError(t, m.Save(persistence.NewWriter(&buf)))

	loaded, err := Load(persistence.NewReader(&buf), testHashLength, 4)
	require.NoError(t, err)
	assert.Equal(t, m.Len(), loaded.Len())

	query := rng.Uint32() & 0xffffff
	want := collectPhases(m, query, 4)
	got := collectPhases(loaded, query, 4)
	assert.Equal(t, want, got)
}
