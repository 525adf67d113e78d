package lshann

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lshann/blobstore"
)

func assertSameSearchResults(t *testing.T, a, b *Index, vecs [][]float32) {
	t.Helper()

	for q := 0; q < 5; q++ {
		want, err := a.SearchVector(vecs[q], 5, 0.8)
		require.NoError(t, err)
		got, err := b.SearchVector(vecs[q], 5, 0.8)
		require.NoError(t, err)
		assert.Equal(t, want, got, "query=%d", q)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	vecs := randomVectors(20, 80, 16)
	idx := buildAngular(t, vecs)

	var buf bytes.Buffer
	require.NoError(t, idx.SaveToWriter(&buf))

	loaded, err := NewFromReader(&buf)
	require.NoError(t, err)

	assert.Equal(t, idx.Description(), loaded.Description())
	assert.Equal(t, idx.Len(), loaded.Len())
	assert.Equal(t, idx.IndexedLen(), loaded.IndexedLen())
	assert.Equal(t, idx.Stats().Repetitions, loaded.Stats().Repetitions)
	assert.Equal(t, idx.Stats().SketchRepetitions, loaded.Stats().SketchRepetitions)

	assertSameSearchResults(t, idx, loaded, vecs)
}

func TestSnapshotJaccardRoundTrip(t *testing.T) {
	idx, err := NewJaccard(500, testOptions()...)
	require.NoError(t, err)

	sets := [][]uint32{{1, 2, 3}, {2, 3, 4}, {100, 200, 300}, {5}}
	for _, set := range sets {
		_, err := idx.InsertSet(set)
		require.NoError(t, err)
	}
	require.NoError(t, idx.Rebuild(context.Background()))

	var buf bytes.Buffer
	require.NoError(t, idx.SaveToWriter(&buf))

	loaded, err := NewFromReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), loaded.Len())

	for i, set := range sets {
		results, err := loaded.SearchSet(set, 1, 0.9)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, uint32(i), results[0].ID)
	}
}

func TestSnapshotUnbuiltIndex(t *testing.T) {
	idx, err := NewAngular(8, testOptions()...)
	require.NoError(t, err)

	vecs := randomVectors(21, 10, 8)
	for _, v := range vecs {
		_, err := idx.InsertVector(v)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, idx.SaveToWriter(&buf))

	loaded, err := NewFromReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.Len())
	assert.Equal(t, 0, loaded.IndexedLen())

	// The pending points survive the round trip and become searchable after
	// a rebuild on the loaded side.
	require.NoError(t, loaded.Rebuild(context.Background()))
	results, err := loaded.SearchVector(vecs[3], 1, 0.9)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(3), results[0].ID)
}

func TestSnapshotLoadedIndexAcceptsInserts(t *testing.T) {
	vecs := randomVectors(22, 30, 8)
	idx := buildAngular(t, vecs)

	var buf bytes.Buffer
	require.NoError(t, idx.SaveToWriter(&buf))

	loaded, err := NewFromReader(&buf, WithSeed(99))
	require.NoError(t, err)

	extra := []float32{0, 0, 0, 0, 0, 0, 0, 1}
	id, err := loaded.InsertVector(extra)
	require.NoError(t, err)
	require.NoError(t, loaded.Rebuild(context.Background()))

	results, err := loaded.SearchVector(extra, 1, 0.9)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
}

func TestNewFromReaderGarbage(t *testing.T) {
	_, err := NewFromReader(bytes.NewReader([]byte("not a snapshot")))
	assert.Error(t, err)
}

func TestSnapshotFile(t *testing.T) {
	vecs := randomVectors(23, 40, 8)
	idx := buildAngular(t, vecs)

	path := filepath.Join(t.TempDir(), "index.snap")
	require.NoError(t, idx.SaveToFile(path))

	loaded, err := NewFromFile(path)
	require.NoError(t, err)
	assertSameSearchResults(t, idx, loaded, vecs)

	_, err = NewFromFile(filepath.Join(t.TempDir(), "missing.snap"))
	assert.Error(t, err)
}

func TestSnapshotBlobStore(t *testing.T) {
	vecs := randomVectors(24, 40, 8)
	idx := buildAngular(t, vecs)

	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, idx.SaveToBlobStore(ctx, store, "snapshots/index"))

	names, err := store.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/index"}, names)

	loaded, err := NewFromBlobStore(ctx, store, "snapshots/index")
	require.NoError(t, err)
	assertSameSearchResults(t, idx, loaded, vecs)

	_, err = NewFromBlobStore(ctx, store, "snapshots/missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
