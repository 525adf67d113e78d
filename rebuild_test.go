package lshann

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebuildCanceledKeepsIndexIntact(t *testing.T) {
	vecs := randomVectors(1, 21, 8)
	idx := buildAngular(t, vecs[:20])

	before, err := idx.SearchVector(vecs[0], 3, 0.9)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	_, err = idx.InsertVector(vecs[20])
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, idx.Rebuild(ctx), context.Canceled)

	assert.Equal(t, 20, idx.IndexedLen())
	assert.Equal(t, 21, idx.Len())

	after, err := idx.SearchVector(vecs[0], 3, 0.9)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// The pending point commits on the next successful rebuild.
	require.NoError(t, idx.Rebuild(context.Background()))
	assert.Equal(t, 21, idx.IndexedLen())
}

func TestRebuildCanceledReshapeKeepsIndexIntact(t *testing.T) {
	// A budget-driven index reshapes when the dataset has grown enough to
	// change the affordable repetition count, discarding no state until the
	// reshape succeeds.
	vecs := randomVectors(2, 620, 8)
	idx, err := NewAngular(8, WithSeed(7), WithMemoryBudget(400_000))
	require.NoError(t, err)

	for _, v := range vecs[:20] {
		_, err := idx.InsertVector(v)
		require.NoError(t, err)
	}
	require.NoError(t, idx.Rebuild(context.Background()))
	repsBefore := idx.Stats().Repetitions

	for _, v := range vecs[20:] {
		_, err := idx.InsertVector(v)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, idx.Rebuild(ctx), context.Canceled)

	assert.Equal(t, 20, idx.IndexedLen())
	assert.Equal(t, repsBefore, idx.Stats().Repetitions)

	results, err := idx.SearchVector(vecs[0], 1, 0.9)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, uint32(0), results[0].ID)

	require.NoError(t, idx.Rebuild(context.Background()))
	assert.Equal(t, 620, idx.IndexedLen())
	assert.NotEqual(t, repsBefore, idx.Stats().Repetitions)
}
