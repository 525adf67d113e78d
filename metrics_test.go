package lshann

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicMetricsCollector(t *testing.T) {
	mc := &BasicMetricsCollector{}

	vecs := randomVectors(30, 20, 8)
	idx := buildAngular(t, vecs, WithMetricsCollector(mc))

	_, err := idx.SearchVector(vecs[0], 3, 0.9)
	require.NoError(t, err)

	_, err = idx.InsertVector([]float32{1, 0})
	require.Error(t, err)

	stats := mc.GetStats()
	assert.Equal(t, int64(21), stats.InsertCount)
	assert.Equal(t, int64(1), stats.InsertErrors)
	assert.Equal(t, int64(1), stats.RebuildCount)
	assert.Equal(t, int64(1), stats.SearchCount)
	assert.Equal(t, int64(20), stats.IndexedPoints)
	assert.NotZero(t, stats.CandidatesTotal)
}

func TestMetricsRecordsSearchErrors(t *testing.T) {
	mc := &BasicMetricsCollector{}
	idx, err := NewAngular(8, testOptions(WithMetricsCollector(mc))...)
	require.NoError(t, err)

	_, err = idx.InsertVector(make([]float32, 8))
	require.Error(t, err)
	require.NoError(t, idx.Rebuild(context.Background()))

	_, err = idx.SearchVector(make([]float32, 8), 1, 0.9)
	require.Error(t, err)

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.InsertErrors)
	assert.Equal(t, int64(1), stats.SearchErrors)
}
