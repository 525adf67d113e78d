package lshann

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanShape(t *testing.T) {
	t.Run("PinnedRepetitions", func(t *testing.T) {
		idx, err := NewAngular(16, WithSeed(1), WithRepetitions(7))
		require.NoError(t, err)

		p, err := idx.planShape()
		require.NoError(t, err)
		assert.Equal(t, 7, p.repetitions)
		assert.Equal(t, DefaultSketchRepetitions, p.sketchReps)
	})

	t.Run("PinnedSketchRepetitions", func(t *testing.T) {
		idx, err := NewAngular(16, WithSeed(1), WithRepetitions(3), WithSketchRepetitions(8))
		require.NoError(t, err)

		p, err := idx.planShape()
		require.NoError(t, err)
		assert.Equal(t, 3, p.repetitions)
		assert.Equal(t, 8, p.sketchReps)
	})

	t.Run("BudgetDriven", func(t *testing.T) {
		idx, err := NewAngular(16, WithSeed(1), WithMemoryBudget(1<<24))
		require.NoError(t, err)

		p, err := idx.planShape()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.repetitions, 1)
		assert.Equal(t, DefaultSketchRepetitions, p.sketchReps)
	})

	t.Run("SketchesDegradeFirst", func(t *testing.T) {
		// Budget fits the full sketch store but leaves no room for a single
		// repetition, so the planner halves the sketches instead of failing.
		idx, err := NewAngular(16, WithSeed(1), WithMemoryBudget(270_000))
		require.NoError(t, err)

		p, err := idx.planShape()
		require.NoError(t, err)
		assert.Less(t, p.sketchReps, DefaultSketchRepetitions)
		assert.GreaterOrEqual(t, p.repetitions, 1)
	})

	t.Run("InsufficientMemory", func(t *testing.T) {
		idx, err := NewAngular(16, WithSeed(1), WithMemoryBudget(1024))
		require.NoError(t, err)

		_, err = idx.planShape()
		assert.ErrorIs(t, err, ErrInsufficientMemory)
	})

	t.Run("RepetitionCap", func(t *testing.T) {
		idx, err := NewAngular(16, WithSeed(1), WithMemoryBudget(1<<40))
		require.NoError(t, err)

		p, err := idx.planShape()
		require.NoError(t, err)
		assert.Equal(t, maxRepetitions, p.repetitions)
	})
}

func TestRebuildInsufficientMemory(t *testing.T) {
	idx, err := NewAngular(16, WithSeed(1), WithMemoryBudget(100))
	require.NoError(t, err)

	_, err = idx.InsertVector(make16())
	require.NoError(t, err)

	err = idx.Rebuild(context.Background())
	assert.ErrorIs(t, err, ErrInsufficientMemory)
}

func make16() []float32 {
	v := make([]float32, 16)
	v[0] = 1
	return v
}
