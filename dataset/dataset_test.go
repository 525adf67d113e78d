package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDescription(t *testing.T) {
	tests := []struct {
		name       string
		format     Format
		args       uint32
		storageLen uint32
	}{
		{name: "aligned vector", format: FormatUnitVector, args: 16, storageLen: 16},
		{name: "padded vector", format: FormatRealVector, args: 13, storageLen: 16},
		{name: "single dim", format: FormatUnitVector, args: 1, storageLen: 8},
		{name: "id set unpadded", format: FormatIDSet, args: 1000, storageLen: 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := NewDescription(tt.format, tt.args)
			assert.Equal(t, tt.format, desc.Format)
			assert.Equal(t, tt.args, desc.Args)
			assert.Equal(t, tt.storageLen, desc.StorageLen)
		})
	}
}

func TestAppendVector(t *testing.T) {
	t.Run("NormalizesUnitVectors", func(t *testing.T) {
		s := NewStore(NewDescription(FormatUnitVector, 3))

		id, err := s.AppendVector([]float32{3, 0, 4})
		require.NoError(t, err)
		assert.Equal(t, uint32(0), id)
		assert.Equal(t, 1, s.Len())

		row := s.Vector(0)
		require.Len(t, row, 8)
		assert.InDelta(t, 0.6, row[0], 1e-6)
		assert.InDelta(t, 0.0, row[1], 1e-6)
		assert.InDelta(t, 0.8, row[2], 1e-6)
		for _, pad := range row[3:] {
			assert.Zero(t, pad)
		}
	})

	t.Run("RejectsZeroVector", func(t *testing.T) {
		s := NewStore(NewDescription(FormatUnitVector, 3))
		_, err := s.AppendVector([]float32{0, 0, 0})
		assert.ErrorIs(t, err, ErrNotNormalizable)
	})

	t.Run("KeepsRealVectorsRaw", func(t *testing.T) {
		s := NewStore(NewDescription(FormatRealVector, 2))
		_, err := s.AppendVector([]float32{30, 40})
		require.NoError(t, err)
		assert.Equal(t, float32(30), s.Vector(0)[0])
		assert.Equal(t, float32(40), s.Vector(0)[1])
	})

	t.Run("RejectsWrongDimension", func(t *testing.T) {
		s := NewStore(NewDescription(FormatUnitVector, 3))
		_, err := s.AppendVector([]float32{1, 2})

		var dimErr *ErrDimensionMismatch
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 3, dimErr.Expected)
		assert.Equal(t, 2, dimErr.Actual)
	})
}

func TestAppendSet(t *testing.T) {
	s := NewStore(NewDescription(FormatIDSet, 100))

	id, err := s.AppendSet([]uint32{1, 5, 99})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), id)
	assert.Equal(t, []uint32{1, 5, 99}, s.Set(0))

	id, err = s.AppendSet(nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)
	assert.Empty(t, s.Set(1))

	_, err = s.AppendSet([]uint32{5, 1})
	assert.ErrorIs(t, err, ErrNotSorted)

	_, err = s.AppendSet([]uint32{1, 1})
	assert.ErrorIs(t, err, ErrNotSorted)

	_, err = s.AppendSet([]uint32{1, 100})
	var dimErr *ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
}

func TestAt(t *testing.T) {
	vs := NewStore(NewDescription(FormatUnitVector, 2))
	_, err := vs.AppendVector([]float32{1, 0})
	require.NoError(t, err)
	assert.NotNil(t, vs.At(0).Vector)
	assert.Nil(t, vs.At(0).Set)

	ss := NewStore(NewDescription(FormatIDSet, 10))
	_, err = ss.AppendSet([]uint32{2, 4})
	require.NoError(t, err)
	assert.Nil(t, ss.At(0).Vector)
	assert.Equal(t, []uint32{2, 4}, ss.At(0).Set)
}

func TestPrepareQuery(t *testing.T) {
	t.Run("NormalizesAndPads", func(t *testing.T) {
		s := NewStore(NewDescription(FormatUnitVector, 3))

		p, err := s.PrepareQuery(Point{Vector: []float32{0, 0, 2}})
		require.NoError(t, err)
		require.Len(t, p.Vector, 8)
		assert.InDelta(t, 1.0, p.Vector[2], 1e-6)

		var norm float64
		for _, x := range p.Vector {
			norm += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
	})

	t.Run("RejectsZeroVector", func(t *testing.T) {
		s := NewStore(NewDescription(FormatUnitVector, 3))
		_, err := s.PrepareQuery(Point{Vector: []float32{0, 0, 0}})
		assert.ErrorIs(t, err, ErrNotNormalizable)
	})

	t.Run("RejectsWrongDimension", func(t *testing.T) {
		s := NewStore(NewDescription(FormatRealVector, 3))
		_, err := s.PrepareQuery(Point{Vector: []float32{1}})

		var dimErr *ErrDimensionMismatch
		assert.ErrorAs(t, err, &dimErr)
	})

	t.Run("ValidatesSets", func(t *testing.T) {
		s := NewStore(NewDescription(FormatIDSet, 100))

		p, err := s.PrepareQuery(Point{Set: []uint32{1, 2, 3}})
		require.NoError(t, err)
		assert.Equal(t, []uint32{1, 2, 3}, p.Set)

		_, err = s.PrepareQuery(Point{Set: []uint32{3, 1}})
		assert.ErrorIs(t, err, ErrNotSorted)

		_, err = s.PrepareQuery(Point{Set: []uint32{1, 200}})
		var dimErr *ErrDimensionMismatch
		assert.ErrorAs(t, err, &dimErr)
	})
}

func TestRestore(t *testing.T) {
	t.Run("Vectors", func(t *testing.T) {
		desc := NewDescription(FormatRealVector, 2)
		s := NewStore(desc)
		_, err := s.AppendVector([]float32{1, 2})
		require.NoError(t, err)
		_, err = s.AppendVector([]float32{3, 4})
		require.NoError(t, err)

		restored := Restore(desc, uint32(s.Len()), s.RawVectors(), nil, nil)
		assert.Equal(t, s.Len(), restored.Len())
		assert.Equal(t, s.Vector(0), restored.Vector(0))
		assert.Equal(t, s.Vector(1), restored.Vector(1))
	})

	t.Run("Sets", func(t *testing.T) {
		desc := NewDescription(FormatIDSet, 50)
		s := NewStore(desc)
		_, err := s.AppendSet([]uint32{1, 2})
		require.NoError(t, err)
		_, err = s.AppendSet([]uint32{7})
		require.NoError(t, err)

		offsets, values := s.RawSets()
		restored := Restore(desc, uint32(s.Len()), nil, offsets, values)
		assert.Equal(t, s.Len(), restored.Len())
		assert.Equal(t, s.Set(0), restored.Set(0))
		assert.Equal(t, s.Set(1), restored.Set(1))
	})
}

func TestMemoryUsage(t *testing.T) {
	vs := NewStore(NewDescription(FormatUnitVector, 3))
	_, err := vs.AppendVector([]float32{1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, uint64(8*4), vs.MemoryUsage())

	ss := NewStore(NewDescription(FormatIDSet, 10))
	_, err = ss.AppendSet([]uint32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(3*4+2*4), ss.MemoryUsage())
}
