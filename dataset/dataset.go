// Package dataset provides dense, append-only storage for the points held by
// an index.
//
// Points are stored in one of three formats: unit-length float vectors
// (angular similarity), unnormalized float vectors (euclidean similarity) or
// sorted sets of unique uint32 ids (jaccard similarity). Vector rows are
// padded to an alignment boundary so that rows can be handed to vectorized
// kernels without bounds juggling.
package dataset

import (
	"errors"
	"fmt"
	"math"
)

// Format identifies the storage layout of a dataset.
type Format uint8

const (
	// FormatUnitVector stores float32 vectors normalized to unit length.
	FormatUnitVector Format = iota
	// FormatRealVector stores raw float32 vectors.
	FormatRealVector
	// FormatIDSet stores sorted sets of unique uint32 ids.
	FormatIDSet
)

// String returns a string representation of the Format.
func (f Format) String() string {
	switch f {
	case FormatUnitVector:
		return "UnitVector"
	case FormatRealVector:
		return "RealVector"
	case FormatIDSet:
		return "IDSet"
	default:
		return "Unknown"
	}
}

// Rows are padded to a multiple of 8 float32s (32 bytes).
const vectorAlignment = 8

var (
	// ErrNotNormalizable is returned when a zero vector is inserted into a
	// unit-vector dataset.
	ErrNotNormalizable = errors.New("cannot normalize zero vector")

	// ErrNotSorted is returned when an id set is not sorted or contains
	// duplicates.
	ErrNotSorted = errors.New("id set must be sorted and unique")
)

// ErrDimensionMismatch indicates a point whose length does not match the
// configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Description describes the shape of a dataset.
//
// Args is format dependent: the dimensionality for vector formats and the
// universe size for id sets. StorageLen is the padded per-row length for
// vector formats and is at least Args.
type Description struct {
	Format     Format
	Args       uint32
	StorageLen uint32
}

// NewDescription computes the storage description for the given format.
func NewDescription(format Format, args uint32) Description {
	storageLen := args
	if format != FormatIDSet {
		storageLen = (args + vectorAlignment - 1) / vectorAlignment * vectorAlignment
	}
	return Description{Format: format, Args: args, StorageLen: storageLen}
}

// Point is a borrowed view of a stored or query point. Exactly one of the
// fields is populated, depending on the dataset format.
type Point struct {
	Vector []float32
	Set    []uint32
}

// Store is the dense arena holding all inserted points.
//
// It is append-only: points are never mutated or removed. Callers serialize
// their own appends; reads on a store that is not being appended to are safe
// from any number of goroutines.
type Store struct {
	desc Description

	// Vector formats: row-major rows of StorageLen float32s.
	vectors []float32

	// Id-set format: concatenated values with per-point offsets.
	// offsets has len == count+1 so that row i is values[offsets[i]:offsets[i+1]].
	setOffsets []uint32
	setValues  []uint32

	count uint32
}

// NewStore creates an empty store for the given description.
func NewStore(desc Description) *Store {
	s := &Store{desc: desc}
	if desc.Format == FormatIDSet {
		s.setOffsets = append(s.setOffsets, 0)
	}
	return s
}

// Description returns the dataset description.
func (s *Store) Description() Description { return s.desc }

// Len returns the number of stored points.
func (s *Store) Len() int { return int(s.count) }

// AppendVector stores a float vector and returns its id.
//
// For FormatUnitVector the vector is normalized before storage; a zero
// vector is rejected.
func (s *Store) AppendVector(v []float32) (uint32, error) {
	if len(v) != int(s.desc.Args) {
		return 0, &ErrDimensionMismatch{Expected: int(s.desc.Args), Actual: len(v)}
	}

	row := make([]float32, s.desc.StorageLen)
	copy(row, v)

	if s.desc.Format == FormatUnitVector {
		var norm float64
		for _, x := range row {
			norm += float64(x) * float64(x)
		}
		if norm == 0 {
			return 0, ErrNotNormalizable
		}
		scale := float32(1 / math.Sqrt(norm))
		for i := range row {
			row[i] *= scale
		}
	}

	s.vectors = append(s.vectors, row...)
	id := s.count
	s.count++
	return id, nil
}

// AppendSet stores a sorted set of unique ids and returns its id.
func (s *Store) AppendSet(set []uint32) (uint32, error) {
	for i, x := range set {
		if x >= s.desc.Args {
			return 0, &ErrDimensionMismatch{Expected: int(s.desc.Args), Actual: int(x)}
		}
		if i > 0 && set[i-1] >= x {
			return 0, ErrNotSorted
		}
	}

	s.setValues = append(s.setValues, set...)
	s.setOffsets = append(s.setOffsets, uint32(len(s.setValues)))
	id := s.count
	s.count++
	return id, nil
}

// Vector returns the stored row for id, including alignment padding.
// The returned slice aliases the arena and must not be modified.
func (s *Store) Vector(id uint32) []float32 {
	start := uint64(id) * uint64(s.desc.StorageLen)
	return s.vectors[start : start+uint64(s.desc.StorageLen)]
}

// Set returns the stored id set. The returned slice aliases the arena.
func (s *Store) Set(id uint32) []uint32 {
	return s.setValues[s.setOffsets[id]:s.setOffsets[id+1]]
}

// At returns a borrowed view of the point with the given id.
func (s *Store) At(id uint32) Point {
	if s.desc.Format == FormatIDSet {
		return Point{Set: s.Set(id)}
	}
	return Point{Vector: s.Vector(id)}
}

// PrepareQuery validates and converts a raw query point into the stored
// layout, without appending it.
func (s *Store) PrepareQuery(p Point) (Point, error) {
	switch s.desc.Format {
	case FormatIDSet:
		for i, x := range p.Set {
			if i > 0 && p.Set[i-1] >= x {
				return Point{}, ErrNotSorted
			}
			if x >= s.desc.Args {
				return Point{}, &ErrDimensionMismatch{Expected: int(s.desc.Args), Actual: int(x)}
			}
		}
		return p, nil
	default:
		if len(p.Vector) != int(s.desc.Args) {
			return Point{}, &ErrDimensionMismatch{Expected: int(s.desc.Args), Actual: len(p.Vector)}
		}
		row := make([]float32, s.desc.StorageLen)
		copy(row, p.Vector)
		if s.desc.Format == FormatUnitVector {
			var norm float64
			for _, x := range row {
				norm += float64(x) * float64(x)
			}
			if norm == 0 {
				return Point{}, ErrNotNormalizable
			}
			scale := float32(1 / math.Sqrt(norm))
			for i := range row {
				row[i] *= scale
			}
		}
		return Point{Vector: row}, nil
	}
}

// MemoryUsage returns the approximate number of bytes held by all stored
// points.
func (s *Store) MemoryUsage() uint64 {
	if s.desc.Format == FormatIDSet {
		return uint64(len(s.setValues))*4 + uint64(len(s.setOffsets))*4
	}
	return uint64(len(s.vectors)) * 4
}

// RawVectors exposes the backing float arena for serialization.
func (s *Store) RawVectors() []float32 { return s.vectors }

// RawSets exposes the backing set arenas for serialization.
func (s *Store) RawSets() (offsets, values []uint32) { return s.setOffsets, s.setValues }

// Restore rebuilds a store from serialized arenas. The caller guarantees the
// slices were produced by RawVectors/RawSets for the same description.
func Restore(desc Description, count uint32, vectors []float32, setOffsets, setValues []uint32) *Store {
	return &Store{
		desc:       desc,
		vectors:    vectors,
		setOffsets: setOffsets,
		setValues:  setValues,
		count:      count,
	}
}
