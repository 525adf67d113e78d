// Package prefixmap implements the sorted repetition table behind the index.
//
// A map stores (id, code) pairs sorted by code. Queries locate the insertion
// point of their own code and then consume candidates in ranges that share a
// progressively shorter prefix with it, so the closest hash matches are
// surfaced first. Both ends of the sorted array are padded with sentinel
// codes that can never match a query prefix, which lets the range expansion
// step in fixed-size segments without bounds checks.
package prefixmap

import (
	"slices"
	"sort"

	"github.com/hupe1980/lshann/persistence"
)

const (
	// SegmentSize is the expansion step of a range scan, in entries. The
	// sentinel padding at both ends of the table has this length.
	SegmentSize = 12

	// prefixIndexBits is the width of the prefix lookup table that seeds
	// the binary search for a query code.
	prefixIndexBits = 13

	// impossiblePrefix pads the sorted table. Query codes never carry bits
	// above the hash length, so a sentinel can never share a masked prefix
	// with one.
	impossiblePrefix = uint32(0xffffffff)
)

// Entry is an (id, code) pair absorbed during a rebuild.
type Entry struct {
	ID   uint32
	Hash uint32
}

// Map is one repetition's sorted hash table.
//
// A map is immutable between rebuilds and safe for concurrent queries.
type Map struct {
	hashLength      int
	bitsPerFunction int
	indexBits       int

	// hashes and ids are parallel, sorted by (hash, id) and padded with
	// SegmentSize sentinels at both ends.
	hashes []uint32
	ids    []uint32

	// prefixIndex[p] is the position in hashes of the first real entry
	// whose top indexBits are >= p. len is 1<<indexBits + 1.
	prefixIndex []uint32
}

// New creates an empty map for codes of the given length.
func New(hashLength, bitsPerFunction int) *Map {
	m := &Map{
		hashLength:      hashLength,
		bitsPerFunction: bitsPerFunction,
		indexBits:       min(prefixIndexBits, hashLength),
	}
	m.rebuild(nil)
	return m
}

// Len returns the number of real entries.
func (m *Map) Len() int {
	return len(m.hashes) - 2*SegmentSize
}

// Rebuild merges the existing entries with the new ones, re-sorts and
// rebuilds the prefix index.
func (m *Map) Rebuild(entries []Entry) {
	merged := make([]Entry, 0, m.Len()+len(entries))
	for i := SegmentSize; i < len(m.hashes)-SegmentSize; i++ {
		merged = append(merged, Entry{ID: m.ids[i], Hash: m.hashes[i]})
	}
	merged = append(merged, entries...)
	m.rebuild(merged)
}

func (m *Map) rebuild(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if a.Hash != b.Hash {
			if a.Hash < b.Hash {
				return -1
			}
			return 1
		}
		if a.ID != b.ID {
			if a.ID < b.ID {
				return -1
			}
			return 1
		}
		return 0
	})

	m.hashes = make([]uint32, 0, len(entries)+2*SegmentSize)
	m.ids = make([]uint32, 0, len(entries)+2*SegmentSize)
	for i := 0; i < SegmentSize; i++ {
		m.hashes = append(m.hashes, impossiblePrefix)
		m.ids = append(m.ids, 0)
	}
	for _, e := range entries {
		m.hashes = append(m.hashes, e.Hash)
		m.ids = append(m.ids, e.ID)
	}
	for i := 0; i < SegmentSize; i++ {
		m.hashes = append(m.hashes, impossiblePrefix)
		m.ids = append(m.ids, 0)
	}

	m.buildPrefixIndex(len(entries))
}

// buildPrefixIndex walks the real entries once. The walk is bounded by the
// real entry count so the sentinel padding never leaks into the table.
func (m *Map) buildPrefixIndex(count int) {
	shift := m.hashLength - m.indexBits
	m.prefixIndex = make([]uint32, (1<<m.indexBits)+1)

	idx := 0
	for prefix := uint32(0); prefix < 1<<m.indexBits; prefix++ {
		for idx < count && m.hashes[SegmentSize+idx]>>shift < prefix {
			idx++
		}
		m.prefixIndex[prefix] = uint32(SegmentSize + idx)
	}
	m.prefixIndex[1<<m.indexBits] = uint32(SegmentSize + count)
}

// MemoryUsage returns the approximate number of bytes held by the map.
func (m *Map) MemoryUsage() uint64 {
	return uint64(len(m.hashes))*8 + uint64(len(m.prefixIndex))*4
}

// BytesPerEntry is the incremental cost of one stored point, used by the
// memory planner.
const BytesPerEntry = 8

// Save writes the real entries. The prefix index is rebuilt on load.
func (m *Map) Save(w *persistence.Writer) error {
	count := m.Len()
	hashes := m.hashes[SegmentSize : SegmentSize+count]
	ids := m.ids[SegmentSize : SegmentSize+count]
	if err := w.WriteUint32Slice(hashes); err != nil {
		return err
	}
	return w.WriteUint32Slice(ids)
}

// Load restores a map written by Save.
func Load(r *persistence.Reader, hashLength, bitsPerFunction int) (*Map, error) {
	hashes, err := r.ReadUint32Slice()
	if err != nil {
		return nil, err
	}
	ids, err := r.ReadUint32Slice()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(hashes))
	for i := range entries {
		entries[i] = Entry{ID: ids[i], Hash: hashes[i]}
	}
	m := &Map{
		hashLength:      hashLength,
		bitsPerFunction: bitsPerFunction,
		indexBits:       min(prefixIndexBits, hashLength),
	}
	m.rebuild(entries)
	return m, nil
}

// Query walks one map's candidates in order of decreasing shared prefix
// length with a query code.
type Query struct {
	m    *Map
	hash uint32

	// mask selects the code bits that must match in the current phase. It
	// is wider than a code so that sentinels keep failing the comparison
	// even when the mask no longer covers any real bits.
	mask  uint64
	shift int

	prefixStart int
	prefixEnd   int
}

// NewQuery locates the insertion point of the code in the map.
func (m *Map) NewQuery(hash uint32) *Query {
	shift := m.hashLength - m.indexBits
	prefix := hash >> shift
	lo := int(m.prefixIndex[prefix])
	hi := int(m.prefixIndex[prefix+1])

	idx := lo + sort.Search(hi-lo, func(i int) bool {
		return m.hashes[lo+i] >= hash
	})

	return &Query{
		m:           m,
		hash:        hash,
		mask:        ^uint64(0),
		prefixStart: idx,
		prefixEnd:   idx,
	}
}

func (q *Query) prefixEq(h uint32) bool {
	return (uint64(h)^uint64(q.hash))&q.mask == 0
}

// NextRange shortens the matched prefix by one sub-hash and returns the ids
// of the entries that newly match it, as the ranges to the left and right of
// the previously consumed span. The returned ranges replace the consumed
// span, so an id is surfaced by at most one phase.
//
// Expansion probes the sorted array in SegmentSize steps and stops at the
// first probe that no longer shares the prefix, clamping to the real entry
// region so the sentinel padding is never returned. The frontier segment may
// contain entries with a shorter shared prefix; they surface as candidates
// and are weeded out by the sketch filter and the exact similarity check.
func (q *Query) NextRange() (left, right []uint32) {
	q.shift += q.m.bitsPerFunction
	q.mask = ^uint64(0) << min(q.shift, q.m.hashLength)

	hashes := q.m.hashes

	end := q.prefixEnd
	for q.prefixEq(hashes[end]) {
		end += SegmentSize
	}
	if limit := len(hashes) - SegmentSize; end > limit {
		end = max(q.prefixEnd, limit)
	}

	start := q.prefixStart
	for q.prefixEq(hashes[start-1]) {
		start -= SegmentSize
	}
	if start < SegmentSize {
		start = min(q.prefixStart, SegmentSize)
	}

	left = q.m.ids[start:q.prefixStart]
	right = q.m.ids[q.prefixEnd:end]

	q.prefixStart = start
	q.prefixEnd = end

	return left, right
}
