// Package lshann provides an in-memory index for approximate nearest
// neighbor search based on locality-sensitive hashing.
//
// The index keeps several hash repetitions of every inserted point. A search
// walks the repetitions with a progressively shorter hash prefix, filters
// candidates through compact bit-sketches, and stops as soon as the
// requested recall is statistically guaranteed. Memory is bounded up front:
// the index chooses how many repetitions it can afford from a byte budget.
//
// Basic usage:
//
//	idx, err := lshann.NewAngular(100)
//	if err != nil { ... }
//	for _, v := range vectors {
//		if _, err := idx.InsertVector(v); err != nil { ... }
//	}
//	if err := idx.Rebuild(ctx); err != nil { ... }
//	result, err := idx.SearchVector(query, 10, 0.9)
package lshann
