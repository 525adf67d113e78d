package lshann

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/lshann/blobstore"
	"github.com/hupe1980/lshann/dataset"
	"github.com/hupe1980/lshann/internal/hashsource"
	"github.com/hupe1980/lshann/internal/prefixmap"
	"github.com/hupe1980/lshann/internal/sketch"
	"github.com/hupe1980/lshann/persistence"
	"github.com/hupe1980/lshann/similarity"
)

// SaveToWriter writes a snapshot of the index. The snapshot captures the
// stored points, the sampled hash functions and the built tables, so a
// loaded index answers searches without a rebuild.
//
// The stream is zstd compressed. Concurrent inserts and rebuilds are
// blocked for the duration of the write.
func (idx *Index) SaveToWriter(w io.Writer) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create compressor: %w", err)
	}

	if err := idx.saveLocked(persistence.NewWriter(zw)); err != nil {
		zw.Close()
		return err
	}

	return zw.Close()
}

func (idx *Index) saveLocked(w *persistence.Writer) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}

	desc := idx.store.Description()
	if err := w.WriteUint8(uint8(desc.Format)); err != nil {
		return err
	}
	if err := w.WriteUint32(desc.Args); err != nil {
		return err
	}

	if err := w.WriteUint32(uint32(idx.store.Len())); err != nil {
		return err
	}
	if desc.Format == dataset.FormatIDSet {
		offsets, values := idx.store.RawSets()
		if err := w.WriteUint32Slice(offsets); err != nil {
			return err
		}
		if err := w.WriteUint32Slice(values); err != nil {
			return err
		}
	} else {
		if err := w.WriteFloat32Slice(idx.store.RawVectors()); err != nil {
			return err
		}
	}

	if err := w.WriteUint32(idx.indexed); err != nil {
		return err
	}

	built := idx.source != nil
	if err := w.WriteUint8(boolByte(built)); err != nil {
		return err
	}
	if !built {
		return nil
	}

	if err := idx.source.Save(w); err != nil {
		return fmt.Errorf("save hash source: %w", err)
	}
	for _, m := range idx.maps {
		if err := m.Save(w); err != nil {
			return fmt.Errorf("save prefix map: %w", err)
		}
	}
	if err := idx.sketches.Save(w); err != nil {
		return fmt.Errorf("save sketches: %w", err)
	}

	return nil
}

// SaveToFile writes a snapshot to the given path. The file is written to a
// temporary sibling first and renamed into place, so a crash mid-write
// never leaves a truncated snapshot at the destination.
func (idx *Index) SaveToFile(filename string) error {
	err := idx.saveToFile(filename)
	idx.logger.LogSnapshot(context.Background(), filename, err)
	return err
}

func (idx *Index) saveToFile(filename string) error {
	tmp := filename + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := idx.SaveToWriter(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, filename)
}

// NewFromReader restores an index from a snapshot stream.
//
// The sampled hash functions and built tables come from the snapshot. The
// seed and hash source strategy options only affect functions sampled by a
// later rebuild that changes the index shape; operational options such as
// memory budget, logging and metrics apply to the loaded index.
func NewFromReader(r io.Reader, optFns ...Option) (*Index, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create decompressor: %w", err)
	}
	defer zr.Close()

	return load(persistence.NewReader(zr), optFns)
}

func load(r *persistence.Reader, optFns []Option) (*Index, error) {
	if err := r.ReadHeader(); err != nil {
		return nil, err
	}

	format, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	args, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}

	measure, err := similarity.ByFormat(dataset.Format(format))
	if err != nil {
		return nil, err
	}
	desc := dataset.NewDescription(dataset.Format(format), args)

	count, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}

	var store *dataset.Store
	if desc.Format == dataset.FormatIDSet {
		offsets, err := r.ReadUint32Slice()
		if err != nil {
			return nil, err
		}
		values, err := r.ReadUint32Slice()
		if err != nil {
			return nil, err
		}
		store = dataset.Restore(desc, count, nil, offsets, values)
	} else {
		vectors, err := r.ReadFloat32Slice()
		if err != nil {
			return nil, err
		}
		store = dataset.Restore(desc, count, vectors, nil, nil)
	}

	indexed, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}

	o := applyOptions(optFns)

	seed := o.seed
	if !o.hasSeed {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // hash sampling, not crypto

	idx := &Index{
		opts:         o,
		logger:       o.logger.WithSimilarity(measure.Tag()),
		metrics:      o.metricsCollector,
		measure:      measure,
		family:       measure.DefaultFamily(desc, rng),
		sketchFamily: measure.SketchFamily(desc, rng),
		rng:          rng,
		store:        store,
		indexed:      indexed,
	}

	built, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	if built == 0 {
		return idx, nil
	}

	idx.source, err = hashsource.Load(r, idx.family)
	if err != nil {
		return nil, fmt.Errorf("load hash source: %w", err)
	}

	idx.maps = make([]*prefixmap.Map, idx.source.Repetitions())
	for i := range idx.maps {
		idx.maps[i], err = prefixmap.Load(r, MaxHashBits, idx.source.BitsPerFunction())
		if err != nil {
			return nil, fmt.Errorf("load prefix map: %w", err)
		}
	}

	idx.sketches, err = sketch.Load(r, idx.sketchFamily)
	if err != nil {
		return nil, fmt.Errorf("load sketches: %w", err)
	}

	return idx, nil
}

// NewFromFile restores an index from a snapshot file written by SaveToFile.
func NewFromFile(filename string, optFns ...Option) (*Index, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return NewFromReader(f, optFns...)
}

// SaveToBlobStore writes a snapshot blob under the given name.
func (idx *Index) SaveToBlobStore(ctx context.Context, store blobstore.BlobStore, name string) error {
	pr, pw := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- store.Put(ctx, name, pr, -1)
	}()

	err := idx.SaveToWriter(pw)
	pw.CloseWithError(err)

	if putErr := <-done; err == nil {
		err = putErr
	}

	idx.logger.LogSnapshot(ctx, name, err)
	return err
}

// NewFromBlobStore restores an index from a snapshot blob written by
// SaveToBlobStore.
func NewFromBlobStore(ctx context.Context, store blobstore.BlobStore, name string, optFns ...Option) (*Index, error) {
	r, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return NewFromReader(r, optFns...)
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
