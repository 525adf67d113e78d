package lshann

import (
	"github.com/hupe1980/lshann/dataset"
	"github.com/hupe1980/lshann/internal/prefixmap"
	"github.com/hupe1980/lshann/internal/sketch"
)

// maxRepetitions caps the planner even under very generous budgets; beyond
// this point additional tables cost memory without measurable recall gains.
const maxRepetitions = 4096

// plannerFloor is the smallest dataset size the planner reasons about, so
// that a budget chosen before inserting data still yields a usable shape.
const plannerFloor = 1024

// plan is the index shape chosen for a rebuild.
type plan struct {
	repetitions int
	sketchReps  int
}

// planShape chooses the number of hash and sketch repetitions that fit the
// memory budget for the current dataset size. Sketch repetitions degrade
// before hash repetitions: a halved sketch store filters slightly worse,
// while too few repetitions break the recall guarantee outright.
func (idx *Index) planShape() (plan, error) {
	p := plan{
		repetitions: idx.opts.repetitions,
		sketchReps:  idx.opts.sketchReps,
	}
	if p.sketchReps <= 0 {
		p.sketchReps = DefaultSketchRepetitions
	}
	if p.repetitions > 0 {
		return p, nil
	}

	n := uint64(idx.store.Len())
	if n < plannerFloor {
		n = plannerFloor
	}

	datasetBytes := idx.store.MemoryUsage()
	if idx.opts.memoryBudget <= datasetBytes {
		return plan{}, ErrInsufficientMemory
	}
	remaining := idx.opts.memoryBudget - datasetBytes

	bpf := idx.family.BitsPerFunction()
	perRep := uint64((MaxHashBits + bpf - 1) / bpf)
	repCost := n*prefixmap.BytesPerEntry + perRep*idx.functionBytes()

	for {
		sketchBytes := uint64(p.sketchReps) * n * sketch.BytesPerSketch
		if remaining > sketchBytes {
			if r := (remaining - sketchBytes) / repCost; r >= 1 {
				p.repetitions = int(min(r, maxRepetitions))
				return p, nil
			}
		}
		if p.sketchReps <= 1 {
			return plan{}, ErrInsufficientMemory
		}
		p.sketchReps /= 2
	}
}

// functionBytes estimates the storage of a single sampled hash function.
// Vector families store a projection per function; set families store a
// seed. The estimate assumes the independent strategy, which is the most
// expensive one.
func (idx *Index) functionBytes() uint64 {
	desc := idx.store.Description()
	if desc.Format == dataset.FormatIDSet {
		return 8
	}
	return uint64(desc.StorageLen)*4 + 16
}
