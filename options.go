package lshann

import (
	"log/slog"
)

// HashSourceStrategy selects how repetition hash codes are produced.
type HashSourceStrategy string

const (
	// HashSourceIndependent samples distinct functions per repetition.
	HashSourceIndependent HashSourceStrategy = "independent"

	// HashSourcePool samples each repetition's functions from a shared pool.
	HashSourcePool HashSourceStrategy = "pool"

	// HashSourceTensoring pairs half-length codes into repetitions.
	HashSourceTensoring HashSourceStrategy = "tensoring"
)

const (
	// DefaultMemoryBudget bounds the index size when no budget is given.
	DefaultMemoryBudget = uint64(1) << 29 // 512 MB

	// DefaultPoolBits is the pool size, in bits, of the pool strategy.
	DefaultPoolBits = 3000
)

type options struct {
	memoryBudget     uint64
	strategy         HashSourceStrategy
	poolBits         int
	repetitions      int
	sketchReps       int
	seed             int64
	hasSeed          bool
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures index construction and load behavior.
type Option func(*options)

// WithMemoryBudget bounds the total memory of the index in bytes. The
// rebuild step chooses the number of hash repetitions from the budget.
func WithMemoryBudget(bytes uint64) Option {
	return func(o *options) {
		o.memoryBudget = bytes
	}
}

// WithHashSource selects the hash source strategy. The default is
// HashSourceIndependent.
func WithHashSource(strategy HashSourceStrategy) Option {
	return func(o *options) {
		o.strategy = strategy
	}
}

// WithPoolBits sets the pool size, in bits, used by HashSourcePool. A pool
// that is too small produces correlated repetitions and lowers recall.
func WithPoolBits(bits int) Option {
	return func(o *options) {
		o.poolBits = bits
	}
}

// WithRepetitions pins the number of hash repetitions instead of deriving it
// from the memory budget.
func WithRepetitions(r int) Option {
	return func(o *options) {
		o.repetitions = r
	}
}

// WithSketchRepetitions sets the number of sketch repetitions. It is used
// as given when the hash repetitions are pinned with WithRepetitions;
// otherwise it is the starting count that the planner halves until a hash
// repetition fits the memory budget.
func WithSketchRepetitions(s int) Option {
	return func(o *options) {
		o.sketchReps = s
	}
}

// WithSeed makes hash function sampling deterministic. Two indexes built
// with the same seed, options and insert order return identical results.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
		o.hasSeed = true
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		memoryBudget:     DefaultMemoryBudget,
		strategy:         HashSourceIndependent,
		poolBits:         DefaultPoolBits,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
