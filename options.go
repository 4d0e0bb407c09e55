package vex

type options struct {
	m              int
	efConstruction int
	bufferCapacity int
	bgThreads      int
	softLimit      int
	hardLimit      int
	randomSeed     *int64
	logger         *Logger
}

// Option configures constructor behavior.
type Option func(*options)

// WithM configures the target number of edges per layer above 0; layer 0 uses
// twice this value.
func WithM(m int) Option {
	return func(o *options) {
		o.m = m
	}
}

// WithEFConstruction configures the candidate pool size used while inserting.
// Larger values build higher-quality graphs at lower insert throughput.
func WithEFConstruction(ef int) Option {
	return func(o *options) {
		o.efConstruction = ef
	}
}

// WithBufferCapacity configures the number of slots per flat write buffer.
func WithBufferCapacity(capacity int) Option {
	return func(o *options) {
		o.bufferCapacity = capacity
	}
}

// WithBGThreads configures the number of background compaction workers.
func WithBGThreads(n int) Option {
	return func(o *options) {
		o.bgThreads = n
	}
}

// WithBackpressure configures the immutable-queue thresholds: inserts are
// throttled once the queue reaches soft and block while it is at hard.
func WithBackpressure(soft, hard int) Option {
	return func(o *options) {
		o.softLimit = soft
		o.hardLimit = hard
	}
}

// WithRandomSeed pins the level RNG for reproducible graph builds.
func WithRandomSeed(seed int64) Option {
	return func(o *options) {
		o.randomSeed = &seed
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger: NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
