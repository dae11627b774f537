package smallworld

import (
	"log/slog"

	"github.com/hupe1980/smallworld/hnsw"
	"github.com/hupe1980/smallworld/persistence"
	"github.com/hupe1980/smallworld/resource"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	controller       *resource.Controller
	compression      persistence.Compression
	graphOptFns      []func(o *hnsw.Options)
}

// Option configures facade behavior. Graph construction parameters go
// through WithGraphOptions; everything else here is ambient (logging,
// metrics, resource limits, snapshot compression).
type Option func(*options)

// WithGraphOptions configures the graph construction parameters
// (M, EFConstruction, heuristic selection, distance cache, ...).
//
// Example:
//
//	sw := smallworld.New[[]float64, float64](distance.Euclidean,
//	    smallworld.WithGraphOptions(func(o *hnsw.Options) {
//	        o.M = 16
//	        o.Heuristic = true
//	    }))
func WithGraphOptions(optFns ...func(o *hnsw.Options)) Option {
	return func(o *options) {
		o.graphOptFns = append(o.graphOptFns, optFns...)
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

// WithResourceController bounds batch-search concurrency and snapshot IO
// throughput with the given controller.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithSnapshotCompression selects the compression codec used by SaveToFile
// and SaveToStore. Loads auto-detect the codec from the snapshot envelope.
func WithSnapshotCompression(c persistence.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		compression:      persistence.CompressionNone,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
