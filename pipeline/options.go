package pipeline

import "time"

// Options configures an Engine. The zero value is valid: no step limit, no
// default timeout, no metrics.
type Options struct {
	// MaxSteps aborts runs that execute more nodes than this. Zero disables
	// the limit.
	MaxSteps int

	// DefaultNodeTimeout applies to nodes whose policy has no Timeout.
	DefaultNodeTimeout time.Duration

	// Metrics receives execution metrics when non-nil.
	Metrics *PrometheusMetrics
}

// Option mutates Options.
type Option func(*Options)

// WithMaxSteps sets Options.MaxSteps.
func WithMaxSteps(n int) Option {
	return func(o *Options) { o.MaxSteps = n }
}

// WithDefaultNodeTimeout sets Options.DefaultNodeTimeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(o *Options) { o.DefaultNodeTimeout = d }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}
