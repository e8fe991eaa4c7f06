package cache

import (
	"time"

	"github.com/go-kit/log"
)

// options holds optional constructor parameters.
type options struct {
	logger  log.Logger
	metrics *Metrics
}

// Option is a functional option for New.
type Option func(*options)

// WithLogger sets the logger used for lifecycle and snapshot events.
// The default is a nop logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics attaches a shared Metrics set. Multiple cache instances can
// share one Metrics; each instance reports under its own "cache" label.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// setOptions holds optional parameters for write operations.
type setOptions struct {
	ttl time.Duration
}

// SetOption is a functional option for Set, SetBatch, and GetOrSet.
type SetOption func(*setOptions)

// WithTTL overrides the cache's default TTL for the entry being written.
// Zero or negative values fall back to the default.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = ttl
	}
}

func applySetOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
