package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared by all cache instances in a
// process. Every vector carries a "cache" label so widget/user/analytics
// instances stay distinguishable.
//
// The hit/miss counters here are real per-access counters. Stats.HitRate is
// not derived from them; it keeps the structural approximation the dashboard
// has always reported (see Stats).
type Metrics struct {
	hits             *prometheus.CounterVec
	misses           *prometheus.CounterVec
	evictions        *prometheus.CounterVec
	expirations      *prometheus.CounterVec
	snapshotSaves    *prometheus.CounterVec
	snapshotFailures *prometheus.CounterVec
	entries          *prometheus.GaugeVec
}

// NewMetrics creates the collector set and registers it with reg.
// A nil registerer yields working but unregistered collectors, which is what
// tests and metric-less deployments want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		hits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashcache",
			Name:      "hits_total",
			Help:      "Lookups that returned a valid entry.",
		}, []string{"cache"}),
		misses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashcache",
			Name:      "misses_total",
			Help:      "Lookups that found no valid entry.",
		}, []string{"cache"}),
		evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashcache",
			Name:      "evictions_total",
			Help:      "Entries removed by the LRU policy.",
		}, []string{"cache"}),
		expirations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashcache",
			Name:      "expirations_total",
			Help:      "Entries removed because their TTL elapsed.",
		}, []string{"cache"}),
		snapshotSaves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashcache",
			Name:      "snapshot_saves_total",
			Help:      "Snapshots successfully written to storage.",
		}, []string{"cache"}),
		snapshotFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashcache",
			Name:      "snapshot_failures_total",
			Help:      "Snapshot encode or write failures.",
		}, []string{"cache"}),
		entries: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dashcache",
			Name:      "entries",
			Help:      "Entries currently stored, including expired-but-unswept ones.",
		}, []string{"cache"}),
	}
}

// cacheMetrics is one instance's view of the shared vectors, pre-bound to its
// label so the hot path never touches WithLabelValues.
type cacheMetrics struct {
	hits             prometheus.Counter
	misses           prometheus.Counter
	evictions        prometheus.Counter
	expirations      prometheus.Counter
	snapshotSaves    prometheus.Counter
	snapshotFailures prometheus.Counter
	entries          prometheus.Gauge
}

func (m *Metrics) forCache(name string) cacheMetrics {
	return cacheMetrics{
		hits:             m.hits.WithLabelValues(name),
		misses:           m.misses.WithLabelValues(name),
		evictions:        m.evictions.WithLabelValues(name),
		expirations:      m.expirations.WithLabelValues(name),
		snapshotSaves:    m.snapshotSaves.WithLabelValues(name),
		snapshotFailures: m.snapshotFailures.WithLabelValues(name),
		entries:          m.entries.WithLabelValues(name),
	}
}
