// Package telemetry exposes the Prometheus collectors of the search and
// resolution pipeline.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the pipeline updates.
type Metrics struct {
	SearchesTotal    prometheus.Counter
	SearchDuration   prometheus.Histogram
	SourceResults    *prometheus.CounterVec
	SourceErrors     *prometheus.CounterVec
	DroppedResults   prometheus.Counter
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	ResolutionsTotal *prometheus.CounterVec
}

// New registers the pipeline collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SearchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gocomet_searches_total",
			Help: "Search requests handled.",
		}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gocomet_search_duration_seconds",
			Help:    "End to end search latency.",
			Buckets: prometheus.DefBuckets,
		}),
		SourceResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gocomet_source_results_total",
			Help: "Raw results returned per source.",
		}, []string{"source"}),
		SourceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gocomet_source_errors_total",
			Help: "Source failures by error type.",
		}, []string{"source", "type"}),
		DroppedResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "gocomet_dropped_results_total",
			Help: "Raw results dropped for lack of a recoverable info hash.",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "gocomet_cache_hits_total",
			Help: "Resolution cache hits.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "gocomet_cache_misses_total",
			Help: "Resolution cache misses.",
		}),
		ResolutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gocomet_resolutions_total",
			Help: "Resolution outcomes by provider and status.",
		}, []string{"provider", "status"}),
	}
}
