// Package metrics exposes Prometheus collectors for the visitor pipeline.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "iplanding"

type Metrics struct {
	GeoLookups        *prometheus.CounterVec
	GeoLookupDuration prometheus.Histogram
	GeoCache          *prometheus.CounterVec
	Submissions       *prometheus.CounterVec
	PageViews         *prometheus.CounterVec
	BotDetections     prometheus.Counter
	LimiterDegraded   prometheus.Counter
	RecordsPurged     prometheus.Counter
	LocationsRefresh  *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		GeoLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geo_lookups_total",
			Help:      "Geolocation lookups by status and degraded reason",
		}, []string{"status", "reason"}),
		GeoLookupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geo_lookup_duration_seconds",
			Help:      "Duration of outbound geolocation provider calls",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 11),
		}),
		GeoCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geo_cache_requests_total",
			Help:      "Geolocation cache lookups by result",
		}, []string{"result"}),
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Form submissions by outcome",
		}, []string{"outcome"}),
		PageViews: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_views_total",
			Help:      "Page views by outcome",
		}, []string{"outcome"}),
		BotDetections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_detections_total",
			Help:      "Requests classified as automated traffic",
		}),
		LimiterDegraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limiter_fail_open_total",
			Help:      "Submissions allowed because the count query failed",
		}),
		RecordsPurged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_purged_total",
			Help:      "Visitor records deleted by retention cleanup",
		}),
		LocationsRefresh: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_refresh_total",
			Help:      "Degraded records re-resolved by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveGeoLookup(status, reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GeoLookups.WithLabelValues(status, reason).Inc()
	if elapsed > 0 {
		m.GeoLookupDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) GeoCacheResult(result string) {
	if m == nil {
		return
	}
	m.GeoCache.WithLabelValues(result).Inc()
}

func (m *Metrics) SubmissionOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PageViewOutcome(outcome string) {
	if m == nil {
		return
	}
	m.PageViews.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BotDetected() {
	if m == nil {
		return
	}
	m.BotDetections.Inc()
}

func (m *Metrics) LimiterFailOpen() {
	if m == nil {
		return
	}
	m.LimiterDegraded.Inc()
}

func (m *Metrics) Purged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsPurged.Add(float64(n))
}

func (m *Metrics) LocationRefreshed(result string) {
	if m == nil {
		return
	}
	m.LocationsRefresh.WithLabelValues(result).Inc()
}
