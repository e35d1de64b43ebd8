package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shelter_alerts"

// Metrics holds the Prometheus collectors for feed polling, the alert store and
// the snapshot stream.
type Metrics struct {
	FeedPolls        *prometheus.CounterVec   // labels: feed={live,history}, outcome={success,error}
	FeedPollDuration *prometheus.HistogramVec // labels: feed
	FeedFiltered     *prometheus.CounterVec   // labels: feed, reason={test_marker,drill,stale,event_ended,bad_date}

	ActiveAlerts   prometheus.Gauge
	RecordsCreated *prometheus.CounterVec // labels: source={live,history,synthetic}
	RecordsRemoved prometheus.Counter
	NoticeUpdates  *prometheus.CounterVec // labels: source, result={applied,rejected}

	StreamSubscribers prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with the default registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewMetricsForTesting creates unregistered collectors so repeated construction
// in tests does not panic.
func NewMetricsForTesting() *Metrics {
	return newMetrics(nil)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FeedPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_polls_total",
			Help:      "Upstream feed polls by feed and outcome.",
		}, []string{"feed", "outcome"}),
		FeedPollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_poll_duration_seconds",
			Help:      "Upstream fetch and parse duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"feed"}),
		FeedFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_filtered_total",
			Help:      "Feed entries discarded before reaching the store.",
		}, []string{"feed", "reason"}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Alert records currently held by the store, injected ones included.",
		}),
		RecordsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_created_total",
			Help:      "Alert records created by source.",
		}, []string{"source"}),
		RecordsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_removed_total",
			Help:      "Alert records removed after the grace window.",
		}),
		NoticeUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notice_updates_total",
			Help:      "Early-warning notice writes by source and result.",
		}, []string{"source", "result"}),
		StreamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers",
			Help:      "Open snapshot stream connections.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FeedPolls,
			m.FeedPollDuration,
			m.FeedFiltered,
			m.ActiveAlerts,
			m.RecordsCreated,
			m.RecordsRemoved,
			m.NoticeUpdates,
			m.StreamSubscribers,
		)
	}

	return m
}
