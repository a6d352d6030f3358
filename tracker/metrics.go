package tracker

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "poolmembers_tracker"

// error stages
const (
	stageSnapshot = "snapshot"
	stageWatch    = "watch"
	stageLookup   = "lookup"
	stageSink     = "sink"
)

type metrics struct {
	viewsPublished   *prometheus.CounterVec
	viewVersion      prometheus.Gauge
	viewHeight       prometheus.Gauge
	viewPools        prometheus.Gauge
	viewMembers      prometheus.Gauge
	joined           prometheus.Counter
	mergesDropped    prometheus.Counter
	errors           *prometheus.CounterVec
	snapshotDuration prometheus.Histogram
	lookupDuration   prometheus.Histogram
}

func newMetrics(namespace string) *metrics {
	return &metrics{
		viewsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "views_published_total",
			Help:      "Number of views published, by reason",
		}, []string{"reason"}),
		viewVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "view_version",
			Help:      "Version of the latest published view",
		}),
		viewHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "view_height",
			Help:      "Block height of the latest published view",
		}),
		viewPools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "view_pools",
			Help:      "Number of pools in the latest published view",
		}),
		viewMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "view_members",
			Help:      "Number of member records in the latest published view",
		}),
		joined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bonded_joins_total",
			Help:      "Number of Bonded events for accounts joining a pool",
		}),
		mergesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_dropped_total",
			Help:      "Number of merges dropped because no snapshot was loaded yet",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Number of errors, by stage",
		}, []string{"stage"}),
		snapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_duration_seconds",
			Help:      "Time taken to read the poolMembers map",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_duration_seconds",
			Help:      "Time taken by a batched member lookup",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *metrics) register(registerer prometheus.Registerer) error {
	return errors.Join(
		registerer.Register(m.viewsPublished),
		registerer.Register(m.viewVersion),
		registerer.Register(m.viewHeight),
		registerer.Register(m.viewPools),
		registerer.Register(m.viewMembers),
		registerer.Register(m.joined),
		registerer.Register(m.mergesDropped),
		registerer.Register(m.errors),
		registerer.Register(m.snapshotDuration),
		registerer.Register(m.lookupDuration),
	)
}

func (m *metrics) observePublication(pub Publication) {
	m.viewsPublished.WithLabelValues(string(pub.Reason)).Inc()
	m.viewVersion.Set(float64(pub.Version))
	m.viewHeight.Set(float64(pub.Height))
	m.viewPools.Set(float64(len(pub.View)))
	m.viewMembers.Set(float64(pub.View.MemberCount()))
}

// RegisterMetrics registers the tracker's collectors with registerer
func (s *Service) RegisterMetrics(registerer prometheus.Registerer) error {
	return s.metrics.register(registerer)
}
