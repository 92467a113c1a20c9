// Package metrics instruments a participant's chDAG with prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "alephdag"

// Head decision rules, used as the "rule" label.
const (
	RuleTiming = "timing"
	RuleCoin   = "coin"
)

// Metrics groups the collectors of one participant.
type Metrics struct {
	UnitsCreated     prometheus.Counter
	UnitsMerged      prometheus.Counter
	ByzantineReports prometheus.Counter
	QuorumWait       prometheus.Histogram
	QuorumWaiting    prometheus.Gauge
	HeadsDecided     *prometheus.CounterVec
	Round            prometheus.Gauge
}

// New creates the collectors for participant and registers them with registerer.
func New(participant string, registerer prometheus.Registerer) (*Metrics, error) {
	labels := prometheus.Labels{"participant": participant}
	m := &Metrics{
		UnitsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "units_created_total",
			Help:        "number of units created by this participant",
			ConstLabels: labels,
		}),
		UnitsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "units_merged_total",
			Help:        "number of peer units merged by synchronization",
			ConstLabels: labels,
		}),
		ByzantineReports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "byzantine_reports_total",
			Help:        "number of units reported as provably inconsistent",
			ConstLabels: labels,
		}),
		QuorumWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "quorum_wait_seconds",
			Help:        "time spent waiting for a quorum of parents",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		QuorumWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "quorum_waiting",
			Help:        "number of unit creations blocked on quorum",
			ConstLabels: labels,
		}),
		HeadsDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "heads_decided_total",
			Help:        "number of round heads decided, by rule",
			ConstLabels: labels,
		}, []string{"rule"}),
		Round: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "round",
			Help:        "round of the next unit this participant creates",
			ConstLabels: labels,
		}),
	}

	collectors := []prometheus.Collector{
		m.UnitsCreated, m.UnitsMerged, m.ByzantineReports, m.QuorumWait,
		m.QuorumWaiting, m.HeadsDecided, m.Round,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewUnregistered returns collectors that are not exported anywhere.
func NewUnregistered(participant string) *Metrics {
	m, err := New(participant, prometheus.NewRegistry())
	if err != nil {
		// a fresh registry cannot hold duplicates
		panic(err)
	}
	return m
}
