package observability

import (
	"context"
	"errors"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Save results reported by the saves counter.
const (
	SaveOK    = "ok"
	SaveQuota = "quota_exceeded"
	SaveError = "error"
)

// Metrics holds the Prometheus collectors fed by lifecycle hooks.
type Metrics struct {
	Appends    *prometheus.CounterVec
	Jumps      prometheus.Counter
	Undos      *prometheus.CounterVec
	Pruned     prometheus.Counter
	Saves      *prometheus.CounterVec
	SavedNodes prometheus.Histogram
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		Appends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_nodes_appended_total",
				Help: "Total number of history nodes appended",
			},
			[]string{"change_kind"},
		),
		Jumps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbor_jumps_total",
			Help: "Total number of jumps to a history node",
		}),
		Undos: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_undos_total",
				Help: "Total number of resolved undos",
			},
			[]string{"domain"},
		),
		Pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbor_nodes_pruned_total",
			Help: "Total number of history nodes removed by pruning",
		}),
		Saves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_saves_total",
				Help: "Total number of save attempts",
			},
			[]string{"result"},
		),
		SavedNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbor_saved_history_nodes",
			Help:    "Number of history nodes per saved document",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Appends, m.Jumps, m.Undos, m.Pruned, m.Saves, m.SavedNodes} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnAppend: func(_ context.Context, e *domain.NodeEvent) {
			m.Appends.WithLabelValues(string(e.ChangeKind)).Inc()
		},
		OnJump: func(_ context.Context, _ *domain.NodeEvent) {
			m.Jumps.Inc()
		},
		OnUndo: func(_ context.Context, e *domain.UndoEvent) {
			m.Undos.WithLabelValues(string(e.Domain)).Inc()
		},
		OnPrune: func(_ context.Context, e *domain.PruneEvent) {
			m.Pruned.Add(float64(e.Removed))
		},
		OnSave: func(_ context.Context, e *domain.SaveEvent) {
			switch {
			case e.Err == nil:
				m.Saves.WithLabelValues(SaveOK).Inc()
				m.SavedNodes.Observe(float64(e.Nodes))
			case errors.Is(e.Err, domain.ErrStorageQuotaExceeded):
				m.Saves.WithLabelValues(SaveQuota).Inc()
			default:
				m.Saves.WithLabelValues(SaveError).Inc()
			}
		},
	}
}
