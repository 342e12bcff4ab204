package push

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer receives dispatch measurements. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	ObserveDelivery(channel Channel, status Status, took time.Duration)
	ObserveDispatch(result DispatchResult, took time.Duration)
	ObservePrune(pruned int, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveDelivery(Channel, Status, time.Duration) {}
func (noopObserver) ObserveDispatch(DispatchResult, time.Duration) {}
func (noopObserver) ObservePrune(int, error)                       {}

// Metrics is a Prometheus backed Observer.
type Metrics struct {
	DeliveriesTotal         *prometheus.CounterVec
	DeliveryDurationSecs    *prometheus.HistogramVec
	DispatchesTotal         prometheus.Counter
	DispatchDurationSecs    prometheus.Histogram
	DispatchTargetedTotal   prometheus.Counter
	PrunedSubscriptionTotal prometheus.Counter
	PruneErrorsTotal        prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_deliveries_total",
			Help:      "Total number of delivery attempts by channel and outcome",
		}, []string{"channel", "outcome"}),
		DeliveryDurationSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "push_delivery_duration_seconds",
			Help:      "Duration of single delivery attempts in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
		DispatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_dispatches_total",
			Help:      "Total number of dispatches that reached the delivery stage",
		}),
		DispatchDurationSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "push_dispatch_duration_seconds",
			Help:      "Duration of whole dispatches in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 15, 30},
		}),
		DispatchTargetedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_dispatch_targeted_total",
			Help:      "Total number of subscriptions targeted by dispatches",
		}),
		PrunedSubscriptionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_pruned_subscriptions_total",
			Help:      "Total number of subscriptions pruned as dead",
		}),
		PruneErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_prune_errors_total",
			Help:      "Total number of failed prune batches",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.DeliveriesTotal,
			m.DeliveryDurationSecs,
			m.DispatchesTotal,
			m.DispatchDurationSecs,
			m.DispatchTargetedTotal,
			m.PrunedSubscriptionTotal,
			m.PruneErrorsTotal,
		)
	}
	return m
}

func (m *Metrics) ObserveDelivery(channel Channel, status Status, took time.Duration) {
	m.DeliveriesTotal.WithLabelValues(string(channel), status.String()).Inc()
	m.DeliveryDurationSecs.WithLabelValues(string(channel)).Observe(took.Seconds())
}

func (m *Metrics) ObserveDispatch(result DispatchResult, took time.Duration) {
	m.DispatchesTotal.Inc()
	m.DispatchTargetedTotal.Add(float64(result.TotalTargeted))
	m.DispatchDurationSecs.Observe(took.Seconds())
}

func (m *Metrics) ObservePrune(pruned int, err error) {
	if err != nil {
		m.PruneErrorsTotal.Inc()
		return
	}
	m.PrunedSubscriptionTotal.Add(float64(pruned))
}
