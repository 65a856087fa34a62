package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "auth"

// Metrics are the dispatcher's Prometheus collectors.
type Metrics struct {
	// SentTotal counts delivery attempts by result ("ok" or "error").
	SentTotal *prometheus.CounterVec
	// DroppedTotal counts notifications rejected because the owning worker
	// queue was full or the dispatcher was shut down.
	DroppedTotal prometheus.Counter
	// QueueDepth tracks pending notifications per worker channel.
	QueueDepth *prometheus.GaugeVec
	// DeliveryDuration measures a single mailer call by result.
	DeliveryDuration *prometheus.HistogramVec
}

// NewMetrics builds the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SentTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_sent_total",
			Help:      "Total number of notification delivery attempts, by result.",
		}, []string{"result"}),
		DroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_dropped_total",
			Help:      "Total number of notifications dropped before delivery.",
		}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_queue_depth",
			Help:      "Current number of notifications pending in each dispatcher worker channel.",
		}, []string{"worker_id"}),
		DeliveryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "notification_delivery_duration_seconds",
			Help:      "Duration of a single notification delivery.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}
}
