// Package obs holds the Prometheus metrics for the credential and delivery
// subsystems.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TokensIssued counts issued QR tokens by kind (permanent, ephemeral).
	TokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carnet_tokens_issued_total",
			Help: "Total number of QR tokens issued.",
		},
		[]string{"kind"},
	)

	// TokensConsumed counts successful single-use login consumptions.
	TokensConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "carnet_tokens_consumed_total",
		Help: "Total number of login tokens consumed.",
	})

	// TokensRejected counts login payloads rejected for any reason.
	TokensRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "carnet_tokens_rejected_total",
		Help: "Total number of login payloads rejected.",
	})

	// DeliveryAttempts counts individual delivery attempts.
	DeliveryAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "carnet_delivery_attempts_total",
		Help: "Total number of delivery attempts.",
	})

	// DeliveryFailures counts failed delivery attempts.
	DeliveryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "carnet_delivery_failures_total",
		Help: "Total number of failed delivery attempts.",
	})

	// DeliveryDropped counts jobs discarded after exhausting retries.
	DeliveryDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "carnet_delivery_dropped_total",
		Help: "Total number of delivery jobs dropped after retries.",
	})

	// QueueDepth tracks outstanding jobs in the delivery queue.
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "carnet_delivery_queue_depth",
		Help: "Number of jobs waiting in the delivery queue.",
	})
)

// Init registers all metrics with the default registry. Call once at boot.
func Init() {
	prometheus.MustRegister(
		TokensIssued,
		TokensConsumed,
		TokensRejected,
		DeliveryAttempts,
		DeliveryFailures,
		DeliveryDropped,
		QueueDepth,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
