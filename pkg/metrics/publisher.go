package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
)

// Publisher records outbox relay activity.
type Publisher struct {
	batchDuration *prometheus.HistogramVec
	published     *prometheus.CounterVec
	failed        *prometheus.CounterVec
}

// NewPublisher registers the outbox publisher metrics on the provided registerer.
func NewPublisher(reg prometheus.Registerer) *Publisher {
	if reg == nil {
		return &Publisher{}
	}
	batchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_batch_duration_seconds",
		Help:    "Duration of outbox publish batches in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox events delivered to the broker.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_failed_total",
		Help: "Outbox publish failures, split into retryable and terminal.",
	}, []string{"event_type", "terminal"})
	reg.MustRegister(batchDuration, published, failed)
	return &Publisher{
		batchDuration: batchDuration,
		published:     published,
		failed:        failed,
	}
}

// ObserveBatch records how long one fetch-and-publish pass took.
func (p *Publisher) ObserveBatch(outcome string, duration time.Duration) {
	if p == nil || p.batchDuration == nil {
		return
	}
	p.batchDuration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

func (p *Publisher) IncPublished(eventType enums.OutboxEventType) {
	if p == nil || p.published == nil {
		return
	}
	p.published.WithLabelValues(normalizeLabel(string(eventType))).Inc()
}

func (p *Publisher) IncFailed(eventType enums.OutboxEventType, terminal bool) {
	if p == nil || p.failed == nil {
		return
	}
	label := "false"
	if terminal {
		label = "true"
	}
	p.failed.WithLabelValues(normalizeLabel(string(eventType)), label).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
