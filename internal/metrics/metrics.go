// Package metrics exposes Prometheus counters for authentication and payments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the auth handlers and the checkout orchestrator report to.
type Recorder interface {
	RecordAuthAttempt(action, outcome string)
	RecordCheckoutSession(outcome string)
	RecordWebhookEvent(eventType, outcome string)
	RecordFulfillment(outcome string)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	authAttempts     *prometheus.CounterVec
	checkoutSessions *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	fulfillments     *prometheus.CounterVec
}

// NewCollector registers the counters on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctuary_auth_attempts_total",
			Help: "Register and login attempts by outcome.",
		}, []string{"action", "outcome"}),
		checkoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctuary_checkout_sessions_total",
			Help: "Checkout session creation attempts by outcome.",
		}, []string{"outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctuary_webhook_events_total",
			Help: "Payment webhook deliveries by event type and outcome.",
		}, []string{"type", "outcome"}),
		fulfillments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sanctuary_fulfillments_total",
			Help: "Completed checkout sessions, applied or skipped as duplicates.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.checkoutSessions,
		c.webhookEvents,
		c.fulfillments,
	)
	return c
}

func (c *Collector) RecordAuthAttempt(action, outcome string) {
	c.authAttempts.WithLabelValues(action, outcome).Inc()
}

func (c *Collector) RecordCheckoutSession(outcome string) {
	c.checkoutSessions.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordWebhookEvent(eventType, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (c *Collector) RecordFulfillment(outcome string) {
	c.fulfillments.WithLabelValues(outcome).Inc()
}

// Nop discards everything. It is the default when no collector is wired.
type Nop struct{}

func (Nop) RecordAuthAttempt(string, string)  {}
func (Nop) RecordCheckoutSession(string)      {}
func (Nop) RecordWebhookEvent(string, string) {}
func (Nop) RecordFulfillment(string)          {}

// Handler serves the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
