package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StoreMetrics records the storefront's operational counters.
type StoreMetrics struct {
	registry *prometheus.Registry

	sessionsCreated  prometheus.Counter
	ordersConfirmed  prometheus.Counter
	receiptEmails    *prometheus.CounterVec
	bestEffortErrors *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
}

// NewStoreMetrics registers the storefront metrics on a fresh registry.
func NewStoreMetrics() *StoreMetrics {
	registry := prometheus.NewRegistry()

	sessionsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_sessions_created_total",
		Help: "Hosted checkout sessions successfully created.",
	})
	ordersConfirmed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_confirmed_total",
		Help: "Paid orders persisted after verification.",
	})
	receiptEmails := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_emails_total",
		Help: "Receipt email attempts by outcome.",
	}, []string{"outcome"})
	bestEffortErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "best_effort_failures_total",
		Help: "Non-fatal side-effect failures during order verification.",
	}, []string{"operation"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_webhook_events_total",
		Help: "Payment gateway webhook events by type.",
	}, []string{"type"})

	registry.MustRegister(sessionsCreated, ordersConfirmed, receiptEmails, bestEffortErrors, webhookEvents)

	return &StoreMetrics{
		registry:         registry,
		sessionsCreated:  sessionsCreated,
		ordersConfirmed:  ordersConfirmed,
		receiptEmails:    receiptEmails,
		bestEffortErrors: bestEffortErrors,
		webhookEvents:    webhookEvents,
	}
}

// Handler exposes the registry in Prometheus text format.
func (m *StoreMetrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncSessionCreated counts a successfully opened checkout session.
func (m *StoreMetrics) IncSessionCreated() {
	if m == nil || m.sessionsCreated == nil {
		return
	}
	m.sessionsCreated.Inc()
}

// IncOrderConfirmed counts a paid order persisted for the first time.
func (m *StoreMetrics) IncOrderConfirmed() {
	if m == nil || m.ordersConfirmed == nil {
		return
	}
	m.ordersConfirmed.Inc()
}

// IncReceiptEmail counts a receipt send attempt by outcome (sent/failed/skipped).
func (m *StoreMetrics) IncReceiptEmail(outcome string) {
	if m == nil || m.receiptEmails == nil {
		return
	}
	m.receiptEmails.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncBestEffortFailure counts a non-fatal verification side effect that failed.
func (m *StoreMetrics) IncBestEffortFailure(operation string) {
	if m == nil || m.bestEffortErrors == nil {
		return
	}
	m.bestEffortErrors.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncWebhookEvent counts a received gateway webhook event by type.
func (m *StoreMetrics) IncWebhookEvent(eventType string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
