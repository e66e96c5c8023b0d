package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking flows.
type BookingMetrics struct {
	bookingsTotal     *prometheus.CounterVec
	availabilityTotal *prometheus.CounterVec
	availabilityLag   *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citaplan",
			Subsystem: "booking",
			Name:      "appointments_total",
			Help:      "Total booking attempts by outcome",
		}, []string{"business_id", "outcome"}),
		availabilityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citaplan",
			Subsystem: "booking",
			Name:      "availability_checks_total",
			Help:      "Total natural-language availability checks by outcome",
		}, []string{"business_id", "outcome"}),
		availabilityLag: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "citaplan",
			Subsystem: "booking",
			Name:      "availability_check_seconds",
			Help:      "Latency of availability checks including LLM extraction",
			Buckets:   prometheus.DefBuckets,
		}, []string{"business_id"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.availabilityTotal, m.availabilityLag)
	return m
}

func (m *BookingMetrics) ObserveBooking(businessID, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(businessID, outcome).Inc()
}

func (m *BookingMetrics) ObserveAvailability(businessID, outcome string) {
	if m == nil {
		return
	}
	m.availabilityTotal.WithLabelValues(businessID, outcome).Inc()
}

func (m *BookingMetrics) ObserveAvailabilityLatency(businessID string, seconds float64) {
	if m == nil {
		return
	}
	m.availabilityLag.WithLabelValues(businessID).Observe(seconds)
}

// WebhookMetrics exposes counters/histograms for inbound channel webhooks.
type WebhookMetrics struct {
	inboundTotal   *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	m := &WebhookMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citaplan",
			Subsystem: "channels",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound WhatsApp webhooks",
		}, []string{"event_type", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "citaplan",
			Subsystem: "channels",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of WhatsApp webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.webhookLatency)
	return m
}

func (m *WebhookMetrics) ObserveInbound(eventType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType, status).Inc()
}

func (m *WebhookMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}
