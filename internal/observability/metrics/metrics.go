package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReservationMetrics exposes counters/histograms for slot and refund flows.
type ReservationMetrics struct {
	slotsCreated    prometheus.Counter
	holdsTotal      *prometheus.CounterVec
	decisionsTotal  *prometheus.CounterVec
	cancelsTotal    *prometheus.CounterVec
	refundLatency   *prometheus.HistogramVec
	webhookTotal    *prometheus.CounterVec
	orphanedBooking prometheus.Counter
}

func NewReservationMetrics(reg prometheus.Registerer) *ReservationMetrics {
	m := &ReservationMetrics{
		slotsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "slots",
			Name:      "created_total",
			Help:      "Total slots published by doctors",
		}),
		holdsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "slots",
			Name:      "hold_total",
			Help:      "Hold attempts by outcome",
		}, []string{"outcome"}),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "slots",
			Name:      "decision_total",
			Help:      "Doctor approve/decline decisions",
		}, []string{"decision"}),
		cancelsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "cancellation",
			Name:      "total",
			Help:      "Patient cancellations by refund outcome",
		}, []string{"refund"}),
		refundLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "slotbook",
			Subsystem: "cancellation",
			Name:      "refund_latency_seconds",
			Help:      "Latency of refund gateway round trips",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "payments",
			Name:      "webhook_total",
			Help:      "Stripe webhooks by event type and status",
		}, []string{"event_type", "status"}),
		orphanedBooking: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "payments",
			Name:      "orphaned_payment_total",
			Help:      "Payments that completed after the slot was no longer held by the payer",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.slotsCreated, m.holdsTotal, m.decisionsTotal, m.cancelsTotal,
		m.refundLatency, m.webhookTotal, m.orphanedBooking)
	return m
}

func (m *ReservationMetrics) ObserveSlotsCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.slotsCreated.Add(float64(n))
}

func (m *ReservationMetrics) ObserveHold(outcome string) {
	if m == nil {
		return
	}
	m.holdsTotal.WithLabelValues(outcome).Inc()
}

func (m *ReservationMetrics) ObserveDecision(decision string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(decision).Inc()
}

func (m *ReservationMetrics) ObserveCancellation(refund string) {
	if m == nil {
		return
	}
	m.cancelsTotal.WithLabelValues(refund).Inc()
}

func (m *ReservationMetrics) ObserveRefundLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.refundLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *ReservationMetrics) ObserveWebhook(eventType, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(eventType, status).Inc()
}

func (m *ReservationMetrics) ObserveOrphanedPayment() {
	if m == nil {
		return
	}
	m.orphanedBooking.Inc()
}
