// Package metrics exposes the Prometheus instrumentation for the booking
// core: PMS call volume/latency, cache hit/miss rates, and booking outcomes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// CoreMetrics bundles every counter/histogram the core's request layer and
// background worker record against.
type CoreMetrics struct {
	pmsCallTotal   *prometheus.CounterVec
	pmsCallLatency *prometheus.HistogramVec
	cacheTotal     *prometheus.CounterVec
	bookingTotal   *prometheus.CounterVec
	scanSpanTotal  *prometheus.HistogramVec
}

// NewCoreMetrics registers the core's metrics against reg. A nil reg
// registers against prometheus.DefaultRegisterer.
func NewCoreMetrics(reg prometheus.Registerer) *CoreMetrics {
	m := &CoreMetrics{
		pmsCallTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "pms",
			Name:      "calls_total",
			Help:      "Total calls made to the upstream PMS, by operation and outcome",
		}, []string{"operation", "status"}),
		pmsCallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicvoice",
			Subsystem: "pms",
			Name:      "call_latency_seconds",
			Help:      "Latency of upstream PMS calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total cache lookups, by cache kind and hit/miss",
		}, []string{"kind", "result"}),
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicvoice",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Total booking attempts, by outcome",
		}, []string{"outcome"}),
		scanSpanTotal: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicvoice",
			Subsystem: "availability",
			Name:      "scan_days",
			Help:      "Number of calendar days a find-next-available scan had to span",
			Buckets:   []float64{1, 2, 3, 5, 7, 10, 14, 21},
		}, []string{"found"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.pmsCallTotal, m.pmsCallLatency, m.cacheTotal, m.bookingTotal, m.scanSpanTotal)
	return m
}

// ObservePMSCall records one upstream PMS call's outcome and latency.
func (m *CoreMetrics) ObservePMSCall(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.pmsCallTotal.WithLabelValues(operation, status).Inc()
	m.pmsCallLatency.WithLabelValues(operation).Observe(seconds)
}

// ObserveCacheLookup records a cache hit or miss for one cache kind.
func (m *CoreMetrics) ObserveCacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheTotal.WithLabelValues(kind, result).Inc()
}

// ObserveBookingAttempt records a booking attempt's outcome, e.g.
// "booked", "slot_taken", "pms_error".
func (m *CoreMetrics) ObserveBookingAttempt(outcome string) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(outcome).Inc()
}

// ObserveScanSpan records how many calendar days a find-next-available scan
// covered before returning, and whether it found a slot.
func (m *CoreMetrics) ObserveScanSpan(days int, found bool) {
	if m == nil {
		return
	}
	label := "false"
	if found {
		label = "true"
	}
	m.scanSpanTotal.WithLabelValues(label).Observe(float64(days))
}
