// Package metrics exposes prometheus counters for guest guard decisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GuardMetrics is nil-safe: a nil *GuardMetrics records nothing.
type GuardMetrics struct {
	violations     *prometheus.CounterVec
	bansIssued     *prometheus.CounterVec
	banRejections  prometheus.Counter
	rateLimited    *prometheus.CounterVec
	storeFailures  *prometheus.CounterVec
	ownershipFails *prometheus.CounterVec
}

func NewGuardMetrics(reg prometheus.Registerer) *GuardMetrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)

	return &GuardMetrics{
		violations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "townsquare_guest_violations_total",
			Help: "Guest violations recorded, by category",
		}, []string{"category"}),
		bansIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "townsquare_guest_bans_issued_total",
			Help: "Temporary guest bans issued, by escalation tier",
		}, []string{"tier"}),
		banRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "townsquare_guest_banned_rejections_total",
			Help: "Guest writes rejected because of an active ban",
		}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "townsquare_guest_rate_limited_total",
			Help: "Guest writes rejected by a rate-limit window, by action and window",
		}, []string{"action", "window"}),
		storeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "townsquare_guard_store_failures_total",
			Help: "Guard store errors, by operation and the failure mode applied",
		}, []string{"operation", "mode"}),
		ownershipFails: f.NewCounterVec(prometheus.CounterOpts{
			Name: "townsquare_guest_ownership_failures_total",
			Help: "Rejected guest ownership checks, by reason",
		}, []string{"reason"}),
	}
}

func (m *GuardMetrics) RecordViolation(category string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(category).Inc()
}

func (m *GuardMetrics) RecordBanIssued(tier string) {
	if m == nil {
		return
	}
	m.bansIssued.WithLabelValues(tier).Inc()
}

func (m *GuardMetrics) RecordBanRejection() {
	if m == nil {
		return
	}
	m.banRejections.Inc()
}

func (m *GuardMetrics) RecordRateLimited(action, window string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(action, window).Inc()
}

func (m *GuardMetrics) RecordStoreFailure(operation, mode string) {
	if m == nil {
		return
	}
	m.storeFailures.WithLabelValues(operation, mode).Inc()
}

func (m *GuardMetrics) RecordOwnershipFailure(reason string) {
	if m == nil {
		return
	}
	m.ownershipFails.WithLabelValues(reason).Inc()
}

// Handler serves the given gatherer in the prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
