package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilGuardMetricsIsSafe(t *testing.T) {
	var m *GuardMetrics
	m.RecordViolation("link")
	m.RecordBanIssued("short")
	m.RecordBanRejection()
	m.RecordRateLimited("posts:guest-create", "10m")
	m.RecordStoreFailure("ban_lookup", "closed")
	m.RecordOwnershipFailure("password")

	if NewGuardMetrics(nil) != nil {
		t.Fatal("NewGuardMetrics(nil) returned non-nil metrics")
	}
}

func TestGuardMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGuardMetrics(reg)

	m.RecordViolation("link")
	m.RecordViolation("link")
	m.RecordBanIssued("long")

	if got := testutil.ToFloat64(m.violations.WithLabelValues("link")); got != 2 {
		t.Fatalf("link violations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.bansIssued.WithLabelValues("long")); got != 1 {
		t.Fatalf("long bans = %v, want 1", got)
	}
}
