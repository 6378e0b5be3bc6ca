package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// counterValue reads a counter from the default registry by name and labels.
func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestObserveOperation(t *testing.T) {
	labels := map[string]string{"operation": "test_op", "outcome": "conflict"}
	before := counterValue(t, "trust_ledger_operations_total", labels)
	ObserveOperation("test_op", "conflict", 5*time.Millisecond)
	ObserveOperation("test_op", "conflict", 5*time.Millisecond)
	if got := counterValue(t, "trust_ledger_operations_total", labels) - before; got != 2 {
		t.Errorf("delta = %v, want 2", got)
	}
}

func TestRecordRegistration(t *testing.T) {
	failed := map[string]string{"status": "failed"}
	before := counterValue(t, "trust_ledger_registrations_total", failed)
	RecordRegistration(false)
	if got := counterValue(t, "trust_ledger_registrations_total", failed) - before; got != 1 {
		t.Errorf("delta = %v, want 1", got)
	}
}

func TestObserveHTTPRequestBucketsStatus(t *testing.T) {
	labels := map[string]string{"method": "GET", "path": "/api/test", "status": "4xx"}
	before := counterValue(t, "trust_ledger_http_requests_total", labels)
	ObserveHTTPRequest("GET", "/api/test", 404, time.Millisecond)
	ObserveHTTPRequest("GET", "/api/test", 409, time.Millisecond)
	if got := counterValue(t, "trust_ledger_http_requests_total", labels) - before; got != 2 {
		t.Errorf("delta = %v, want 2", got)
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{200: "2xx", 201: "2xx", 304: "3xx", 400: "4xx", 429: "4xx", 500: "5xx", 503: "5xx"}
	for status, want := range tests {
		if got := statusLabel(status); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", status, got, want)
		}
	}
}
