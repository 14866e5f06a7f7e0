package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string)
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

func TestRecordTransition_CountsPerEdge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTransition("draft", "ready")
	c.RecordTransition("draft", "ready")
	c.RecordTransition("ready", "published")

	m := findMetric(t, reg, "newsdesk_article_transitions_total", map[string]string{"from": "draft", "to": "ready"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("draft->ready = %v, want 2", v)
	}
	m = findMetric(t, reg, "newsdesk_article_transitions_total", map[string]string{"from": "ready", "to": "published"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("ready->published = %v, want 1", v)
	}
}

func TestRecordAuthorizationDenied_CountsPerCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthorizationDenied("FORBIDDEN")
	c.RecordAuthorizationDenied("INVALID_TRANSITION")
	c.RecordAuthorizationDenied("FORBIDDEN")

	m := findMetric(t, reg, "newsdesk_authorization_denied_total", map[string]string{"code": "FORBIDDEN"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("FORBIDDEN = %v, want 2", v)
	}
}

func TestRecordStoreErrorAndLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStoreError("update_if")
	c.RecordStoreLatency("update_if", 15*time.Millisecond)

	m := findMetric(t, reg, "newsdesk_store_errors_total", map[string]string{"operation": "update_if"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("store errors = %v, want 1", v)
	}
	m = findMetric(t, reg, "newsdesk_store_latency_seconds", map[string]string{"operation": "update_if"})
	if n := m.GetHistogram().GetSampleCount(); n != 1 {
		t.Errorf("latency sample count = %d, want 1", n)
	}
}

func TestRecordHTTPStatus_LabelsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(409)

	m := findMetric(t, reg, "newsdesk_http_status_total", map[string]string{"status_code": "409"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("409 count = %v, want 1", v)
	}
}

func TestRecordSessionsPurged(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionsPurged(3)
	c.RecordSessionsPurged(0)

	m := findMetric(t, reg, "newsdesk_sessions_purged_total", nil)
	if v := m.GetCounter().GetValue(); v != 3 {
		t.Errorf("sessions purged = %v, want 3", v)
	}
}

// TestNewCollector_DuplicateRegistrationPanics は同一レジストリへの二重登録がpanicすることを検証する。
func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	_ = NewCollector(reg)
}
