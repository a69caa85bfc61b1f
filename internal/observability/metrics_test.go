package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !labelsMatch(m, labels) {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	for k, v := range want {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestObserveCycle_IncrementsByResult(t *testing.T) {
	before := gatherValue(t, "possync_sync_cycles_total", map[string]string{"result": "synced"})
	ObserveCycle("synced")
	ObserveCycle("synced")
	after := gatherValue(t, "possync_sync_cycles_total", map[string]string{"result": "synced"})
	if after-before != 2 {
		t.Fatalf("expected +2 synced cycles, got %v -> %v", before, after)
	}
}

func TestSetOutboxBacklog_SetsGauges(t *testing.T) {
	SetOutboxBacklog(7, 2)
	if v := gatherValue(t, "possync_outbox_pending", nil); v != 7 {
		t.Fatalf("pending gauge = %v", v)
	}
	if v := gatherValue(t, "possync_outbox_stuck", nil); v != 2 {
		t.Fatalf("stuck gauge = %v", v)
	}
}

func TestObserveApplied_IgnoresZero(t *testing.T) {
	before := gatherValue(t, "possync_changes_applied_total", map[string]string{"outcome": ApplySkipped})
	ObserveApplied(ApplySkipped, 0)
	ObserveApplied(ApplySkipped, 3)
	after := gatherValue(t, "possync_changes_applied_total", map[string]string{"outcome": ApplySkipped})
	if after-before != 3 {
		t.Fatalf("expected +3 skipped, got %v -> %v", before, after)
	}
}

func TestObserveAppend_TracksLatest(t *testing.T) {
	before := gatherValue(t, "possync_relay_changes_appended_total", nil)
	ObserveAppend(4, 104)
	if v := gatherValue(t, "possync_relay_latest_version", nil); v != 104 {
		t.Fatalf("latest version gauge = %v", v)
	}
	if v := gatherValue(t, "possync_relay_changes_appended_total", nil); v-before != 4 {
		t.Fatalf("appended counter delta = %v", v-before)
	}
	ObserveReplay()
	if v := gatherValue(t, "possync_relay_push_replays_total", nil); v < 1 {
		t.Fatalf("replay counter = %v", v)
	}
}
