package monitor

import (
	"fmt"
	"testing"
	"time"

	"sfu-conference/internal/state"
)

func TestRegisterAndUpdateState(t *testing.T) {
	m := New(time.Minute)
	m.Register("peer-1")
	m.UpdateState("peer-1", state.Connected)

	stats := m.ConnectionStats()
	if len(stats) != 1 {
		t.Fatalf("ConnectionStats() len = %d; want 1", len(stats))
	}
	if stats[0].ConnectionState != state.Connected {
		t.Fatalf("ConnectionState = %v; want Connected", stats[0].ConnectionState)
	}
	if stats[0].ConnectedAt == nil {
		t.Fatal("ConnectedAt should be set once a peer reaches Connected")
	}
}

func TestGetMetricsComputesSuccessRate(t *testing.T) {
	m := New(time.Minute)
	m.Register("peer-1")
	m.UpdateState("peer-1", state.Connected)
	m.Register("peer-2")
	m.UpdateState("peer-2", state.Failed)

	metrics := m.GetMetrics()
	if metrics.TotalConnections != 2 || metrics.ActiveConnections != 1 || metrics.FailedConnections != 1 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
	if metrics.SuccessRate != 50 {
		t.Fatalf("SuccessRate = %v; want 50", metrics.SuccessRate)
	}
}

func TestCheckForAlertsRequiresMinimumSampleSize(t *testing.T) {
	m := New(time.Minute)
	m.Register("peer-1")
	m.UpdateState("peer-1", state.Failed)

	if alerts := m.CheckForAlerts(); len(alerts) != 0 {
		t.Fatalf("expected no alert below the minimum sample size, got %+v", alerts)
	}

	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("peer-extra-%d", i)
		m.Register(id)
		m.UpdateState(id, state.Failed)
	}

	alerts := m.CheckForAlerts()
	if len(alerts) != 1 || alerts[0].Severity != SeverityWarning {
		t.Fatalf("expected one Warning alert once failure rate exceeds 20%%, got %+v", alerts)
	}
}

func TestSweepStaleRemovesInactivePeers(t *testing.T) {
	m := New(time.Millisecond)
	m.Register("peer-1")
	time.Sleep(5 * time.Millisecond)
	m.SweepStale()

	if stats := m.ConnectionStats(); len(stats) != 0 {
		t.Fatalf("expected stale peer to be swept, got %+v", stats)
	}
}

func TestUnregisterRemovesPeer(t *testing.T) {
	m := New(time.Minute)
	m.Register("peer-1")
	m.Unregister("peer-1")

	if stats := m.ConnectionStats(); len(stats) != 0 {
		t.Fatalf("expected no stats after Unregister, got %+v", stats)
	}
}
