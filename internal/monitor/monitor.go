// Package monitor implements ConnectionMonitor: liveness tracking, stale-peer
// cleanup, and the metrics a dashboard reads. Grounded on the internal/metrics
// package's counter/snapshot idiom (a mutex-guarded struct with Record*
// mutators and a Get snapshot), generalized from process-wide totals into a
// per-peer ConnectionStats table, per
// original_source/src/monitoring/dashboard.rs's ConnectionMonitor.
package monitor

import (
	"sync"
	"time"

	"sfu-conference/internal/state"
)

// Stats is one peer's liveness record.
type Stats struct {
	PeerID              string
	ConnectionState     state.State
	ICEConnectionState  string
	ConnectedAt         *time.Time
	LastActivity        time.Time
	ICECandidatesReceived uint32
	ICECandidatesSent     uint32
	DataChannelsOpen      uint32
	ErrorCount            uint32
}

// Metrics is the aggregate view the /monitoring/metrics endpoint serves.
type Metrics struct {
	TotalConnections  int                 `json:"total_connections"`
	ActiveConnections int                 `json:"active_connections"`
	FailedConnections int                 `json:"failed_connections"`
	SuccessRate       float64             `json:"success_rate"`
	StateDistribution map[state.State]int `json:"state_distribution"`
}

// AlertSeverity grades an Alert.
type AlertSeverity string

const (
	SeverityInfo    AlertSeverity = "Info"
	SeverityWarning AlertSeverity = "Warning"
	SeverityError   AlertSeverity = "Error"
)

// Alert is one dashboard-visible condition check_for_alerts surfaced.
type Alert struct {
	Timestamp time.Time
	AlertType string
	Message   string
	Severity  AlertSeverity
}

// Monitor tracks per-peer ConnectionStats and derives Metrics/Alerts from
// them. It does not own the ConnectionStateMachine; Register/UpdateState
// calls are expected to mirror transitions already applied there.
type Monitor struct {
	staleTimeout time.Duration

	mu    sync.RWMutex
	peers map[string]*Stats
}

// New returns a Monitor with the given stale-connection timeout (60s is the
// conventional dashboard default).
func New(staleTimeout time.Duration) *Monitor {
	if staleTimeout <= 0 {
		staleTimeout = 60 * time.Second
	}
	return &Monitor{staleTimeout: staleTimeout, peers: make(map[string]*Stats)}
}

// Register begins tracking peerID in state.New.
func (m *Monitor) Register(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[peerID] = &Stats{
		PeerID:          peerID,
		ConnectionState: state.New,
		LastActivity:    time.Now(),
	}
}

// UpdateState records peerID's latest connection state and bumps
// last-activity. Marks ConnectedAt the first time the state becomes
// Connected.
func (m *Monitor) UpdateState(peerID string, s state.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.peers[peerID]
	if !ok {
		return
	}
	stats.ConnectionState = s
	stats.LastActivity = time.Now()
	if s == state.Connected && stats.ConnectedAt == nil {
		now := time.Now()
		stats.ConnectedAt = &now
	}
	if s == state.Failed {
		stats.ErrorCount++
	}
}

// RecordICECandidate bumps the received or sent candidate counter for
// peerID.
func (m *Monitor) RecordICECandidate(peerID string, received bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.peers[peerID]
	if !ok {
		return
	}
	if received {
		stats.ICECandidatesReceived++
	} else {
		stats.ICECandidatesSent++
	}
	stats.LastActivity = time.Now()
}

// Unregister stops tracking peerID, called once its session is torn down.
func (m *Monitor) Unregister(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, peerID)
}

// ConnectionStats returns a snapshot of every tracked peer's stats.
func (m *Monitor) ConnectionStats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Stats, 0, len(m.peers))
	for _, s := range m.peers {
		out = append(out, *s)
	}
	return out
}

// GetMetrics aggregates the current peer table into a Metrics snapshot.
func (m *Monitor) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dist := make(map[state.State]int)
	active, failed := 0, 0
	for _, s := range m.peers {
		dist[s.ConnectionState]++
		switch s.ConnectionState {
		case state.Connected:
			active++
		case state.Failed:
			failed++
		}
	}

	total := len(m.peers)
	successRate := 0.0
	if total > 0 {
		successRate = float64(active) / float64(total) * 100
	}

	return Metrics{
		TotalConnections:  total,
		ActiveConnections: active,
		FailedConnections: failed,
		SuccessRate:       successRate,
		StateDistribution: dist,
	}
}

// CheckForAlerts evaluates the current metrics against thresholds and
// returns the resulting alerts. A failure rate above 20% with at least 5
// tracked connections raises a Warning.
func (m *Monitor) CheckForAlerts() []Alert {
	metrics := m.GetMetrics()
	var alerts []Alert

	if metrics.TotalConnections >= 5 {
		failureRate := float64(metrics.FailedConnections) / float64(metrics.TotalConnections) * 100
		if failureRate > 20 {
			alerts = append(alerts, Alert{
				Timestamp: time.Now(),
				AlertType: "high_failure_rate",
				Message:   "connection failure rate exceeds 20%",
				Severity:  SeverityWarning,
			})
		}
	}

	return alerts
}

// SweepStale removes any peer whose last activity is older than the
// configured stale timeout. Intended to run on its own ticker, mirroring
// the run_connection_monitor loop in
// original_source/src/monitoring/dashboard.rs.
func (m *Monitor) SweepStale() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, s := range m.peers {
		if now.Sub(s.LastActivity) > m.staleTimeout {
			delete(m.peers, id)
		}
	}
}
