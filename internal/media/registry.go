package media

import (
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

// Registry is a concurrent peer_id -> *Relay map with a staleness sweep and
// a stats-logging sweep, grounded on SFUContext's ListLock pattern,
// generalized from one shared slice of PeerConnectionStates into a keyed
// registry of per-peer Relays.
type Registry struct {
	log logging.LeveledLogger

	mu     sync.RWMutex
	relays map[string]*Relay

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRegistry returns an empty Registry and starts its sweep goroutines.
// Callers must call Close to stop them.
func NewRegistry(log logging.LeveledLogger) *Registry {
	reg := &Registry{
		log:    log,
		relays: make(map[string]*Relay),
		stopCh: make(chan struct{}),
	}
	go reg.sweepLoop(30*time.Second, reg.sweepStale)
	go reg.sweepLoop(5*time.Second, reg.logStats)
	return reg
}

// Create builds a new Relay for peerID and registers it.
func (reg *Registry) Create(peerID string, cfg ICEConfig) (*Relay, error) {
	r, err := NewRelay(peerID, cfg, reg.log)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	reg.relays[peerID] = r
	reg.mu.Unlock()
	return r, nil
}

// Get returns the relay registered for peerID, if any.
func (reg *Registry) Get(peerID string) (*Relay, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.relays[peerID]
	return r, ok
}

// Remove unregisters and closes peerID's relay. Idempotent: removing an
// unknown peer is a no-op.
func (reg *Registry) Remove(peerID string) {
	reg.mu.Lock()
	r, ok := reg.relays[peerID]
	if ok {
		delete(reg.relays, peerID)
	}
	reg.mu.Unlock()

	if ok {
		if err := r.Close(); err != nil {
			reg.log.Warnf("media: peer %s: close relay: %v", peerID, err)
		}
	}
}

// Snapshot returns every currently registered relay keyed by peer id.
func (reg *Registry) Snapshot() map[string]*Relay {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make(map[string]*Relay, len(reg.relays))
	for k, v := range reg.relays {
		out[k] = v
	}
	return out
}

// Count returns the number of registered relays.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.relays)
}

func (reg *Registry) sweepLoop(interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-reg.stopCh:
			return
		}
	}
}

// sweepStale collects ids whose connection state is terminal under the
// registry's read lock only long enough to gather them, then removes and
// closes each outside the lock so adds are never blocked by the closes.
func (reg *Registry) sweepStale() {
	reg.mu.RLock()
	var stale []string
	for id, r := range reg.relays {
		switch r.ConnectionState() {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			stale = append(stale, id)
		}
	}
	reg.mu.RUnlock()

	for _, id := range stale {
		reg.log.Infof("media: sweeping stale relay for peer %s", id)
		reg.Remove(id)
	}
}

// logStats logs per-peer RTP stats. Observability only, no behavioral
// effect.
func (reg *Registry) logStats() {
	for _, r := range reg.Snapshot() {
		s := r.Stats()
		reg.log.Debugf("media: peer %s stats: recv=%d/%dB sent=%d/%dB",
			s.PeerID, s.PacketsReceived, s.BytesReceived, s.PacketsSent, s.BytesSent)
	}
}

// Close stops the sweep goroutines. Does not close individual relays; call
// Remove for each peer during shutdown if that is desired.
func (reg *Registry) Close() {
	reg.stopOnce.Do(func() { close(reg.stopCh) })
}
