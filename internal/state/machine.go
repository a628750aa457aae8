// Package state implements the per-peer connection state machine: New ->
// Joining -> WaitingForOffer -> OfferReceived -> AnswerCreated -> Connected,
// with Failed/Closed reachable from any non-terminal state. Grounded on
// original_source/src/signaling/connection_state.rs's ConnectionStateManager,
// reworked from a tokio Mutex<HashMap> + broadcast channel into a RWMutex map
// plus a slice of subscriber channels, matching the registry idiom used in
// internal/metrics.
package state

import (
	"sync"
	"time"
)

// State is one node of the connection state machine.
type State string

const (
	New             State = "New"
	Joining         State = "Joining"
	WaitingForOffer State = "WaitingForOffer"
	OfferReceived   State = "OfferReceived"
	AnswerCreated   State = "AnswerCreated"
	Connected       State = "Connected"
	Failed          State = "Failed"
	Closed          State = "Closed"
)

// Transition records one accepted state change for the transition log.
type Transition struct {
	Timestamp time.Time
	PeerID    string
	From      State // zero value means "no prior state"
	To        State
}

// Machine tracks the current state of every peer and an append-only
// transition log per peer, and fans out accepted transitions to subscribers.
type Machine struct {
	mu          sync.RWMutex
	states      map[string]State
	log         map[string][]Transition
	subscribers []chan Transition
}

// NewMachine returns an empty Machine. (Named NewMachine rather than New
// since the New connection state constant already claims that identifier.)
func NewMachine() *Machine {
	return &Machine{
		states: make(map[string]State),
		log:    make(map[string][]Transition),
	}
}

// validNext mirrors the match arms of ConnectionStateManager::transition: the
// None/Some(current) pairing that is allowed to advance to new_state.
func validNext(current State, hasCurrent bool, next State) bool {
	switch {
	case !hasCurrent && next == New:
		return true
	case hasCurrent && current == New && next == Joining:
		return true
	case hasCurrent && current == Joining && next == WaitingForOffer:
		return true
	case hasCurrent && current == WaitingForOffer && next == OfferReceived:
		return true
	case hasCurrent && current == OfferReceived && next == AnswerCreated:
		return true
	case hasCurrent && current == AnswerCreated && next == Connected:
		return true
	case hasCurrent && current != Failed && current != Closed && (next == Failed || next == Closed):
		return true
	default:
		return false
	}
}

// Transition attempts to move peerID to next. Returns false without mutating
// anything if the transition is not valid from the peer's current state.
func (m *Machine) Transition(peerID string, next State) bool {
	m.mu.Lock()
	current, hasCurrent := m.states[peerID]
	if !validNext(current, hasCurrent, next) {
		m.mu.Unlock()
		return false
	}

	m.states[peerID] = next
	t := Transition{Timestamp: time.Now().UTC(), PeerID: peerID, To: next}
	if hasCurrent {
		t.From = current
	}
	m.log[peerID] = append(m.log[peerID], t)
	subs := append([]chan Transition(nil), m.subscribers...)
	m.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- t:
		default:
			// Slow subscriber; drop rather than block the caller, matching
			// the original's tokio broadcast channel's lossy semantics.
		}
	}
	return true
}

// Get returns the current state of peerID and whether it has one recorded.
func (m *Machine) Get(peerID string) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[peerID]
	return s, ok
}

// All returns a snapshot of every tracked peer's current state.
func (m *Machine) All() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.states))
	for k, v := range m.states {
		out[k] = v
	}
	return out
}

// History returns the transition log for peerID, oldest first.
func (m *Machine) History(peerID string) []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hist := m.log[peerID]
	out := make([]Transition, len(hist))
	copy(out, hist)
	return out
}

// Forget drops peerID's state and log, called once its session is fully
// torn down so the maps don't grow unbounded across the server's lifetime.
func (m *Machine) Forget(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, peerID)
	delete(m.log, peerID)
}

// Subscribe registers a channel that receives every accepted transition
// going forward. The caller must keep reading it; a slow or abandoned
// subscriber has transitions dropped rather than blocking Transition.
func (m *Machine) Subscribe(buffer int) <-chan Transition {
	ch := make(chan Transition, buffer)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel previously returned by Subscribe, so a
// disconnected /monitoring/ws client doesn't leak a slot in the subscriber
// list for the life of the process.
func (m *Machine) Unsubscribe(ch <-chan Transition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}
