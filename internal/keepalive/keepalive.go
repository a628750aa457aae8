// Package keepalive runs the per-session heartbeat: a ping on a fixed
// interval, terminating the session on the first write failure. Adapted
// from a gorilla-specific Monitor (which tracked pong timestamps against a
// raw *websocket.Conn) to work over the transport.Handle capability, since
// sessions here may be backed by either supported WebSocket library. Pong
// tracking is dropped: transport.Handle.Ping already reports write failure,
// which is the only signal the heartbeat needs, so a separate
// pong-staleness timer is no longer needed.
package keepalive

import (
	"sync/atomic"
	"time"

	"github.com/pion/logging"

	"sfu-conference/internal/transport"
)

// Config holds the heartbeat timing.
type Config struct {
	PingInterval time.Duration
}

// DefaultConfig is the standard 30s heartbeat interval.
func DefaultConfig() Config {
	return Config{PingInterval: 30 * time.Second}
}

// Monitor pings a handle every Config.PingInterval until Stop is called or a
// ping write fails, in which case onFailure is invoked once.
type Monitor struct {
	handle    transport.Handle
	logger    logging.LeveledLogger
	config    Config
	onFailure func()

	done  chan struct{}
	alive atomic.Bool
}

// NewMonitor returns a Monitor for handle. onFailure is called from the ping
// goroutine the first time a ping write fails; it must not block.
func NewMonitor(handle transport.Handle, logger logging.LeveledLogger, cfg Config, onFailure func()) *Monitor {
	m := &Monitor{
		handle:    handle,
		logger:    logger,
		config:    cfg,
		onFailure: onFailure,
		done:      make(chan struct{}),
	}
	m.alive.Store(true)
	return m
}

// Start begins the ping loop in its own goroutine.
func (m *Monitor) Start() {
	go m.pingLoop()
}

// Stop ends the ping loop. Callers stop a session's monitor exactly once, on
// teardown.
func (m *Monitor) Stop() {
	m.alive.Store(false)
	close(m.done)
}

// IsAlive reports whether the last ping (if any) succeeded.
func (m *Monitor) IsAlive() bool {
	return m.alive.Load()
}

func (m *Monitor) pingLoop() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorf("keepalive: recovered panic in ping loop: %v", r)
		}
	}()

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			if err := m.handle.Ping(); err != nil {
				m.logger.Warnf("keepalive: ping failed: %v", err)
				m.alive.Store(false)
				if m.onFailure != nil {
					m.onFailure()
				}
				return
			}
			m.logger.Debugf("keepalive: sent ping")
		}
	}
}
