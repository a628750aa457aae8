package transport

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// GorillaHandle wraps a gorilla/websocket connection. Grounded on
// types.ThreadSafeWriter: a mutex-serialized WriteJSON, generalized to the
// Handle interface and given a stable id for equality checks.
type GorillaHandle struct {
	mu            sync.Mutex
	conn          *websocket.Conn
	writeDeadline time.Duration
	id            string
}

// NewGorillaHandle wraps conn. writeDeadline of zero disables per-write
// deadlines.
func NewGorillaHandle(conn *websocket.Conn, writeDeadline time.Duration) *GorillaHandle {
	return &GorillaHandle{
		conn:          conn,
		writeDeadline: writeDeadline,
		id:            uuid.NewString(),
	}
}

func (h *GorillaHandle) withDeadline() {
	if h.writeDeadline > 0 {
		_ = h.conn.SetWriteDeadline(time.Now().Add(h.writeDeadline))
	}
}

func (h *GorillaHandle) Send(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.withDeadline()
	return h.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (h *GorillaHandle) SendJSON(v any) error {
	text, err := marshalOrErr(v)
	if err != nil {
		return err
	}
	return h.Send(text)
}

func (h *GorillaHandle) Ping() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.withDeadline()
	return h.conn.WriteMessage(websocket.PingMessage, []byte{})
}

func (h *GorillaHandle) Close() error {
	return h.conn.Close()
}

func (h *GorillaHandle) ID() string { return h.id }

// ReadMessage exposes the underlying read loop for the session reader; reads
// are never concurrent with themselves so no locking is needed here.
func (h *GorillaHandle) ReadMessage() (messageType int, p []byte, err error) {
	return h.conn.ReadMessage()
}

// ReadText reads the next frame and returns it as text, satisfying
// session.Reader. Non-text frames (ping/pong/close) are surfaced to the
// caller as the gorilla library's own control-frame handling dictates;
// ReadMessage already strips control frames before returning here.
func (h *GorillaHandle) ReadText() (string, error) {
	_, p, err := h.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// SetPongHandler registers a pong callback, for call sites that want pong
// timestamps beyond what the heartbeat monitor tracks.
func (h *GorillaHandle) SetPongHandler(fn func(appData string) error) {
	h.conn.SetPongHandler(fn)
}

// Underlying returns the wrapped connection for call sites that need
// gorilla-specific behavior not expressed in Handle.
func (h *GorillaHandle) Underlying() *websocket.Conn { return h.conn }
