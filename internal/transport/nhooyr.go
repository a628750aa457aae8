package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// NhooyrHandle wraps an nhooyr.io/websocket connection — the second transport
// variant behind the uniform Handle capability, used by /ws2. nhooyr's API is context-scoped rather than deadline-scoped,
// so each write derives a short-lived context instead of calling
// SetWriteDeadline.
type NhooyrHandle struct {
	mu         sync.Mutex
	conn       *websocket.Conn
	writeTimeout time.Duration
	id         string
}

func NewNhooyrHandle(conn *websocket.Conn, writeTimeout time.Duration) *NhooyrHandle {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &NhooyrHandle{
		conn:         conn,
		writeTimeout: writeTimeout,
		id:           uuid.NewString(),
	}
}

func (h *NhooyrHandle) Send(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	defer cancel()
	return h.conn.Write(ctx, websocket.MessageText, []byte(text))
}

func (h *NhooyrHandle) SendJSON(v any) error {
	text, err := marshalOrErr(v)
	if err != nil {
		return err
	}
	return h.Send(text)
}

func (h *NhooyrHandle) Ping() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	defer cancel()
	return h.conn.Ping(ctx)
}

func (h *NhooyrHandle) Close() error {
	return h.conn.Close(websocket.StatusNormalClosure, "closing")
}

func (h *NhooyrHandle) ID() string { return h.id }

// Read exposes the underlying read loop with caller-supplied cancellation.
func (h *NhooyrHandle) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	return h.conn.Read(ctx)
}

// ReadText reads the next frame with no deadline and returns it as text,
// satisfying session.Reader.
func (h *NhooyrHandle) ReadText() (string, error) {
	_, p, err := h.conn.Read(context.Background())
	if err != nil {
		return "", err
	}
	return string(p), nil
}
