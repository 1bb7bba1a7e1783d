package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketOptions configures a WebSocketTransport, mirroring capnweb-go's
// WebSocketOptions/DefaultWebSocketOptions (websocket_transport.go), trimmed
// to the settings that matter once the hand-rolled WebSocketConn interface
// there is replaced with a real gorilla/websocket connection (gorilla owns
// handshake timeouts, buffer sizing, and reconnection is left to the
// caller rather than built in).
type WebSocketOptions struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
}

// DefaultWebSocketOptions returns reasonable defaults.
func DefaultWebSocketOptions() WebSocketOptions {
	return WebSocketOptions{
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		MaxMessageSize: MaxFrameSize,
	}
}

// WebSocketStats tracks a WebSocketTransport's traffic, mirroring capnweb-go's
// WebSocketStats.
type WebSocketStats struct {
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64
	PingsSent        uint64
	PongsReceived    uint64
}

// WebSocketTransport bridges frames over a gorilla/websocket connection,
// with a send pump, a read pump, and a keep-alive ping loop — the same
// three-goroutine shape as capnweb-go's writePump/readPump/keepAlive, now
// driving a real *websocket.Conn instead of a hand-rolled WebSocketConn
// placeholder.
type WebSocketTransport struct {
	conn    *websocket.Conn
	options WebSocketOptions

	sendCh  chan []byte
	recvCh  chan []byte
	closeCh chan struct{}
	once    sync.Once

	mu     sync.Mutex
	stats  WebSocketStats
	closeErr error
}

// NewWebSocketTransport wraps an already-established gorilla/websocket
// connection (from websocket.Dial on the client, or Upgrader.Upgrade on the
// server).
func NewWebSocketTransport(conn *websocket.Conn, opts WebSocketOptions) *WebSocketTransport {
	if opts.PingInterval == 0 {
		opts = DefaultWebSocketOptions()
	}
	conn.SetReadLimit(opts.MaxMessageSize)
	t := &WebSocketTransport{
		conn:    conn,
		options: opts,
		sendCh:  make(chan []byte, 256),
		recvCh:  make(chan []byte, 256),
		closeCh: make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		t.mu.Lock()
		t.stats.PongsReceived++
		t.mu.Unlock()
		return conn.SetReadDeadline(time.Now().Add(t.options.PingInterval + t.options.PongTimeout))
	})
	go t.readPump()
	go t.writePump()
	go t.keepAlive()
	return t
}

func (t *WebSocketTransport) readPump() {
	defer close(t.recvCh)
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.fail(err)
			return
		}
		t.mu.Lock()
		t.stats.MessagesReceived++
		t.stats.BytesReceived += uint64(len(data))
		t.mu.Unlock()
		select {
		case t.recvCh <- data:
		case <-t.closeCh:
			return
		}
	}
}

func (t *WebSocketTransport) writePump() {
	for {
		select {
		case frame := <-t.sendCh:
			if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				t.fail(err)
				return
			}
			t.mu.Lock()
			t.stats.MessagesSent++
			t.stats.BytesSent += uint64(len(frame))
			t.mu.Unlock()
		case <-t.closeCh:
			return
		}
	}
}

func (t *WebSocketTransport) keepAlive() {
	ticker := time.NewTicker(t.options.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.fail(err)
				return
			}
			t.mu.Lock()
			t.stats.PingsSent++
			t.mu.Unlock()
		case <-t.closeCh:
			return
		}
	}
}

func (t *WebSocketTransport) fail(err error) {
	t.mu.Lock()
	if t.closeErr == nil {
		t.closeErr = err
	}
	t.mu.Unlock()
	t.Close()
}

func (t *WebSocketTransport) Send(ctx context.Context, frame []byte) error {
	if len(frame) > int(t.options.MaxMessageSize) {
		return ErrMessageTooLarge
	}
	select {
	case t.sendCh <- frame:
		return nil
	case <-t.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *WebSocketTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-t.recvCh:
		if !ok {
			return nil, t.closeReason()
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *WebSocketTransport) closeReason() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closeErr != nil {
		return t.closeErr
	}
	return ErrClosed
}

func (t *WebSocketTransport) Close() error {
	t.once.Do(func() {
		close(t.closeCh)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.conn.Close()
	})
	return nil
}

// Abort sends a close frame carrying reason's message before tearing the
// connection down, satisfying transport.Aborter.
func (t *WebSocketTransport) Abort(reason error) {
	t.once.Do(func() {
		close(t.closeCh)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, reason.Error()),
			time.Now().Add(time.Second))
		t.conn.Close()
	})
}

// Stats returns a snapshot of this transport's counters.
func (t *WebSocketTransport) Stats() WebSocketStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Upgrader is a thin re-export of websocket.Upgrader's fields a bridge
// server needs, so callers wiring an HTTP handler don't have to import
// gorilla/websocket directly just to accept connections.
type Upgrader struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// Accept upgrades an incoming HTTP request to a WebSocketTransport.
func (u Upgrader) Accept(w http.ResponseWriter, r *http.Request, opts WebSocketOptions) (*WebSocketTransport, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  u.ReadBufferSize,
		WriteBufferSize: u.WriteBufferSize,
		CheckOrigin:     u.CheckOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: websocket upgrade: %w", err)
	}
	return NewWebSocketTransport(conn, opts), nil
}
