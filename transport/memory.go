package transport

import (
	"context"
	"sync/atomic"
)

// MaxFrameSize bounds a single frame, mirroring capnweb-go's 64MB protocol
// ceiling (protocol.go's MaxMessageSize) — chosen so a bridge using the
// default in-process or WebSocket transport inherits the same ceiling the
// wire codec's own callers assume.
const MaxFrameSize = 64 * 1024 * 1024

// MemoryStats counts frames and bytes moved over a MemoryTransport.
type MemoryStats struct {
	BytesSent        uint64
	BytesReceived    uint64
	MessagesSent     uint64
	MessagesReceived uint64
	Errors           uint64
}

// MemoryTransport connects two bridges running in the same process over
// buffered channels, directly grounded on capnweb-go's MemoryTransport
// (transport_memory.go) — useful for tests and for bridging a worker
// goroutine the way a JS worker_threads MessagePort would.
type MemoryTransport struct {
	sendCh  chan []byte
	recvCh  chan []byte
	closeCh chan struct{}
	closed  int32
	stats   MemoryStats
}

// NewMemoryTransportPair returns two MemoryTransports wired to each other:
// a frame sent on one arrives on the other's Receive.
func NewMemoryTransportPair() (*MemoryTransport, *MemoryTransport) {
	ch1 := make(chan []byte, 64)
	ch2 := make(chan []byte, 64)
	t1 := &MemoryTransport{sendCh: ch1, recvCh: ch2, closeCh: make(chan struct{})}
	t2 := &MemoryTransport{sendCh: ch2, recvCh: ch1, closeCh: make(chan struct{})}
	return t1, t2
}

func (t *MemoryTransport) Send(ctx context.Context, frame []byte) error {
	if atomic.LoadInt32(&t.closed) != 0 {
		return ErrClosed
	}
	if len(frame) > MaxFrameSize {
		atomic.AddUint64(&t.stats.Errors, 1)
		return ErrMessageTooLarge
	}
	msg := make([]byte, len(frame))
	copy(msg, frame)
	select {
	case t.sendCh <- msg:
		atomic.AddUint64(&t.stats.BytesSent, uint64(len(frame)))
		atomic.AddUint64(&t.stats.MessagesSent, 1)
		return nil
	case <-t.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *MemoryTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-t.recvCh:
		if !ok {
			return nil, ErrClosed
		}
		atomic.AddUint64(&t.stats.BytesReceived, uint64(len(msg)))
		atomic.AddUint64(&t.stats.MessagesReceived, 1)
		return msg, nil
	case <-t.closeCh:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *MemoryTransport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil
	}
	close(t.closeCh)
	return nil
}

// Stats returns a snapshot of this transport's counters.
func (t *MemoryTransport) Stats() MemoryStats {
	return MemoryStats{
		BytesSent:        atomic.LoadUint64(&t.stats.BytesSent),
		BytesReceived:    atomic.LoadUint64(&t.stats.BytesReceived),
		MessagesSent:     atomic.LoadUint64(&t.stats.MessagesSent),
		MessagesReceived: atomic.LoadUint64(&t.stats.MessagesReceived),
		Errors:           atomic.LoadUint64(&t.stats.Errors),
	}
}
