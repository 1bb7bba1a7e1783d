// Package transport defines the abstract byte-oriented carrier bridge.State
// sends and receives framed messages over, plus concrete implementations
// (in-process, WebSocket) — an abstract transport (web worker, child
// process, or socket) made concrete for Go.
package transport

import (
	"context"
	"errors"
)

// Transport is the byte-oriented carrier a bridge.State drives. Grounded
// directly on capnweb-go's Transport interface (transport.go): the bridge
// only needs ordered, reliable delivery of opaque frames, never the wire
// format itself.
type Transport interface {
	// Send transmits one framed message. Delivery must be reliable and
	// in order.
	Send(ctx context.Context, frame []byte) error

	// Receive blocks for the next framed message. Once the transport is
	// closed it returns an error: ErrClosed, or the error that tore the
	// connection down.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the transport's resources. Safe to call more than
	// once.
	Close() error
}

// Aborter is an optional interface a Transport can implement to learn that
// the bridge is closing due to an unrecoverable error, so it can flush or
// tear down accordingly.
type Aborter interface {
	Transport
	Abort(reason error)
}

var (
	// ErrClosed is returned by Send/Receive once Close has run.
	ErrClosed = errors.New("transport: closed")

	// ErrMessageTooLarge is returned when a frame exceeds the transport's
	// configured maximum size.
	ErrMessageTooLarge = errors.New("transport: message too large")
)
