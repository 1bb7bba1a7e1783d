package bridge

import (
	"context"
	"time"

	"github.com/bridgekit/bridge/codec"
	"github.com/bridgekit/bridge/errs"
	"github.com/bridgekit/bridge/magic"
	"github.com/bridgekit/bridge/object"
)

// Call implements object.ProxyBridge: it packs args, queues a CallEntry
// addressed to remoteID (the owning peer's own LocalID for the target
// object; this bridge's packedId for it is -remoteID), and returns a
// Promise that dispatchReturn settles once the matching ReturnEntry arrives.
func (s *State) Call(ctx context.Context, remoteID magic.LocalID, method string, args []any) (*object.Promise, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errs.New(errs.ClosedBridgeObject, "bridge is closed")
	}
	s.nextCallID++
	callID := s.nextCallID
	promise := object.NewPromise()
	s.pendingCalls[callID] = promise
	s.callStarted[callID] = time.Now()
	s.mu.Unlock()

	externalID := NewExternalCallID()
	_, span := startCallSpan(ctx, method, callID, externalID)
	defer span.End()

	packedArgs := codec.Pack(s, s.store, s.store, args)
	entry := CallEntry{CallID: callID, LocalID: int64(remoteID), Method: method, Args: packedArgs}

	s.mu.Lock()
	s.outbox.calls = append(s.outbox.calls, entry)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.callsOutbound.Inc()
	}
	s.scheduleFlush()
	return promise, nil
}

// CloseProxy implements object.ProxyBridge: it tells the owning peer this
// side is done with remoteID, dropping the local proxy entry immediately
// rather than waiting for the peer to echo the close back.
func (s *State) CloseProxy(remoteID magic.LocalID) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.proxies, remoteID)
	s.outbox.closed = append(s.outbox.closed, int64(remoteID))
	s.mu.Unlock()
	s.scheduleFlush()
}
