package bridge

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/bridgekit/bridge/codec"
	"github.com/bridgekit/bridge/errs"
	"github.com/bridgekit/bridge/magic"
	"github.com/bridgekit/bridge/object"
)

// receiveLoop pulls frames off the transport and dispatches them until ctx
// is canceled (by Close) or the transport reports io.EOF — grounded on
// capnweb-go's Session.messageLoop (session.go), minus its message-queue
// channel indirection since decoding happens synchronously here.
func (s *State) receiveLoop(ctx context.Context) {
	for {
		data, err := s.transp.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return
			}
			s.logger.Warn("bridge: transport receive failed", zap.Error(err))
			s.Close(err)
			return
		}
		if s.metrics != nil {
			s.metrics.messagesRecv.Inc()
		}
		msg, err := s.codec.Decode(data)
		if err != nil {
			s.logger.Warn("bridge: failed to decode incoming message", zap.Error(err))
			continue
		}
		s.HandleMessage(ctx, msg)
	}
}

// HandleMessage dispatches one received Message in a fixed three-phase
// order: first reconcile the object graph (admit every newly created
// object as a proxy, then mirror every
// changed property — both before anything below can reference them by id),
// then fire events/calls/returns, then close whatever the far side is done
// with.
func (s *State) HandleMessage(ctx context.Context, msg *Message) {
	for _, entry := range msg.Created {
		s.admitProxy(entry)
	}
	for _, entry := range msg.Changed {
		s.applyChanged(entry)
	}

	for _, entry := range msg.Events {
		s.dispatchEvent(entry)
	}
	for _, entry := range msg.Calls {
		s.dispatchCall(ctx, entry)
	}
	for _, entry := range msg.Returns {
		s.dispatchReturn(entry)
	}

	for _, id := range msg.Closed {
		s.closeIncoming(magic.LocalID(id))
	}
}

// admitProxy fabricates (or re-uses) the local proxy for an object the
// remote peer just admitted, seeding its cached property values from the
// create record.
func (s *State) admitProxy(entry CreatedEntry) {
	remoteID := magic.LocalID(entry.LocalID)

	s.mu.Lock()
	if _, exists := s.proxies[remoteID]; exists {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	proxyObj := new(proxyPlaceholder)
	record, err := s.store.MakeProxyMagic(proxyObj, remoteID, entry.Methods, propertyNames(entry.Properties))
	if err != nil {
		s.logger.Warn("bridge: failed to fabricate proxy", zap.Error(err))
		return
	}
	record.AddBridge((*peerHandle)(s))

	for name, packed := range entry.Properties {
		value, err := codec.Unpack(s, s.store, packed, name)
		if err != nil {
			record.ProxyMarkErrored(name, true)
			record.ProxySetProp(name, err)
			continue
		}
		record.ProxySetProp(name, value)
	}

	s.mu.Lock()
	s.proxies[remoteID] = proxyObj
	waiters := s.importWaiters[remoteID]
	delete(s.importWaiters, remoteID)
	s.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

// proxyPlaceholder gives a fabricated proxy a distinct pointer identity for
// the magic side table to key on, standing in for the remote object's shape
// since Go cannot fabricate a new type with that shape at runtime the way a
// dynamic language can.
type proxyPlaceholder struct{}

func propertyNames(props map[string]codec.PackedData) []string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	return names
}

func (s *State) applyChanged(entry ChangedEntry) {
	remoteID := magic.LocalID(entry.LocalID)
	s.mu.Lock()
	proxyObj, ok := s.proxies[remoteID]
	s.mu.Unlock()
	if !ok {
		s.logger.Warn("bridge: changed message for unknown proxy",
			zap.Error(errs.New(errs.InvalidLocalID, "changed message for unknown proxy %d", entry.LocalID)))
		return
	}
	record, err := s.store.GetInstanceMagic(proxyObj)
	if err != nil {
		return
	}
	for name, packed := range entry.Properties {
		value, uerr := codec.Unpack(s, s.store, packed, name)
		if uerr != nil {
			record.ProxyMarkErrored(name, true)
			record.ProxySetProp(name, uerr)
		} else {
			record.ProxyMarkErrored(name, false)
			record.ProxySetProp(name, value)
		}
		record.PollWatchers(name, value)
	}
}

func (s *State) dispatchEvent(entry EventEntry) {
	if entry.LocalID == 0 && entry.Name == rootEventName {
		s.receiveRoot(entry)
		return
	}

	// An event names the sender's own LocalID, which this side holds as a
	// proxy under the same positive id.
	obj, ok := s.Resolve(entry.LocalID)
	if !ok {
		return
	}
	record, err := s.store.GetInstanceMagic(obj)
	if err != nil {
		return
	}
	payload, err := codec.Unpack(s, s.store, entry.Payload, entry.Name)
	if err != nil {
		s.logger.Warn("bridge: failed to unpack event payload", zap.String("event", entry.Name), zap.Error(err))
		for _, fn := range record.Listeners("error") {
			invokeListener(obj, "error", fn, err)
		}
		return
	}
	for _, fn := range record.Listeners(entry.Name) {
		fn(payload)
	}
}

// receiveRoot handles the handshake event SendRoot emits with localId=0:
// unpack whatever arrived (a scalar, or a proxy already admitted earlier in
// this same message's created section) and hand it to any pending GetRoot
// call.
func (s *State) receiveRoot(entry EventEntry) {
	value, err := codec.Unpack(s, s.store, entry.Payload, "root")
	if err != nil {
		s.logger.Warn("bridge: failed to unpack root handshake payload", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.rootValue = value
	s.rootReceived = true
	waiters := s.rootWaiters
	s.rootWaiters = nil
	s.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

func (s *State) dispatchCall(ctx context.Context, entry CallEntry) {
	obj, ok := s.Resolve(-entry.LocalID)
	if !ok {
		s.sendReturn(ctx, entry.CallID, codec.PackThrow(s, s.store, s.store,
			errs.New(errs.InvalidLocalID, "call against unknown object %d", entry.LocalID)))
		return
	}
	argsAny, err := codec.Unpack(s, s.store, entry.Args, entry.Method)
	if err != nil {
		s.sendReturn(ctx, entry.CallID, codec.PackThrow(s, s.store, s.store, err))
		return
	}
	args, _ := argsAny.([]any)

	if s.metrics != nil {
		s.metrics.callsInbound.Inc()
	}
	result, err := object.Call(ctx, obj, entry.Method, args)
	if err != nil {
		s.sendReturn(ctx, entry.CallID, codec.PackThrow(s, s.store, s.store, err))
		return
	}
	s.sendReturn(ctx, entry.CallID, codec.Pack(s, s.store, s.store, result))
}

func (s *State) sendReturn(_ context.Context, callID int64, result codec.PackedData) {
	s.mu.Lock()
	s.outbox.returns = append(s.outbox.returns, ReturnEntry{CallID: callID, Result: result})
	s.mu.Unlock()
	s.scheduleFlush()
}

func (s *State) dispatchReturn(entry ReturnEntry) {
	s.mu.Lock()
	p, ok := s.pendingCalls[entry.CallID]
	started, hadStart := s.callStarted[entry.CallID]
	if ok {
		delete(s.pendingCalls, entry.CallID)
		delete(s.callStarted, entry.CallID)
	}
	s.mu.Unlock()
	if !ok {
		s.logger.Warn("bridge: return for unknown call",
			zap.Error(errs.New(errs.InvalidCallID, "return for unknown call %d", entry.CallID)))
		return
	}
	if hadStart && s.metrics != nil {
		s.metrics.callDuration.Observe(time.Since(started).Seconds())
	}
	value, err := codec.Unpack(s, s.store, entry.Result, "")
	if err != nil {
		p.Reject(err)
		return
	}
	p.Resolve(value)
}

func (s *State) closeIncoming(id magic.LocalID) {
	// The remote peer closed its reference to an object it owned (a
	// proxy of ours) or told us it closed one of our own objects' mirror.
	// Both cases key by the same id space the "closed" section uses: the
	// sender's own LocalID, so from our side this is always a proxy id.
	s.mu.Lock()
	proxyObj, ok := s.proxies[id]
	if ok {
		delete(s.proxies, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if record, err := s.store.GetInstanceMagic(proxyObj); err == nil {
		record.MarkClosed()
		record.TeardownSubscriptions()
	}
}
