package bridge

import (
	"context"
	"fmt"

	"github.com/bridgekit/bridge/codec"
	"github.com/bridgekit/bridge/magic"
	"github.com/bridgekit/bridge/object"
)

// rootEventName is the event name SendRoot/receiveRoot exchange under
// localId=0 to bootstrap a session without a prior reference to anything.
const rootEventName = "root"

// Bridgeable is an embeddable base giving a Go type the Close/Emit/Update
// verbs as methods, mirroring a JS Bridgeable base class's `_close`,
// `_emit`, `_update`. Embedding is optional: the standalone Close/Emit/
// Update functions below work on any object registered in magic.Default,
// embedded or not — Bridgeable exists purely for callers who prefer
// o.Emit(...) to bridge.Emit(o, ...).
//
// Close, Emit, Update, AddListener and AddWatcher look obj up in
// magic.Default only. An object registered solely in a store passed as
// Options.Store is not found there: Close/Emit/Update then do nothing, and
// AddListener/AddWatcher return the NotBridgeable lookup error.
type Bridgeable struct{}

// Close fires this object's 'close' listeners, marks it closed, and tells
// every bridge it was shared over to emit a close notice.
func (Bridgeable) Close(obj any) { Close(obj) }

// Emit fans payload out to every bridge this object is shared over and to
// local listeners.
func (Bridgeable) Emit(obj any, name string, payload any) { Emit(obj, name, payload) }

// Update marks name dirty on every subscribed bridge and re-polls local
// watchers.
func (Bridgeable) Update(obj any, name string) { Update(obj, name) }

// Emit fans a named event out to every bridge obj is shared over (so each
// remote peer's proxy sees it on its next flush) and, synchronously, to
// every local listener installed via AddListener. A listener that panics is
// recovered and re-emitted as an 'error' event on the same object, except
// when name is already "error" (anti-recursion guard).
func Emit(obj any, name string, payload any) {
	record, err := magic.GetInstanceMagic(obj)
	if err != nil {
		return
	}
	for _, peer := range record.BridgeList() {
		peer.EmitEvent(record.LocalID, name, payload)
	}
	for _, fn := range record.Listeners(name) {
		invokeListener(obj, name, fn, payload)
	}
}

func invokeListener(obj any, name string, fn magic.Listener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			if name == "error" {
				return
			}
			Emit(obj, "error", fmt.Errorf("bridge: listener for %q panicked: %v", name, r))
		}
	}()
	fn(payload)
}

// Update marks name (or every property, if name is empty) dirty on every
// bridge obj is shared over, invalidates the corresponding watcher cache so
// a stale-but-unchanged value still re-fires, and synchronously re-polls
// local watchers against the object's current value. Errors reading a
// property inside the watcher poll are swallowed; the next Update retries.
func Update(obj any, name string) {
	record, err := magic.GetInstanceMagic(obj)
	if err != nil {
		return
	}
	names := []string{name}
	if name == "" {
		names = object.Properties(obj)
	}
	for _, peer := range record.BridgeList() {
		peer.MarkDirty(record.LocalID, name)
	}
	for _, n := range names {
		record.InvalidateWatcher(n)
		value, err := object.Get(obj, n)
		if err != nil {
			continue
		}
		record.PollWatchers(n, value)
	}
}

// Close fires any 'close' listeners, marks obj permanently closed, and
// instructs every bridge it was shared over to emit a close notice before
// tearing down its listeners and watchers.
func Close(obj any) {
	record, err := magic.GetInstanceMagic(obj)
	if err != nil {
		return
	}
	for _, fn := range record.Listeners("close") {
		invokeListener(obj, "close", fn, nil)
	}
	peers := record.BridgeList()
	record.MarkClosed()
	for _, peer := range peers {
		peer.EmitClose(record.LocalID)
	}
	record.TeardownSubscriptions()
}

// AddListener installs fn for a named event fired via Emit, returning an
// Unsubscribe. A no-op unsubscribe on an already-closed object.
func AddListener(obj any, name string, fn func(payload any)) (magic.Unsubscribe, error) {
	record, err := magic.GetInstanceMagic(obj)
	if err != nil {
		return nil, err
	}
	return record.AddListener(name, fn), nil
}

// AddWatcher installs fn to fire whenever name's value changes identity, as
// observed by Update or by an incoming proxy "changed" record.
func AddWatcher(obj any, name string, fn func(value any)) (magic.Unsubscribe, error) {
	record, err := magic.GetInstanceMagic(obj)
	if err != nil {
		return nil, err
	}
	return record.AddWatcher(name, fn), nil
}

// SendRoot admits root onto the wire (if not already) and emits the
// localId=0 "root" handshake event carrying it, so a freshly connected peer
// can resolve it via GetRoot without needing any prior reference.
func (s *State) SendRoot(root any) error {
	record, err := s.store.GetInstanceMagic(root)
	if err != nil {
		return err
	}
	s.admitObject(root, record)

	packed := codec.Pack(s, s.store, s.store, root)
	s.mu.Lock()
	s.outbox.events = append(s.outbox.events, EventEntry{LocalID: 0, Name: rootEventName, Payload: packed})
	s.mu.Unlock()
	s.scheduleFlush()
	return nil
}

// GetRoot blocks until the remote peer's SendRoot handshake event has been
// received and returns whatever it carried — a scalar, or (if the remote
// root is itself bridgeable) the fabricated object.Proxy for it.
func (s *State) GetRoot(ctx context.Context) (any, error) {
	s.mu.Lock()
	if s.rootReceived {
		value := s.rootValue
		s.mu.Unlock()
		return s.resolveRootValue(value)
	}
	ready := make(chan struct{})
	s.rootWaiters = append(s.rootWaiters, ready)
	s.mu.Unlock()

	select {
	case <-ready:
		s.mu.Lock()
		value := s.rootValue
		s.mu.Unlock()
		return s.resolveRootValue(value)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolveRootValue upgrades a bare fabricated proxy placeholder into the
// dynamic object.Proxy wrapper a caller actually wants to hold.
func (s *State) resolveRootValue(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if record, err := s.store.GetInstanceMagic(value); err == nil && record.Proxy != nil {
		return object.NewProxy(s, record), nil
	}
	return value, nil
}
