package object

import (
	"context"

	"github.com/bridgekit/bridge/errs"
	"github.com/bridgekit/bridge/magic"
)

// ProxyBridge is the slice of bridge.State a Proxy needs to actually move
// bytes: issuing a call against the object's owning peer and closing its own
// end of the reference. bridge.State implements this directly, the same way
// codec.Peer and codec.SharedTable let the codec package depend only on the
// slice of bridge.State it needs.
type ProxyBridge interface {
	Call(ctx context.Context, remoteID magic.LocalID, method string, args []any) (*Promise, error)
	CloseProxy(remoteID magic.LocalID)
}

// Proxy is the dynamic, reflection-free stand-in for a bridgeable object
// owned by the remote peer. Where a generated client in a dynamic language
// synthesizes getters and call-forwarding methods on the fly, Go has no such
// hook — so a Proxy exposes the same surface through Get/Call/On/Watch
// methods instead, directly grounded on capnweb-go's Stub interface
// (stub.go), adapted for a synchronous Get — property reads are synchronous
// against a locally mirrored cache, not a round trip — in place of
// capnweb's promise-returning Get.
type Proxy struct {
	bridge   ProxyBridge
	record   *magic.Record
	remoteID magic.LocalID
}

// NewProxy wraps record (which must be a proxy record, i.e. record.Proxy !=
// nil) in the dynamic-access surface.
func NewProxy(bridge ProxyBridge, record *magic.Record) *Proxy {
	return &Proxy{bridge: bridge, record: record, remoteID: record.Proxy.RemoteID}
}

// Methods lists the callable method names the owning peer advertised when
// this object was first admitted.
func (p *Proxy) Methods() []string {
	return append([]string(nil), p.record.Proxy.Methods...)
}

// Properties lists the bridged property names the owning peer advertised.
func (p *Proxy) Properties() []string {
	return append([]string(nil), p.record.Proxy.PropNames...)
}

// Get reads the locally cached value of a mirrored property. It never
// blocks and never crosses the wire: the value was already delivered by the
// "created" record or the most recent "changed" message naming this
// property — property reads are
// synchronous. Reading a property this proxy has not yet received a value
// for returns (nil, nil).
func (p *Proxy) Get(name string) (any, error) {
	if p.record.IsClosed() {
		return nil, errs.New(errs.ClosedProxy, "property %q read on a closed proxy", name)
	}
	if p.record.ProxyIsErrored(name) {
		v, _ := p.record.ProxyGetProp(name)
		if err, ok := v.(error); ok {
			return nil, err
		}
	}
	v, _ := p.record.ProxyGetProp(name)
	return v, nil
}

// Call issues a remote method invocation and returns a Promise settled once
// the matching "return" message arrives.
func (p *Proxy) Call(ctx context.Context, method string, args ...any) (*Promise, error) {
	if p.record.IsClosed() {
		return nil, errs.New(errs.ClosedProxy, "Cannot call method '%s' of closed proxy", method)
	}
	return p.bridge.Call(ctx, p.remoteID, method, args)
}

// On installs a listener for a named local event, mirrored from the owning
// peer's Management API Emit calls.
func (p *Proxy) On(name string, fn func(payload any)) Unsubscribe {
	return Unsubscribe(p.record.AddListener(name, magic.Listener(fn)))
}

// Watch installs a callback that fires whenever the named property's
// mirrored value changes.
func (p *Proxy) Watch(name string, fn func(value any)) Unsubscribe {
	return Unsubscribe(p.record.AddWatcher(name, magic.Watcher(fn)))
}

// Unsubscribe mirrors magic.Unsubscribe, re-exported so callers never need
// to import the magic package just to hold the return value of On/Watch.
type Unsubscribe magic.Unsubscribe

// Close releases this end of the reference, notifying the owning peer.
func (p *Proxy) Close() {
	p.record.MarkClosed()
	p.bridge.CloseProxy(p.remoteID)
}

// IsClosed reports whether Close has already run.
func (p *Proxy) IsClosed() bool {
	return p.record.IsClosed()
}
