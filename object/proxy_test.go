package object

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgekit/bridge/magic"
)

type fakeProxyBridge struct {
	calls  []string
	closed []magic.LocalID
	result any
	err    error
}

func (b *fakeProxyBridge) Call(ctx context.Context, remoteID magic.LocalID, method string, args []any) (*Promise, error) {
	b.calls = append(b.calls, method)
	p := NewPromise()
	if b.err != nil {
		p.Reject(b.err)
	} else {
		p.Resolve(b.result)
	}
	return p, nil
}

func (b *fakeProxyBridge) CloseProxy(remoteID magic.LocalID) {
	b.closed = append(b.closed, remoteID)
}

func newTestProxy(t *testing.T, bridge ProxyBridge) (*Proxy, *magic.Record) {
	t.Helper()
	store := magic.NewStore()
	proxyObj := &struct{}{}
	record, err := store.MakeProxyMagic(proxyObj, magic.LocalID(9), []string{"Greet"}, []string{"Name"})
	require.NoError(t, err)
	return NewProxy(bridge, record), record
}

func TestProxyGetReturnsLocallyMirroredValue(t *testing.T) {
	proxy, record := newTestProxy(t, &fakeProxyBridge{})
	record.ProxySetProp("Name", "gizmo")

	v, err := proxy.Get("Name")
	require.NoError(t, err)
	assert.Equal(t, "gizmo", v)
}

func TestProxyGetUnreceivedPropertyReturnsNilNoError(t *testing.T) {
	proxy, _ := newTestProxy(t, &fakeProxyBridge{})
	v, err := proxy.Get("Name")
	assert.NoError(t, err)
	assert.Nil(t, v)
}

func TestProxyGetSurfacesMirroredError(t *testing.T) {
	proxy, record := newTestProxy(t, &fakeProxyBridge{})
	boom := &getterError{name: "Name"}
	record.ProxySetProp("Name", boom)
	record.ProxyMarkErrored("Name", true)

	_, err := proxy.Get("Name")
	require.Error(t, err)
	assert.Equal(t, boom, err)
}

func TestProxyGetOnClosedProxyFails(t *testing.T) {
	proxy, _ := newTestProxy(t, &fakeProxyBridge{})
	proxy.Close()
	_, err := proxy.Get("Name")
	require.Error(t, err)
}

func TestProxyCallForwardsToBridge(t *testing.T) {
	bridge := &fakeProxyBridge{result: "done"}
	proxy, _ := newTestProxy(t, bridge)

	promise, err := proxy.Call(context.Background(), "Greet", "world")
	require.NoError(t, err)
	result, err := promise.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, []string{"Greet"}, bridge.calls)
}

func TestProxyCallOnClosedProxyFails(t *testing.T) {
	proxy, _ := newTestProxy(t, &fakeProxyBridge{})
	proxy.Close()
	_, err := proxy.Call(context.Background(), "Greet")
	require.Error(t, err)
}

func TestProxyCloseNotifiesBridgeAndMarksClosed(t *testing.T) {
	bridge := &fakeProxyBridge{}
	proxy, record := newTestProxy(t, bridge)

	proxy.Close()
	assert.True(t, proxy.IsClosed())
	assert.True(t, record.IsClosed())
	assert.Equal(t, []magic.LocalID{magic.LocalID(9)}, bridge.closed)
}

func TestProxyWatchFiresOnMirroredChange(t *testing.T) {
	proxy, record := newTestProxy(t, &fakeProxyBridge{})
	var got []any
	proxy.Watch("Name", func(v any) { got = append(got, v) })

	record.ProxySetProp("Name", "a")
	record.PollWatchers("Name", "a")
	record.ProxySetProp("Name", "b")
	record.PollWatchers("Name", "b")

	assert.Equal(t, []any{"a", "b"}, got)
}
