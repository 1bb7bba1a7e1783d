package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bridgekit/bridge/magic"
	"github.com/bridgekit/bridge/object"
	"github.com/bridgekit/bridge/transport"
)

type leaf struct {
	Tag string
}

type workshop struct {
	Name  string
	Child *leaf
	Twin  *leaf
}

func (w *workshop) Greet(name string) string { return "hello " + name }
func (w *workshop) Fail() error               { return errors.New("boom") }

// pairedBridges wires two fresh States together over a MemoryTransport pair,
// each with its own magic.Store so object identity never crosses sides by
// accident the way it would sharing magic.Default.
func pairedBridges(t *testing.T, throttle time.Duration) (server, client *State, serverStore, clientStore *magic.Store) {
	t.Helper()
	a, b := transport.NewMemoryTransportPair()
	serverStore = magic.NewStore()
	clientStore = magic.NewStore()
	serverStore.BridgifyClass(&workshop{})
	serverStore.BridgifyClass(&leaf{})
	clientStore.BridgifyClass(&workshop{})
	clientStore.BridgifyClass(&leaf{})

	server = New(a, Options{ThrottleDelay: throttle, Store: serverStore, Logger: zap.NewNop()})
	client = New(b, Options{ThrottleDelay: throttle, Store: clientStore, Logger: zap.NewNop()})
	t.Cleanup(func() {
		server.Close(nil)
		client.Close(nil)
	})
	return server, client, serverStore, clientStore
}

// eventually polls cond until it reports true or the timeout elapses, failing
// the test if it never does.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.True(t, cond(), "condition never became true within %s", timeout)
}

func TestBridgeSimplePropertyUpdatePropagates(t *testing.T) {
	server, client, _, _ := pairedBridges(t, 0)

	root := &workshop{Name: "a"}
	require.NoError(t, server.SendRoot(root))

	got, err := client.GetRoot(context.Background())
	require.NoError(t, err)
	proxy, ok := got.(*object.Proxy)
	require.True(t, ok)

	eventually(t, time.Second, func() bool {
		v, _ := proxy.Get("Name")
		return v == "a"
	})

	root.Name = "b"
	Update(root, "Name")

	eventually(t, time.Second, func() bool {
		v, _ := proxy.Get("Name")
		return v == "b"
	})
}

func TestBridgeReferentiallySharedChildResolvesToOneProxy(t *testing.T) {
	server, client, _, _ := pairedBridges(t, 0)

	shared := &leaf{Tag: "shared"}
	root := &workshop{Name: "r", Child: shared, Twin: shared}
	require.NoError(t, server.SendRoot(root))

	got, err := client.GetRoot(context.Background())
	require.NoError(t, err)
	proxy := got.(*object.Proxy)

	var childVal, twinVal any
	eventually(t, time.Second, func() bool {
		childVal, _ = proxy.Get("Child")
		twinVal, _ = proxy.Get("Twin")
		return childVal != nil && twinVal != nil
	})
	assert.Same(t, childVal, twinVal, "two fields referencing the same server object must mirror to the same client-side proxy identity")
}

func TestBridgeErrorReturningCallRejectsPromise(t *testing.T) {
	server, client, _, _ := pairedBridges(t, 0)

	root := &workshop{Name: "r"}
	require.NoError(t, server.SendRoot(root))
	got, err := client.GetRoot(context.Background())
	require.NoError(t, err)
	proxy := got.(*object.Proxy)

	promise, err := proxy.Call(context.Background(), "Fail")
	require.NoError(t, err)
	_, callErr := promise.Await(context.Background())
	require.Error(t, callErr)
	assert.Contains(t, callErr.Error(), "boom")
}

func TestBridgeCallRoundTripsResult(t *testing.T) {
	server, client, _, _ := pairedBridges(t, 0)

	root := &workshop{Name: "r"}
	require.NoError(t, server.SendRoot(root))
	got, err := client.GetRoot(context.Background())
	require.NoError(t, err)
	proxy := got.(*object.Proxy)

	promise, err := proxy.Call(context.Background(), "Greet", "world")
	require.NoError(t, err)
	result, err := promise.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello world", result)
}

func TestBridgeClosedProxyRejectsFurtherCalls(t *testing.T) {
	server, client, _, _ := pairedBridges(t, 0)

	root := &workshop{Name: "r"}
	require.NoError(t, server.SendRoot(root))
	got, err := client.GetRoot(context.Background())
	require.NoError(t, err)
	proxy := got.(*object.Proxy)

	eventually(t, time.Second, func() bool {
		v, _ := proxy.Get("Name")
		return v == "r"
	})

	Close(root)

	eventually(t, time.Second, func() bool { return proxy.IsClosed() })

	_, callErr := proxy.Call(context.Background(), "Greet", "x")
	require.Error(t, callErr)
}

func TestBridgeThrottledUpdatesCoalesceIntoOneFlush(t *testing.T) {
	a, b := transport.NewMemoryTransportPair()
	store := magic.NewStore()
	store.BridgifyClass(&workshop{})
	clientStore := magic.NewStore()
	clientStore.BridgifyClass(&workshop{})

	server := New(a, Options{ThrottleDelay: 40 * time.Millisecond, Store: store, Logger: zap.NewNop()})
	client := New(b, Options{ThrottleDelay: 40 * time.Millisecond, Store: clientStore, Logger: zap.NewNop()})
	defer server.Close(nil)
	defer client.Close(nil)

	root := &workshop{Name: "a"}
	require.NoError(t, server.SendRoot(root))

	got, err := client.GetRoot(context.Background())
	require.NoError(t, err)
	proxy := got.(*object.Proxy)
	eventually(t, time.Second, func() bool {
		v, _ := proxy.Get("Name")
		return v == "a"
	})

	afterBootstrap := a.Stats().MessagesSent

	for i := 0; i < 5; i++ {
		root.Name = "v"
		Update(root, "Name")
	}

	eventually(t, time.Second, func() bool {
		v, _ := proxy.Get("Name")
		return v == "v"
	})
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, afterBootstrap+1, a.Stats().MessagesSent,
		"five Updates inside one throttle window must flush as a single message")
}

func TestBridgeCloseRejectsPendingCalls(t *testing.T) {
	server, client, _, _ := pairedBridges(t, 0)

	root := &workshop{Name: "r"}
	require.NoError(t, server.SendRoot(root))
	got, err := client.GetRoot(context.Background())
	require.NoError(t, err)
	proxy := got.(*object.Proxy)

	promise, err := proxy.Call(context.Background(), "Greet", "world")
	require.NoError(t, err)

	require.NoError(t, client.Close(errors.New("shutting down")))

	_, callErr := promise.Await(context.Background())
	require.Error(t, callErr)
	assert.Equal(t, "shutting down", callErr.Error(),
		"a pending call must reject with the caller-supplied Close reason, not a fixed sentinel")
}
