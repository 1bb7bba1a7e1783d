package magic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecordPeer struct {
	closes  []LocalID
	dirties []string
	events  []string
}

func (p *fakeRecordPeer) MarkDirty(id LocalID, prop string)      { p.dirties = append(p.dirties, prop) }
func (p *fakeRecordPeer) EmitClose(id LocalID)                   { p.closes = append(p.closes, id) }
func (p *fakeRecordPeer) EmitEvent(id LocalID, name string, _ any) {
	p.events = append(p.events, name)
}

func TestAddRemoveBridge(t *testing.T) {
	r := newRecord(1)
	p := &fakeRecordPeer{}

	r.AddBridge(p)
	assert.Len(t, r.BridgeList(), 1)

	r.RemoveBridge(p)
	assert.Empty(t, r.BridgeList())
}

func TestAddListenerFiresAndUnsubscribes(t *testing.T) {
	r := newRecord(1)
	var got []any
	unsub := r.AddListener("changed", func(payload any) { got = append(got, payload) })

	for _, fn := range r.Listeners("changed") {
		fn("first")
	}
	assert.Equal(t, []any{"first"}, got)

	unsub()
	assert.Empty(t, r.Listeners("changed"))
}

func TestAddListenerOnClosedRecordIsNoOp(t *testing.T) {
	r := newRecord(1)
	r.MarkClosed()
	unsub := r.AddListener("changed", func(any) {})
	assert.Empty(t, r.Listeners("changed"))
	unsub() // must not panic
}

func TestPollWatchersFiresOnlyOnIdentityChange(t *testing.T) {
	r := newRecord(1)
	calls := 0
	r.AddWatcher("count", func(any) { calls++ })

	r.PollWatchers("count", 1)
	assert.Equal(t, 1, calls)

	r.PollWatchers("count", 1)
	assert.Equal(t, 1, calls, "same identity must not re-fire")

	r.PollWatchers("count", 2)
	assert.Equal(t, 2, calls)
}

func TestInvalidateWatcherForcesRefire(t *testing.T) {
	r := newRecord(1)
	calls := 0
	r.AddWatcher("count", func(any) { calls++ })

	r.PollWatchers("count", 1)
	assert.Equal(t, 1, calls)

	r.InvalidateWatcher("count")
	r.PollWatchers("count", 1)
	assert.Equal(t, 2, calls, "invalidation must force a refire even with unchanged value")
}

func TestWatchedNamesOmitsEmptyWatcherLists(t *testing.T) {
	r := newRecord(1)
	unsub := r.AddWatcher("count", func(any) {})
	assert.Equal(t, []string{"count"}, r.WatchedNames())

	unsub()
	assert.Empty(t, r.WatchedNames())
}

func TestProxyPropRoundTrip(t *testing.T) {
	r := newRecord(1)
	r.Proxy = &ProxyFields{Props: make(map[string]any), Errors: make(map[string]bool)}

	_, ok := r.ProxyGetProp("x")
	assert.False(t, ok)

	r.ProxySetProp("x", 42)
	v, ok := r.ProxyGetProp("x")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	assert.False(t, r.ProxyIsErrored("x"))
	r.ProxyMarkErrored("x", true)
	assert.True(t, r.ProxyIsErrored("x"))
	r.ProxyMarkErrored("x", false)
	assert.False(t, r.ProxyIsErrored("x"))
}

func TestProxyOpsAreNoOpOnNonProxyRecord(t *testing.T) {
	r := newRecord(1)
	r.ProxySetProp("x", 1) // must not panic despite r.Proxy == nil
	_, ok := r.ProxyGetProp("x")
	assert.False(t, ok)
	assert.False(t, r.ProxyIsErrored("x"))
}

func TestMarkClosedClearsBridgesButKeepsSubscriptions(t *testing.T) {
	r := newRecord(1)
	p := &fakeRecordPeer{}
	r.AddBridge(p)
	r.AddListener("close", func(any) {})

	r.MarkClosed()
	assert.True(t, r.IsClosed())
	assert.Empty(t, r.BridgeList())
	assert.Len(t, r.Listeners("close"), 1, "close listeners must survive MarkClosed for delivery")

	r.TeardownSubscriptions()
	assert.Empty(t, r.Listeners("close"))
}
