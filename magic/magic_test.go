package magic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct{ Name string }

func TestBridgifyObjectIsIdempotent(t *testing.T) {
	s := NewStore()
	w := &widget{Name: "a"}

	r1, err := s.BridgifyObject(w)
	require.NoError(t, err)
	r2, err := s.BridgifyObject(w)
	require.NoError(t, err)
	assert.Same(t, r1, r2)
	assert.Equal(t, LocalID(1), r1.LocalID)
}

func TestBridgifyObjectAssignsDistinctLocalIDs(t *testing.T) {
	s := NewStore()
	a, err := s.BridgifyObject(&widget{Name: "a"})
	require.NoError(t, err)
	b, err := s.BridgifyObject(&widget{Name: "b"})
	require.NoError(t, err)
	assert.NotEqual(t, a.LocalID, b.LocalID)
}

func TestBridgifyObjectRejectsNonPointer(t *testing.T) {
	s := NewStore()
	_, err := s.BridgifyObject(widget{Name: "a"})
	require.Error(t, err)
}

func TestBridgifyObjectRejectsNilPointer(t *testing.T) {
	s := NewStore()
	var w *widget
	_, err := s.BridgifyObject(w)
	require.Error(t, err)
}

func TestGetInstanceMagicLazilyBridgifiesClassMarkedType(t *testing.T) {
	s := NewStore()
	s.BridgifyClass(&widget{})
	w := &widget{Name: "a"}

	assert.True(t, s.IsBridgeable(w))
	r, err := s.GetInstanceMagic(w)
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestGetInstanceMagicFailsOnUnmarkedType(t *testing.T) {
	s := NewStore()
	_, err := s.GetInstanceMagic(&widget{Name: "a"})
	require.Error(t, err)
	assert.False(t, s.IsBridgeable(&widget{Name: "a"}))
}

func TestByLocalIDInvertsBridgifyObject(t *testing.T) {
	s := NewStore()
	w := &widget{Name: "a"}
	r, err := s.BridgifyObject(w)
	require.NoError(t, err)

	got, ok := s.ByLocalID(r.LocalID)
	require.True(t, ok)
	assert.Same(t, w, got)

	_, ok = s.ByLocalID(LocalID(999))
	assert.False(t, ok)
}

func TestMakeProxyMagicIsIdempotentPerIdentity(t *testing.T) {
	s := NewStore()
	proxyObj := &struct{}{}

	r1, err := s.MakeProxyMagic(proxyObj, LocalID(7), []string{"M"}, []string{"P"})
	require.NoError(t, err)
	require.NotNil(t, r1.Proxy)
	assert.Equal(t, LocalID(7), r1.Proxy.RemoteID)

	r2, err := s.MakeProxyMagic(proxyObj, LocalID(7), []string{"M"}, []string{"P"})
	require.NoError(t, err)
	assert.Same(t, r1, r2)
}

func TestShareDataRegistersUnderNamespacedID(t *testing.T) {
	s := NewStore()
	onMethod := &struct{ name string }{name: "on"}

	err := s.ShareData(map[string]any{"on": onMethod}, "bridge")
	require.NoError(t, err)

	id, ok := s.ShareID(onMethod)
	require.True(t, ok)
	assert.Equal(t, "bridge.on", id)

	got, err := s.SharedValue("bridge.on")
	require.NoError(t, err)
	assert.Same(t, onMethod, got)
}

func TestShareDataIsIdempotentForIdenticalValue(t *testing.T) {
	s := NewStore()
	err := s.ShareData(map[string]any{"flag": true}, "")
	require.NoError(t, err)
	err = s.ShareData(map[string]any{"flag": true}, "")
	require.NoError(t, err)
}

func TestShareDataRejectsConflictingRegistration(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.ShareData(map[string]any{"flag": true}, ""))
	err := s.ShareData(map[string]any{"flag": false}, "")
	require.Error(t, err)
}

func TestSharedValueUnknownID(t *testing.T) {
	s := NewStore()
	_, err := s.SharedValue("nope")
	require.Error(t, err)
}
