package codec

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgekit/bridge/errs"
)

// roundTripJSON simulates what actually happens to a PackedData in
// production: it always crosses a bridge.Message's own JSON (or CBOR)
// encode/decode before Unpack ever sees it. WireMap/Set entries and error
// values (whose raw is a struct, with nested prop envelopes) rely on that
// round trip to turn back into the []any/map[string]any shapes Unpack and
// decodeEnvelope read — Pack and Unpack are not meant to be called back to
// back in memory for those kinds.
func roundTripJSON(t *testing.T, env PackedData) PackedData {
	t.Helper()
	b, err := json.Marshal(env)
	require.NoError(t, err)
	var out PackedData
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

// fakePeer is a minimal codec.Peer backed by a flat map, standing in for
// bridge.State in tests that only exercise the codec's own transform.
type fakePeer struct {
	byObj map[any]int64
	byID  map[int64]any
}

func newFakePeer() *fakePeer {
	return &fakePeer{byObj: make(map[any]int64), byID: make(map[int64]any)}
}

func (p *fakePeer) admit(obj any, id int64) {
	p.byObj[obj] = id
	p.byID[id] = obj
}

func (p *fakePeer) PackedID(obj any) (int64, bool) {
	id, ok := p.byObj[obj]
	return id, ok
}

func (p *fakePeer) Resolve(id int64) (any, bool) {
	obj, ok := p.byID[id]
	return obj, ok
}

type fakeShared struct {
	byValue map[any]string
	byID    map[string]any
}

func newFakeShared() *fakeShared {
	return &fakeShared{byValue: make(map[any]string), byID: make(map[string]any)}
}

func (s *fakeShared) register(id string, value any) {
	s.byValue[value] = id
	s.byID[id] = value
}

func (s *fakeShared) ShareID(value any) (string, bool) {
	id, ok := s.byValue[value]
	return id, ok
}

func (s *fakeShared) SharedValue(id string) (any, error) {
	v, ok := s.byID[id]
	if !ok {
		return nil, errs.New(errs.InvalidShareID, "unknown share id %q", id)
	}
	return v, nil
}

type fakeChecker struct{ bridgeable map[any]bool }

func (c fakeChecker) IsBridgeable(obj any) bool { return c.bridgeable[obj] }

func TestPackUnpackIdentityScalars(t *testing.T) {
	for _, v := range []any{true, "hello", 42, 3.14, int64(7)} {
		env := Pack(nil, nil, nil, v)
		assert.True(t, env.Map.IsIdentity())
		assert.Equal(t, v, env.Raw)

		got, err := Unpack(nil, nil, env, "")
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestPackUnpackDate(t *testing.T) {
	now := time.Date(2024, 3, 2, 10, 30, 0, 0, time.UTC)
	env := Pack(nil, nil, nil, now)
	assert.Equal(t, KindDate, env.Map.Kind)

	got, err := Unpack(nil, nil, env, "")
	require.NoError(t, err)
	gotTime, ok := got.(time.Time)
	require.True(t, ok)
	assert.True(t, now.Equal(gotTime))
}

func TestPackUnpackBytesAndBuffer(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	env := Pack(nil, nil, nil, payload)
	assert.Equal(t, KindBytes, env.Map.Kind)
	got, err := Unpack(nil, nil, env, "")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	buf := RawBuffer{9, 8, 7}
	env = Pack(nil, nil, nil, buf)
	assert.Equal(t, KindBuffer, env.Map.Kind)
	got, err = Unpack(nil, nil, env, "")
	require.NoError(t, err)
	assert.Equal(t, buf, got)
}

func TestPackUnpackUndefined(t *testing.T) {
	env := Pack(nil, nil, nil, Undefined)
	assert.Equal(t, KindUndefined, env.Map.Kind)
	got, err := Unpack(nil, nil, env, "")
	require.NoError(t, err)
	assert.Equal(t, Undefined, got)
}

func TestPackUnpackBridgeableRoundTrip(t *testing.T) {
	type widget struct{ Name string }
	obj := &widget{Name: "gizmo"}

	peer := newFakePeer()
	peer.admit(obj, 1)
	checker := fakeChecker{bridgeable: map[any]bool{obj: true}}

	env := Pack(peer, nil, checker, obj)
	assert.Equal(t, KindBridgeable, env.Map.Kind)
	assert.EqualValues(t, 1, env.Raw)

	got, err := Unpack(peer, nil, env, "")
	require.NoError(t, err)
	assert.Same(t, obj, got)
}

func TestPackBridgeableClosedReferenceEncodesNull(t *testing.T) {
	type widget struct{ Name string }
	obj := &widget{Name: "gone"}
	checker := fakeChecker{bridgeable: map[any]bool{obj: true}}

	// No peer admits obj, so PackedID reports !ok and raw becomes nil —
	// the wire shape for "reference to a closed bridge object".
	env := Pack(newFakePeer(), nil, checker, obj)
	assert.Equal(t, KindBridgeable, env.Map.Kind)
	assert.Nil(t, env.Raw)

	_, err := Unpack(newFakePeer(), nil, env, "")
	require.Error(t, err)
	var bridgeErr *errs.Error
	require.ErrorAs(t, err, &bridgeErr)
	assert.Equal(t, errs.ClosedBridgeObject, bridgeErr.Kind)
}

func TestPackUnpackSharedConstant(t *testing.T) {
	// Map keys must be comparable; a shared constant in production is
	// typically a singleton pointer or string, never a func value (funcs
	// aren't comparable at all), so that's what's exercised here.
	type constant struct{ name string }
	onMethod := &constant{name: "on"}
	shared := newFakeShared()
	shared.register("bridge.on", onMethod)

	env := Pack(nil, shared, nil, onMethod)
	assert.Equal(t, KindShared, env.Map.Kind)
	assert.Equal(t, "bridge.on", env.Raw)

	got, err := Unpack(nil, shared, env, "")
	require.NoError(t, err)
	assert.Same(t, onMethod, got)
}

func TestPackUnpackErrorValue(t *testing.T) {
	underlying := errs.New(errs.NoSuchMethod, "method %q does not exist", "frobnicate")
	env := PackThrow(nil, nil, nil, underlying)
	assert.True(t, env.Throw)
	assert.Equal(t, KindErrorValue, env.Map.Kind)

	_, err := Unpack(nil, nil, roundTripJSON(t, env), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frobnicate")
}

func TestPackUnpackPlainErrorValue(t *testing.T) {
	env := Pack(nil, nil, nil, errors.New("boom"))
	assert.Equal(t, KindErrorValue, env.Map.Kind)

	got, err := Unpack(nil, nil, roundTripJSON(t, env), "")
	require.NoError(t, err)
	asErr, ok := got.(error)
	require.True(t, ok)
	assert.Equal(t, "boom", asErr.Error())
}

func TestPackUnpackNestedObjectAndArray(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	value := map[string]any{
		"items": []any{1, "two", now},
		"plain": "unchanged",
	}

	env := Pack(nil, nil, nil, value)
	got, err := Unpack(nil, nil, roundTripJSON(t, env), "")
	require.NoError(t, err)

	m, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "unchanged", m["plain"])
	items, ok := m["items"].([]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), items[0].(float64))
	gotTime, ok := items[2].(time.Time)
	require.True(t, ok)
	assert.True(t, now.Equal(gotTime))
}

func TestPackUnpackWireMapAndSet(t *testing.T) {
	wm := WireMap{{Key: "a", Value: 1}, {Key: "b", Value: 2}}
	env := Pack(nil, nil, nil, wm)
	assert.Equal(t, KindWireMap, env.Map.Kind)

	got, err := Unpack(nil, nil, roundTripJSON(t, env), "")
	require.NoError(t, err)
	_, ok := got.(WireMap)
	assert.True(t, ok)

	set := Set{"x", "y", "z"}
	env = Pack(nil, nil, nil, set)
	assert.Equal(t, KindWireSet, env.Map.Kind)
	got, err = Unpack(nil, nil, roundTripJSON(t, env), "")
	require.NoError(t, err)
	_, ok = got.(Set)
	assert.True(t, ok)
}

func TestPackUnsupportedType(t *testing.T) {
	ch := make(chan int)
	env := Pack(nil, nil, nil, ch)
	assert.Equal(t, KindUnsupported, env.Map.Kind)

	_, err := Unpack(nil, nil, env, "")
	require.Error(t, err)
	var bridgeErr *errs.Error
	require.ErrorAs(t, err, &bridgeErr)
	assert.Equal(t, errs.UnsupportedType, bridgeErr.Kind)
}
