// Package magic attaches hidden per-object metadata — local identity,
// listener/watcher lists, bridge membership, and (for proxies) the remote
// identity and property cache — to arbitrary bridgeable objects.
//
// A dynamic-language implementation can hang this off a non-enumerable
// property on the object itself. Go has no such hook, so this is a side
// table keyed by object identity instead.
package magic

import (
	"reflect"
	"sync"

	"github.com/bridgekit/bridge/errs"
)

// LocalID identifies an object within the peer that created it.
type LocalID uint64

// Peer is the subset of bridge.State that a Record needs to fan out
// lifecycle notifications to every bridge an object has been shared over.
type Peer interface {
	MarkDirty(id LocalID, prop string)
	EmitClose(id LocalID)
	EmitEvent(id LocalID, name string, payload any)
}

// Listener is a named-event callback, as installed by AddListener.
type Listener func(payload any)

// Watcher is a property-change callback, as installed by AddWatcher.
type Watcher func(value any)

type listenerEntry struct {
	id uint64
	fn Listener
}

type watcherEntry struct {
	id uint64
	fn Watcher
}

type watcherList struct {
	lastSeen any
	entries  []watcherEntry
}

// ProxyFields holds the metadata that only exists on client-side proxies.
type ProxyFields struct {
	RemoteID   LocalID
	Methods    []string
	PropNames  []string
	Errors     map[string]bool
	Props      map[string]any
}

// Record is the metadata slot attached to one bridgeable object.
type Record struct {
	mu sync.Mutex

	LocalID LocalID
	Closed  bool
	Bridges map[Peer]struct{}

	listeners   map[string][]listenerEntry
	watchers    map[string]*watcherList
	nextSubID   uint64

	// Proxy is non-nil exactly when this record belongs to a client-side
	// stand-in rather than a server-owned object.
	Proxy *ProxyFields

	// ShareID is non-empty exactly when this record belongs to a shared
	// constant rather than a live bridgeable object.
	ShareID string
}

func newRecord(id LocalID) *Record {
	return &Record{
		LocalID:   id,
		Bridges:   make(map[Peer]struct{}),
		listeners: make(map[string][]listenerEntry),
		watchers:  make(map[string]*watcherList),
	}
}

// Store is a process-wide registry of class marks and per-instance records.
// The zero value is not usable; use NewStore or the package-level Default.
type Store struct {
	mu          sync.Mutex
	classMarks  map[reflect.Type]bool
	instances   map[any]*Record
	byLocalID   map[LocalID]any
	nextLocalID LocalID
	shared      map[string]any
	sharedOwner map[string]string // share id -> registering namespace, for duplicate diagnostics
}

// NewStore creates an independent magic store. Most programs use Default.
func NewStore() *Store {
	return &Store{
		classMarks:  make(map[reflect.Type]bool),
		instances:   make(map[any]*Record),
		byLocalID:   make(map[LocalID]any),
		shared:      make(map[string]any),
		sharedOwner: make(map[string]string),
		nextLocalID: 1,
	}
}

// Default is the process-wide store used by the package-level helpers below.
var Default = NewStore()

func identityKey(obj any) (any, error) {
	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func:
		if rv.IsNil() {
			return nil, errs.New(errs.NotBridgeable, "nil value is not bridgeable")
		}
		return obj, nil
	default:
		return nil, errs.New(errs.NotBridgeable, "bridgeable objects must be referenced by pointer, got %T", obj)
	}
}

// BridgifyClass marks every instance of obj's type (now or later) as
// bridgeable. Idempotent. obj is typically a pointer to a zero-value
// instance used only to capture its type.
func (s *Store) BridgifyClass(obj any) {
	t := reflect.TypeOf(obj)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classMarks[t] = true
}

// BridgifyObject makes a single instance bridgeable, assigning a LocalID if
// it does not already have one. Idempotent.
func (s *Store) BridgifyObject(obj any) (*Record, error) {
	key, err := identityKey(obj)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.instances[key]; ok {
		return r, nil
	}
	r := newRecord(s.nextLocalID)
	s.nextLocalID++
	s.instances[key] = r
	s.byLocalID[r.LocalID] = obj
	return r, nil
}

// ByLocalID resolves an owned object back from the LocalID it was assigned
// when first bridgified, used by a bridge to invert an outgoing packedId.
func (s *Store) ByLocalID(id LocalID) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.byLocalID[id]
	return obj, ok
}

// classMarked reports whether obj's exact dynamic type was marked via
// BridgifyClass; a class marked through a pointer matches only pointers of
// that type, not values of its pointee type.
func (s *Store) classMarked(obj any) bool {
	t := reflect.TypeOf(obj)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classMarks[t]
}

// GetInstanceMagic returns obj's record, lazily bridgifying it if its class
// was marked but the instance was not yet seen. Fails with NotBridgeable if
// neither the instance nor its class has ever been marked.
func (s *Store) GetInstanceMagic(obj any) (*Record, error) {
	key, err := identityKey(obj)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	r, ok := s.instances[key]
	s.mu.Unlock()
	if ok {
		return r, nil
	}
	if !s.classMarked(obj) {
		return nil, errs.New(errs.NotBridgeable, "%T has not been bridgified", obj)
	}
	return s.BridgifyObject(obj)
}

// IsBridgeable reports whether obj already has, or is eligible to lazily
// get, a magic record — without creating one as a side effect.
func (s *Store) IsBridgeable(obj any) bool {
	key, err := identityKey(obj)
	if err != nil {
		return false
	}
	s.mu.Lock()
	_, ok := s.instances[key]
	s.mu.Unlock()
	return ok || s.classMarked(obj)
}

// MakeProxyMagic builds the record for a freshly fabricated client-side
// proxy of the object the remote peer owns under remoteID, and registers it
// under proxyObj's identity so later GetInstanceMagic calls on the same
// proxy value find it.
func (s *Store) MakeProxyMagic(proxyObj any, remoteID LocalID, methods, propNames []string) (*Record, error) {
	key, err := identityKey(proxyObj)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.instances[key]; ok {
		return r, nil
	}
	r := newRecord(s.nextLocalID)
	s.nextLocalID++
	r.Proxy = &ProxyFields{
		RemoteID:  remoteID,
		Methods:   methods,
		PropNames: propNames,
		Errors:    make(map[string]bool),
		Props:     make(map[string]any),
	}
	s.instances[key] = r
	return r, nil
}

// ShareData registers values under globally unique names "<namespace>.<key>"
// so they round-trip across the wire as a name instead of as data.
// Re-registering the same name with an identical value is a no-op;
// re-registering with a different value fails with DuplicateShareId.
func (s *Store) ShareData(table map[string]any, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range table {
		id := key
		if namespace != "" {
			id = namespace + "." + key
		}
		if existing, ok := s.shared[id]; ok {
			if !sameValue(existing, value) {
				return errs.New(errs.DuplicateShareID, "share id %q already registered by %q", id, s.sharedOwner[id])
			}
			continue
		}
		s.shared[id] = value
		s.sharedOwner[id] = namespace
	}
	return nil
}

func sameValue(a, b any) bool {
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.Kind() == reflect.Func || bv.Kind() == reflect.Func {
		return av.Pointer() == bv.Pointer()
	}
	return a == b
}

// ShareID returns the registered name for value, if any. Used by the codec
// to classify a value as a shared constant during mapping.
func (s *Store) ShareID(value any) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range s.shared {
		if sameValue(v, value) {
			return id, true
		}
	}
	return "", false
}

// SharedValue resolves a share id back to its registered value.
func (s *Store) SharedValue(id string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.shared[id]
	if !ok {
		return nil, errs.New(errs.InvalidShareID, "unknown share id %q", id)
	}
	return v, nil
}

// Package-level convenience wrappers over Default, mirroring capnweb-go's
// DefaultRegistry / RegisterInterface pattern (interface.go).

func BridgifyClass(obj any)                      { Default.BridgifyClass(obj) }
func BridgifyObject(obj any) (*Record, error)    { return Default.BridgifyObject(obj) }
func GetInstanceMagic(obj any) (*Record, error)  { return Default.GetInstanceMagic(obj) }
func IsBridgeable(obj any) bool                  { return Default.IsBridgeable(obj) }
func ShareData(table map[string]any, namespace string) error {
	return Default.ShareData(table, namespace)
}
func ByLocalID(id LocalID) (any, bool) { return Default.ByLocalID(id) }
