package magic

// Unsubscribe removes a previously installed listener or watcher. Calling it
// more than once is a no-op.
type Unsubscribe func()

// AddBridge records that peer now holds a reference to this object.
func (r *Record) AddBridge(peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Bridges[peer] = struct{}{}
}

// RemoveBridge drops peer's membership, e.g. once it has closed.
func (r *Record) RemoveBridge(peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Bridges, peer)
}

// BridgeList returns a snapshot of the bridges currently holding this
// object, safe to iterate after the lock is released.
func (r *Record) BridgeList() []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Peer, 0, len(r.Bridges))
	for p := range r.Bridges {
		out = append(out, p)
	}
	return out
}

// AddListener installs fn for the named event. On a closed record this is a
// no-op unsubscribe.
func (r *Record) AddListener(name string, fn Listener) Unsubscribe {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Closed {
		return func() {}
	}
	id := r.nextSubID
	r.nextSubID++
	r.listeners[name] = append(r.listeners[name], listenerEntry{id: id, fn: fn})
	return func() { r.removeListener(name, id) }
}

func (r *Record) removeListener(name string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.listeners[name]
	for i, e := range entries {
		if e.id == id {
			r.listeners[name] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Listeners returns a snapshot of the callbacks installed for name.
func (r *Record) Listeners(name string) []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.listeners[name]
	out := make([]Listener, len(entries))
	for i, e := range entries {
		out[i] = e.fn
	}
	return out
}

// AddWatcher installs fn to fire whenever the named property's value
// changes identity from what was last observed. On a closed record this is
// a no-op unsubscribe.
func (r *Record) AddWatcher(name string, fn Watcher) Unsubscribe {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Closed {
		return func() {}
	}
	wl, ok := r.watchers[name]
	if !ok {
		wl = &watcherList{lastSeen: dirtySentinel}
		r.watchers[name] = wl
	}
	id := r.nextSubID
	r.nextSubID++
	wl.entries = append(wl.entries, watcherEntry{id: id, fn: fn})
	return func() { r.removeWatcher(name, id) }
}

func (r *Record) removeWatcher(name string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wl, ok := r.watchers[name]
	if !ok {
		return
	}
	for i, e := range wl.entries {
		if e.id == id {
			wl.entries = append(wl.entries[:i], wl.entries[i+1:]...)
			return
		}
	}
}

// InvalidateWatcher forces the next poll of name to re-fire watchers even if
// the property's identity has not changed (used by Update).
func (r *Record) InvalidateWatcher(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wl, ok := r.watchers[name]; ok {
		wl.lastSeen = dirtySentinel
	}
}

// PollWatchers compares value against the cached last-seen value for name
// and, if different (or the cache was invalidated), fires every watcher and
// updates the cache. Safe to call even when no watchers are installed.
func (r *Record) PollWatchers(name string, value any) {
	r.mu.Lock()
	wl, ok := r.watchers[name]
	if !ok {
		r.mu.Unlock()
		return
	}
	if wl.lastSeen == value {
		r.mu.Unlock()
		return
	}
	wl.lastSeen = value
	fns := make([]Watcher, len(wl.entries))
	for i, e := range wl.entries {
		fns[i] = e.fn
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(value)
	}
}

// WatchedNames returns the property names with at least one watcher
// currently installed.
func (r *Record) WatchedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.watchers))
	for name, wl := range r.watchers {
		if len(wl.entries) > 0 {
			out = append(out, name)
		}
	}
	return out
}

// ProxyGetProp returns the locally cached value for a proxy's property, as
// last mirrored by a 'changed' message. ok is false if the record isn't a
// proxy or the property has never been received.
func (r *Record) ProxyGetProp(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Proxy == nil {
		return nil, false
	}
	v, ok := r.Proxy.Props[name]
	return v, ok
}

// ProxySetProp mirrors an incoming property update into the proxy's local
// cache. A no-op on non-proxy records.
func (r *Record) ProxySetProp(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Proxy == nil {
		return
	}
	r.Proxy.Props[name] = value
}

// ProxyMarkErrored flags that the last update of name carried a thrown
// error rather than a value, so reading it should surface the error.
func (r *Record) ProxyMarkErrored(name string, errored bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Proxy == nil {
		return
	}
	if errored {
		r.Proxy.Errors[name] = true
	} else {
		delete(r.Proxy.Errors, name)
	}
}

// ProxyIsErrored reports whether the cached value for name is a thrown
// error.
func (r *Record) ProxyIsErrored(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Proxy != nil && r.Proxy.Errors[name]
}

// MarkClosed sets the one-shot closed flag and clears bridge membership.
// Listeners and watchers are left installed so a final 'close' event can
// still be delivered to them before the caller tears them down.
func (r *Record) MarkClosed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = true
	r.Bridges = make(map[Peer]struct{})
}

// IsClosed reports the one-shot closed flag.
func (r *Record) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Closed
}

// TeardownSubscriptions removes every listener and watcher, used once a
// record's close event has fired.
func (r *Record) TeardownSubscriptions() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = make(map[string][]listenerEntry)
	r.watchers = make(map[string]*watcherList)
}

// dirtySentinel never compares equal to any real value — the same
// sentinel-dirtyValue trick object.ValueCache uses, reused here for watcher
// caches.
var dirtySentinel = &struct{ _ byte }{}
