package object

import (
	"reflect"
	"sync"
)

// dirty is a sentinel that never compares equal (by ==) to any real
// property value, used to force the first Diff call after a property is
// registered to report it as changed.
var dirty = &struct{ _ byte }{}

// ValueCache remembers the last value seen for each of an object's
// properties, by reference/scalar identity, so repeated flushes only report
// properties that actually changed since the previous one.
type ValueCache struct {
	mu     sync.Mutex
	values map[string]any
}

// NewValueCache returns a cache with every name seeded dirty, so the first
// Diff unconditionally reports all of them.
func NewValueCache(names []string) *ValueCache {
	c := &ValueCache{values: make(map[string]any, len(names))}
	for _, name := range names {
		c.values[name] = dirty
	}
	return c
}

// Diff compares value against the cached entry for name and reports whether
// it changed, updating the cache as a side effect. A name with no cache
// entry (a property added after construction) is treated as new.
func (c *ValueCache) Diff(name string, value any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.values[name]
	c.values[name] = value
	return !ok || !sameIdentity(prev, value)
}

// Invalidate forces the next Diff for name to report changed regardless of
// whether the value's identity actually moved — used when a watched value's
// internal state mutated in place without the top-level reference changing.
func (c *ValueCache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] = dirty
}

func sameIdentity(a, b any) bool {
	if a == dirty || b == dirty {
		return false
	}
	av, bv := a, b
	if !isComparable(av) || !isComparable(bv) {
		return false // can't prove identity sameness, so treat as changed
	}
	return av == bv
}

func isComparable(v any) bool {
	if v == nil {
		return true
	}
	return reflect.TypeOf(v).Comparable()
}
