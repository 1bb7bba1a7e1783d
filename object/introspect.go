// Package object implements the object codec: turning a bridgeable Go
// value's methods and properties into wire-callable and wire-readable
// surface, and turning a remote object's surface into a dynamic local
// Proxy.
package object

import (
	"context"
	"reflect"
	"strings"
	"sync"

	"github.com/bridgekit/bridge/errs"
)

func errNotReadable(name string) error {
	return errs.New(errs.NoSuchMethod, "no such property %q", name)
}

// Introspectable lets a bridgeable type declare its own method and property
// surface explicitly, overriding the reflect-based default of describeType.
// Most types never need this; it exists for cases (embedded sync.Mutex,
// unexported-but-bridgeable helper fields) where the default exported-method
// enumeration picks up more — or less — than intended.
type Introspectable interface {
	BridgeMethods() []string
	BridgeProperties() []string
}

// PropertyGetter lets a bridgeable type reject a property read — a getter
// that throws — something a plain exported Go field can never do. When a
// type implements it, BridgeGet answers every Get; fields are then never
// read directly.
type PropertyGetter interface {
	BridgeGet(name string) (any, error)
}

// MethodDescriptor is the reflect-derived calling convention for one method:
// whether it wants a leading context.Context, and whether it returns a
// trailing error alongside its result.
type MethodDescriptor struct {
	Name       string
	Method     reflect.Method
	WantsCtx   bool
	HasError   bool
	NumResults int // results excluding a trailing error
}

var describeCache sync.Map // reflect.Type -> *typeDescriptor

type typeDescriptor struct {
	methods    map[string]MethodDescriptor
	properties []string
}

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errorType = reflect.TypeOf((*error)(nil)).Elem()

// describeType reflects over t once and caches the result, mirroring
// capnweb-go's InterfaceRegistry.parseInterface/parseMethod (interface.go) —
// generalized from "parse a registered interface" to "parse any bridgeable
// struct's exported method set", since this bridges concrete objects rather
// than declared interfaces.
func describeType(t reflect.Type) *typeDescriptor {
	if cached, ok := describeCache.Load(t); ok {
		return cached.(*typeDescriptor)
	}
	d := &typeDescriptor{methods: make(map[string]MethodDescriptor)}
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !m.IsExported() {
			continue
		}
		if desc, ok := describeMethod(m); ok {
			d.methods[m.Name] = desc
		}
	}

	elem := t
	for elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}
	if elem.Kind() == reflect.Struct {
		for i := 0; i < elem.NumField(); i++ {
			f := elem.Field(i)
			if f.IsExported() && propertyTag(f) != "-" {
				d.properties = append(d.properties, propertyName(f))
			}
		}
	}

	actual, _ := describeCache.LoadOrStore(t, d)
	return actual.(*typeDescriptor)
}

// describeMethod parses one method's calling convention, grounded on
// interface.go's parseMethod: detect a leading context.Context parameter,
// detect a trailing error return.
func describeMethod(m reflect.Method) (MethodDescriptor, bool) {
	mt := m.Type // includes receiver as In(0)
	wantsCtx := mt.NumIn() > 1 && mt.In(1) == contextType

	numOut := mt.NumOut()
	hasError := numOut > 0 && mt.Out(numOut-1).Implements(errorType)
	numResults := numOut
	if hasError {
		numResults--
	}
	if numResults > 1 {
		// Bridge calls return a single value; methods with more than one
		// non-error result aren't a bridgeable shape.
		return MethodDescriptor{}, false
	}
	return MethodDescriptor{
		Name:       m.Name,
		Method:     m,
		WantsCtx:   wantsCtx,
		HasError:   hasError,
		NumResults: numResults,
	}, true
}

func propertyTag(f reflect.StructField) string {
	if tag, ok := f.Tag.Lookup("bridge"); ok {
		if i := strings.IndexByte(tag, ','); i >= 0 {
			return tag[:i]
		}
		return tag
	}
	return ""
}

func propertyName(f reflect.StructField) string {
	if tag := propertyTag(f); tag != "" {
		return tag
	}
	return f.Name
}

// Methods lists the callable method names exposed for obj: either the
// type's own Introspectable.BridgeMethods(), or every exported method
// describeMethod accepts.
func Methods(obj any) []string {
	if ix, ok := obj.(Introspectable); ok {
		return ix.BridgeMethods()
	}
	d := describeType(reflect.TypeOf(obj))
	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	return names
}

// Properties lists the readable property names exposed for obj.
func Properties(obj any) []string {
	if ix, ok := obj.(Introspectable); ok {
		return ix.BridgeProperties()
	}
	return describeType(reflect.TypeOf(obj)).properties
}

// HasMethod reports whether obj exposes a callable method named name.
func HasMethod(obj any, name string) bool {
	if ix, ok := obj.(Introspectable); ok {
		for _, m := range ix.BridgeMethods() {
			if m == name {
				return true
			}
		}
		return false
	}
	_, ok := describeType(reflect.TypeOf(obj)).methods[name]
	return ok
}

// Get reads a named property off obj, honoring PropertyGetter when present
// so a bridgeable type can reject a read the way a JS getter can throw.
func Get(obj any, name string) (any, error) {
	if pg, ok := obj.(PropertyGetter); ok {
		return pg.BridgeGet(name)
	}
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, errNotReadable(name)
	}
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.IsExported() && propertyName(f) == name {
			return rv.Field(i).Interface(), nil
		}
	}
	return nil, errNotReadable(name)
}
