package object

import (
	"context"
	"reflect"

	"github.com/bridgekit/bridge/errs"
)

// Call invokes obj's method named name with args, honoring the calling
// convention describeMethod detected: an optional leading context.Context,
// and an optional trailing error return. This is the receiving side of the
// reflection dance capnweb-go's ReflectionStubGenerator.createMethodImpl
// (reflection.go) performs on the calling side — there, a stub's method is
// reflectively invoked to produce an RPC call; here, an RPC call is
// reflectively dispatched onto the target method.
func Call(ctx context.Context, obj any, name string, args []any) (any, error) {
	if ix, ok := obj.(Introspectable); ok {
		allowed := false
		for _, m := range ix.BridgeMethods() {
			if m == name {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, errs.New(errs.NoSuchMethod, "no such method %q", name)
		}
	}

	rv := reflect.ValueOf(obj)
	d := describeType(rv.Type())
	desc, ok := d.methods[name]
	if !ok {
		return nil, errs.New(errs.NoSuchMethod, "no such method %q", name)
	}

	mt := desc.Method.Type
	wantIn := mt.NumIn() - 1 // excluding receiver
	if desc.WantsCtx {
		wantIn--
	}
	if len(args) != wantIn {
		return nil, errs.New(errs.NoSuchMethod, "method %q expects %d arguments, got %d", name, wantIn, len(args))
	}

	in := make([]reflect.Value, 0, mt.NumIn()-1)
	paramIdx := 1
	if desc.WantsCtx {
		if ctx == nil {
			ctx = context.Background()
		}
		in = append(in, reflect.ValueOf(ctx))
		paramIdx++
	}
	for i, arg := range args {
		paramType := mt.In(paramIdx + i)
		cv, err := convertArg(arg, paramType)
		if err != nil {
			return nil, errs.WithPath(errs.New(errs.UnsupportedType, "argument %d to %q: %v", i, name, err), name)
		}
		in = append(in, cv)
	}

	method := rv.MethodByName(name)
	out := method.Call(in)

	var result any
	if desc.NumResults == 1 {
		result = out[0].Interface()
	}
	if desc.HasError {
		errVal := out[len(out)-1]
		if !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
	}
	return result, nil
}

// convertArg coerces a codec-unpacked value (concrete types like float64,
// []any, map[string]any, or an already-matching type) into t, the way JSON
// unmarshaling into a typed field would, since bridge arguments arrive
// already structurally decoded by the data codec rather than re-parsed.
func convertArg(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if rv.Type().ConvertibleTo(t) && isNumericKind(rv.Kind()) && isNumericKind(t.Kind()) {
		return rv.Convert(t), nil
	}
	if t.Kind() == reflect.Interface && rv.Type().Implements(t) {
		return rv, nil
	}
	if t.Kind() == reflect.Ptr && rv.Kind() != reflect.Ptr {
		elem, err := convertArg(value, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	}
	return reflect.Value{}, errs.New(errs.UnsupportedType, "cannot use %T as %s", value, t)
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
