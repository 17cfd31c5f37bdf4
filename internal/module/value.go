package module

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// ErrNotCallable is returned by Call for values that cannot be invoked.
var ErrNotCallable = errors.New("value is not callable")

// Callable is implemented by values with their own call behavior.
type Callable interface {
	Call(ctx context.Context, args ...Value) (Value, error)
}

// Func adapts a plain function to Callable.
type Func func(ctx context.Context, args ...Value) (Value, error)

// Call implements Callable.
func (f Func) Call(ctx context.Context, args ...Value) (Value, error) {
	return f(ctx, args...)
}

// Call invokes v with args. Callable values and Func are called directly;
// other Go functions (for example ones bound by interpreted source modules)
// are called through reflection. A trailing error result is returned as the
// error; otherwise the first result, if any, is the value.
func Call(ctx context.Context, v Value, args ...Value) (Value, error) {
	switch fn := v.(type) {
	case Callable:
		return fn.Call(ctx, args...)
	case func(context.Context, ...Value) (Value, error):
		return fn(ctx, args...)
	case nil:
		return nil, fmt.Errorf("module: call nil: %w", ErrNotCallable)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("module: call %T: %w", v, ErrNotCallable)
	}
	rt := rv.Type()
	if !rt.IsVariadic() && rt.NumIn() != len(args) {
		return nil, fmt.Errorf("module: call %T: want %d args, got %d", v, rt.NumIn(), len(args))
	}
	if rt.IsVariadic() && len(args) < rt.NumIn()-1 {
		return nil, fmt.Errorf("module: call %T: want at least %d args, got %d", v, rt.NumIn()-1, len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var want reflect.Type
		if rt.IsVariadic() && i >= rt.NumIn()-1 {
			want = rt.In(rt.NumIn() - 1).Elem()
		} else {
			want = rt.In(i)
		}
		if arg == nil {
			in[i] = reflect.Zero(want)
			continue
		}
		av := reflect.ValueOf(arg)
		if !av.Type().AssignableTo(want) {
			if !av.Type().ConvertibleTo(want) {
				return nil, fmt.Errorf("module: call %T: arg %d is %T, want %s", v, i, arg, want)
			}
			av = av.Convert(want)
		}
		in[i] = av
	}
	out := rv.Call(in)
	errType := reflect.TypeOf((*error)(nil)).Elem()
	if n := len(out); n > 0 && rt.Out(n-1) == errType {
		if !out[n-1].IsNil() {
			return nil, out[n-1].Interface().(error)
		}
		out = out[:n-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}
