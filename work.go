package asyncbridge

import (
	"fmt"
	"reflect"
)

var (
	awaitableType = reflect.TypeOf((*Awaitable)(nil)).Elem()
	loopPtrType   = reflect.TypeOf((*Loop)(nil))
)

// workFactory produces the awaitable for one dispatch. It is invoked on the
// loop goroutine.
type workFactory func(l *Loop) Awaitable

// prepareWork validates work and binds args, without scheduling anything.
//
// Accepted shapes:
//   - an [Awaitable]: an already in-flight operation; args must be empty.
//   - a func whose single return type implements [Awaitable], optionally
//     taking *[Loop] as its first parameter (injected by the dispatcher),
//     with remaining parameters bound from args. Variadic funcs are
//     supported.
//
// Anything else, including funcs that return plain values, fails with
// [*UsageError] here, before any loop is started or any task is scheduled.
func prepareWork(work any, args []any) (workFactory, error) {
	if work == nil {
		return nil, &UsageError{Message: `asyncbridge: work must not be nil`}
	}

	if p, ok := work.(Awaitable); ok {
		if len(args) > 0 {
			return nil, &UsageError{Message: `asyncbridge: arguments cannot be combined with an in-flight awaitable`}
		}
		return func(*Loop) Awaitable { return p }, nil
	}

	v := reflect.ValueOf(work)
	t := v.Type()

	if t.Kind() != reflect.Func {
		return nil, &UsageError{Message: fmt.Sprintf(`asyncbridge: work of type %T is neither an awaitable nor a func producing one`, work)}
	}
	if v.IsNil() {
		// A typed-nil func would pass the kind check and panic on Call.
		return nil, &UsageError{Message: fmt.Sprintf(`asyncbridge: work func of type %s is nil`, t)}
	}
	if t.NumOut() != 1 || !t.Out(0).Implements(awaitableType) {
		return nil, &UsageError{Message: fmt.Sprintf(`asyncbridge: func %s does not return an awaitable`, t)}
	}

	// The loop parameter, if declared, is injected rather than bound.
	offset := 0
	if t.NumIn() > 0 && t.In(0) == loopPtrType {
		offset = 1
	}

	if err := checkArgs(t, offset, args); err != nil {
		return nil, err
	}

	return func(l *Loop) Awaitable {
		in := make([]reflect.Value, 0, offset+len(args))
		if offset == 1 {
			in = append(in, reflect.ValueOf(l))
		}
		for i, arg := range args {
			in = append(in, argValue(t, offset+i, arg))
		}
		out := v.Call(in)
		p, _ := out[0].Interface().(Awaitable)
		return p
	}, nil
}

// checkArgs verifies arity and assignability of args against the func's
// non-injected parameters.
func checkArgs(t reflect.Type, offset int, args []any) error {
	want := t.NumIn() - offset

	if t.IsVariadic() {
		if len(args) < want-1 {
			return &UsageError{Message: fmt.Sprintf(`asyncbridge: func %s requires at least %d argument(s), got %d`, t, want-1, len(args))}
		}
	} else if len(args) != want {
		return &UsageError{Message: fmt.Sprintf(`asyncbridge: func %s requires %d argument(s), got %d`, t, want, len(args))}
	}

	for i, arg := range args {
		pt := paramType(t, offset+i)
		if arg == nil {
			if !nilable(pt) {
				return &UsageError{Message: fmt.Sprintf(`asyncbridge: argument %d: nil is not assignable to %s`, i, pt)}
			}
			continue
		}
		if at := reflect.TypeOf(arg); !at.AssignableTo(pt) {
			return &UsageError{Message: fmt.Sprintf(`asyncbridge: argument %d: %s is not assignable to %s`, i, at, pt)}
		}
	}

	return nil
}

// paramType returns the parameter type at index i, unrolling the variadic
// tail to its element type.
func paramType(t reflect.Type, i int) reflect.Type {
	if t.IsVariadic() && i >= t.NumIn()-1 {
		return t.In(t.NumIn() - 1).Elem()
	}
	return t.In(i)
}

// argValue converts one bound argument for reflect.Call, substituting the
// typed zero value for nil.
func argValue(t reflect.Type, i int, arg any) reflect.Value {
	pt := paramType(t, i)
	if arg == nil {
		return reflect.Zero(pt)
	}
	v := reflect.ValueOf(arg)
	if v.Type() != pt {
		// Assignable but not identical, e.g. a concrete type bound to an
		// interface parameter.
		converted := reflect.New(pt).Elem()
		converted.Set(v)
		return converted
	}
	return v
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice, reflect.UnsafePointer:
		return true
	default:
		return false
	}
}
