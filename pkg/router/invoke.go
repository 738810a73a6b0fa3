package router

import "fmt"

// Typed invokers adapt plain Go functions to Invoker. Each checks the bound
// argument count and asserts argument types; a nil argument becomes the zero
// value of the parameter type.

// Invoke0 adapts a method without parameters.
func Invoke0(fn func(*Call) error) Invoker {
	return func(call *Call, args []any) error {
		if len(args) != 0 {
			return countMismatch("", len(args), 0)
		}
		return fn(call)
	}
}

// Invoke1 adapts a one-parameter method.
func Invoke1[A any](fn func(*Call, A) error) Invoker {
	return func(call *Call, args []any) error {
		if len(args) != 1 {
			return countMismatch("", len(args), 1)
		}
		a, err := argAt[A](args, 0)
		if err != nil {
			return err
		}
		return fn(call, a)
	}
}

// Invoke2 adapts a two-parameter method.
func Invoke2[A, B any](fn func(*Call, A, B) error) Invoker {
	return func(call *Call, args []any) error {
		if len(args) != 2 {
			return countMismatch("", len(args), 2)
		}
		a, err := argAt[A](args, 0)
		if err != nil {
			return err
		}
		b, err := argAt[B](args, 1)
		if err != nil {
			return err
		}
		return fn(call, a, b)
	}
}

// Invoke3 adapts a three-parameter method.
func Invoke3[A, B, C any](fn func(*Call, A, B, C) error) Invoker {
	return func(call *Call, args []any) error {
		if len(args) != 3 {
			return countMismatch("", len(args), 3)
		}
		a, err := argAt[A](args, 0)
		if err != nil {
			return err
		}
		b, err := argAt[B](args, 1)
		if err != nil {
			return err
		}
		c, err := argAt[C](args, 2)
		if err != nil {
			return err
		}
		return fn(call, a, b, c)
	}
}

// Invoke4 adapts a four-parameter method.
func Invoke4[A, B, C, D any](fn func(*Call, A, B, C, D) error) Invoker {
	return func(call *Call, args []any) error {
		if len(args) != 4 {
			return countMismatch("", len(args), 4)
		}
		a, err := argAt[A](args, 0)
		if err != nil {
			return err
		}
		b, err := argAt[B](args, 1)
		if err != nil {
			return err
		}
		c, err := argAt[C](args, 2)
		if err != nil {
			return err
		}
		d, err := argAt[D](args, 3)
		if err != nil {
			return err
		}
		return fn(call, a, b, c, d)
	}
}

func argAt[T any](args []any, i int) (T, error) {
	var zero T
	v := args[i]
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, &RouteError{
			Code:    CodeCoercionFailure,
			Message: fmt.Sprintf("argument %d is %T, handler expects %T", i, v, zero),
			arg:     i + 1,
		}
	}
	return t, nil
}
