package validation

import (
	"context"
	"reflect"

	"github.com/zjrosen/formflow/internal/future"
)

// Outcome is what a validator returns: either an immediate payload or a
// deferred computation that eventually produces one.
//
// A payload that is not Truthy means the value passed. Any truthy payload
// is the failure and is reported as the field's error unchanged.
type Outcome struct {
	payload  any
	deferred *future.Future[any]
}

// Pass is the immediate passing outcome.
func Pass() Outcome {
	return Outcome{}
}

// Fail is an immediate failure carrying payload. A falsy payload passes.
func Fail(payload any) Outcome {
	return Outcome{payload: payload}
}

// Deferred wraps a pending result. A rejected future counts as a failure
// whose payload is the rejection error.
func Deferred(f *future.Future[any]) Outcome {
	if f == nil {
		return Pass()
	}
	return Outcome{deferred: f}
}

// Async runs fn on its own goroutine and returns a deferred outcome.
func Async(ctx context.Context, fn func(ctx context.Context) (any, error)) Outcome {
	return Deferred(future.Go(ctx, fn))
}

// IsDeferred reports whether the outcome still has to settle.
func (o Outcome) IsDeferred() bool {
	return o.deferred != nil
}

// Payload returns the immediate payload. It is meaningless for deferred
// outcomes.
func (o Outcome) Payload() any {
	return o.payload
}

// Future returns the pending result of a deferred outcome, or nil.
func (o Outcome) Future() *future.Future[any] {
	return o.deferred
}

// Truthy reports whether v counts as a failure payload. nil, false, the
// empty string, numeric zero, nil errors and empty collections are falsy.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case error:
		return t != nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	default:
		return true
	}
}
