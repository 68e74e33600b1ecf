// Package future provides a small deferred-result primitive used by the
// validation engine, the pending-validation tracker and the submission
// coordinator.
//
// A Future settles exactly once, either with a value or with an error. The
// first call to resolve or reject wins; later calls are ignored. Waiters
// observe settlement through Done, which is closed on settlement.
package future

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPanic wraps a value recovered from a panicking callback.
var ErrPanic = errors.New("future: recovered panic")

// Settler is anything that settles once and can report failure afterwards.
// The submission barrier and the async-success protocol only need this view.
type Settler interface {
	Done() <-chan struct{}
	Err() error
}

// Future is a deferred result of type T.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// New returns a pending Future together with its resolve and reject functions.
func New[T any]() (f *Future[T], resolve func(T), reject func(error)) {
	f = &Future[T]{done: make(chan struct{})}
	return f, f.resolve, f.reject
}

// Resolved returns a Future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f, resolve, _ := New[T]()
	resolve(v)
	return f
}

// Rejected returns a Future already settled with err.
func Rejected[T any](err error) *Future[T] {
	f, _, reject := New[T]()
	reject(err)
	return f
}

// Go runs fn on its own goroutine and settles the returned Future with its
// result. A panic inside fn rejects the Future with an error wrapping ErrPanic.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f, resolve, reject := New[T]()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				reject(Recovered(r))
			}
		}()
		v, err := fn(ctx)
		if err != nil {
			reject(err)
			return
		}
		resolve(v)
	}()
	return f
}

// Recovered converts a recovered panic value into an error wrapping ErrPanic.
func Recovered(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", ErrPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrPanic, r)
}

func (f *Future[T]) resolve(v T) {
	f.once.Do(func() {
		f.value = v
		close(f.done)
	})
}

func (f *Future[T]) reject(err error) {
	if err == nil {
		err = errors.New("future: rejected with nil error")
	}
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed once the Future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the Future has settled.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the rejection error, or nil when the Future resolved or is
// still pending.
func (f *Future[T]) Err() error {
	if !f.Settled() {
		return nil
	}
	return f.err
}

// Result returns the settled value and error without blocking. ok is false
// while the Future is pending.
func (f *Future[T]) Result() (v T, ok bool, err error) {
	if !f.Settled() {
		return v, false, nil
	}
	return f.value, true, f.err
}

// Await blocks until the Future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AllSettled blocks until every settler has settled, regardless of outcome.
// Individual failures are absorbed; the only error is ctx.Err().
func AllSettled(ctx context.Context, settlers ...Settler) error {
	for _, s := range settlers {
		if s == nil {
			continue
		}
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
