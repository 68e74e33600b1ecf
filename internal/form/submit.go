package form

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/formflow/internal/future"
	"github.com/zjrosen/formflow/internal/log"
	"github.com/zjrosen/formflow/internal/validation"
)

// RegisterFunc hands a deferred completion to the coordinator. It only has an
// effect while the success handler is still running.
type RegisterFunc func(completion future.Settler)

// Handlers are the callbacks of a submit attempt. Every field is optional.
type Handlers struct {
	// OnSubmit runs synchronously at the start of every attempt.
	OnSubmit func()
	// OnSuccess receives the value of every field when no field has an error.
	OnSuccess func(data map[string]any, register RegisterFunc)
	// OnErrors receives the error of every invalid field.
	OnErrors func(errors map[string]any)
}

// AttemptOutcome is where a submit attempt ended up.
type AttemptOutcome int

const (
	// OutcomePending means the attempt has not reached a terminal state.
	OutcomePending AttemptOutcome = iota
	// OutcomeFailed means at least one field was invalid.
	OutcomeFailed
	// OutcomeSucceeded means the success handler ran without registering a
	// completion.
	OutcomeSucceeded
	// OutcomeSettledOK means a registered completion succeeded.
	OutcomeSettledOK
	// OutcomeSettledError means a registered completion failed.
	OutcomeSettledError
	// OutcomeAborted means the pipeline panicked or the form was closed.
	OutcomeAborted
)

var outcomeNames = map[AttemptOutcome]string{
	OutcomePending:      "pending",
	OutcomeFailed:       "failed",
	OutcomeSucceeded:    "succeeded",
	OutcomeSettledOK:    "settled-ok",
	OutcomeSettledError: "settled-error",
	OutcomeAborted:      "aborted",
}

func (o AttemptOutcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Attempt is the handle of one submit call. Callers may ignore it; it exists
// so that tests and front ends can wait for the attempt to finish.
type Attempt struct {
	ID        string
	StartedAt time.Time

	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	outcome AttemptOutcome
	errors  map[string]any
	data    map[string]any
	err     error
}

func newAttempt() *Attempt {
	return &Attempt{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Done is closed when the attempt reaches a terminal outcome.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the attempt finishes or ctx is done.
func (a *Attempt) Wait(ctx context.Context) (AttemptOutcome, error) {
	select {
	case <-a.done:
		return a.Outcome(), nil
	case <-ctx.Done():
		return OutcomePending, ctx.Err()
	}
}

// Outcome returns the current outcome without blocking.
func (a *Attempt) Outcome() AttemptOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outcome
}

// Errors returns the field errors seen by a failed attempt.
func (a *Attempt) Errors() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.errors)
}

// Data returns the values handed to the success handler.
func (a *Attempt) Data() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.data)
}

// Err returns the completion failure of a settled-error attempt or the cause
// of an aborted one.
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// finish records the terminal outcome. Only the first call counts; Done is
// closed separately by release.
func (a *Attempt) finish(outcome AttemptOutcome, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outcome != OutcomePending {
		return
	}
	a.outcome = outcome
	a.err = err
}

func (a *Attempt) release() {
	a.once.Do(func() { close(a.done) })
}

// Coordinator sequences submit attempts: barrier over the tracked tasks,
// aggregation of the stored errors, handlers, and the async-success protocol.
//
// Concurrent attempts are not serialized. A second Submit overwrites the
// submitting flag and submitError of the first one.
type Coordinator struct {
	ctx      context.Context
	store    *Store
	tracker  *Tracker
	handlers Handlers
	publish  func(Event)
	tracer   trace.Tracer

	mu          sync.RWMutex
	submitting  bool
	submitError error
}

// NewCoordinator wires a coordinator. ctx bounds the background work of every
// attempt; cancelling it aborts attempts still waiting.
func NewCoordinator(ctx context.Context, store *Store, tracker *Tracker, handlers Handlers, publish func(Event), tracer trace.Tracer) *Coordinator {
	return &Coordinator{
		ctx:      ctx,
		store:    store,
		tracker:  tracker,
		handlers: handlers,
		publish:  publish,
		tracer:   tracer,
	}
}

// Submitting reports whether an attempt is in flight.
func (c *Coordinator) Submitting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.submitting
}

// SubmitError returns the failure of the last registered completion.
func (c *Coordinator) SubmitError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.submitError
}

// Submit starts an attempt and returns immediately. The tracked tasks are
// snapshotted before Submit returns; tasks started afterwards are not waited on.
func (c *Coordinator) Submit() *Attempt {
	a := newAttempt()

	if c.handlers.OnSubmit != nil {
		if err := safeCall(c.handlers.OnSubmit); err != nil {
			log.ErrorErr(log.CatSubmit, "submit hook panicked", err, "attempt", a.ID)
		}
	}

	c.mu.Lock()
	c.submitting = true
	c.submitError = nil
	c.mu.Unlock()

	pending := c.tracker.Snapshot()
	log.Debug(log.CatSubmit, "submit started", "attempt", a.ID, "pending", len(pending))
	c.emit(EventSubmitStarted, a, nil)

	go c.run(a, pending)
	return a
}

func (c *Coordinator) run(a *Attempt, pending []future.Settler) {
	defer a.release()

	ctx, span := c.tracer.Start(c.ctx, "form.submit", trace.WithAttributes(
		attribute.String("form.attempt", a.ID),
		attribute.Int("form.pending", len(pending)),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := future.Recovered(r)
			log.ErrorErr(log.CatSubmit, "submit pipeline panicked", err, "attempt", a.ID)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			c.settle(false, nil)
			c.emit(EventSubmitErrored, a, func(e *Event) { e.SubmitError = err })
			a.finish(OutcomeAborted, err)
		}
	}()

	if err := future.AllSettled(ctx, pending...); err != nil {
		c.abort(a, span, fmt.Errorf("waiting for validations: %w", err))
		return
	}

	data, errs := collect(c.store.Snapshot())
	a.mu.Lock()
	a.data, a.errors = data, errs
	a.mu.Unlock()

	if len(errs) > 0 {
		span.SetAttributes(attribute.Int("form.invalid", len(errs)))
		c.failed(a, errs)
		return
	}
	c.succeeded(ctx, a, span, data)
}

func (c *Coordinator) failed(a *Attempt, errs map[string]any) {
	log.Debug(log.CatSubmit, "submit failed validation", "attempt", a.ID, "fields", len(errs))
	if c.handlers.OnErrors != nil {
		if err := safeCall(func() { c.handlers.OnErrors(maps.Clone(errs)) }); err != nil {
			log.ErrorErr(log.CatSubmit, "error handler panicked", err, "attempt", a.ID)
		}
	}
	c.settle(false, nil)
	c.emit(EventSubmitFailed, a, func(e *Event) { e.Errors = errs })
	a.finish(OutcomeFailed, nil)
}

func (c *Coordinator) succeeded(ctx context.Context, a *Attempt, span trace.Span, data map[string]any) {
	var (
		regMu      sync.Mutex
		open       = true
		completion future.Settler
	)
	register := func(s future.Settler) {
		regMu.Lock()
		defer regMu.Unlock()
		switch {
		case !open:
			log.Warn(log.CatSubmit, "completion registered after success handler returned, ignored", "attempt", a.ID)
		case isNilSettler(s):
			log.Warn(log.CatSubmit, "nil completion registered, ignored", "attempt", a.ID)
		case completion != nil:
			log.Warn(log.CatSubmit, "completion already registered, ignored", "attempt", a.ID)
		default:
			completion = s
		}
	}

	var handlerErr error
	if c.handlers.OnSuccess != nil {
		handlerErr = safeCall(func() { c.handlers.OnSuccess(maps.Clone(data), register) })
	}

	regMu.Lock()
	open = false
	pending := completion
	regMu.Unlock()

	c.emit(EventSubmitSucceeded, a, func(e *Event) { e.Data = data })

	if handlerErr != nil {
		c.abort(a, span, fmt.Errorf("success handler: %w", handlerErr))
		return
	}
	if pending == nil {
		c.settle(false, nil)
		log.Debug(log.CatSubmit, "submit succeeded", "attempt", a.ID)
		a.finish(OutcomeSucceeded, nil)
		return
	}

	log.Debug(log.CatSubmit, "awaiting registered completion", "attempt", a.ID)
	select {
	case <-pending.Done():
	case <-ctx.Done():
		c.abort(a, span, fmt.Errorf("waiting for completion: %w", ctx.Err()))
		return
	}

	if err := pending.Err(); err != nil {
		log.Debug(log.CatSubmit, "registered completion failed", "attempt", a.ID, "error", err)
		span.SetStatus(codes.Error, err.Error())
		c.settle(true, err)
		c.emit(EventSubmitErrored, a, func(e *Event) { e.SubmitError = err })
		a.finish(OutcomeSettledError, err)
		return
	}
	c.settle(false, nil)
	c.emit(EventSubmitSettled, a, nil)
	a.finish(OutcomeSettledOK, nil)
}

func (c *Coordinator) abort(a *Attempt, span trace.Span, err error) {
	log.ErrorErr(log.CatSubmit, "submit aborted", err, "attempt", a.ID)
	span.RecordError(err)
	span.SetStatus(codes.Error, "aborted")
	c.settle(false, nil)
	c.emit(EventSubmitErrored, a, func(e *Event) { e.SubmitError = err })
	a.finish(OutcomeAborted, err)
}

// settle clears the submitting flag, recording err as submitError when
// setErr is true.
func (c *Coordinator) settle(setErr bool, err error) {
	c.mu.Lock()
	c.submitting = false
	if setErr {
		c.submitError = err
	}
	c.mu.Unlock()
}

func (c *Coordinator) emit(t EventType, a *Attempt, fill func(*Event)) {
	if c.publish == nil {
		return
	}
	e := Event{
		Type:       t,
		Timestamp:  time.Now(),
		AttemptID:  a.ID,
		Submitting: c.Submitting(),
	}
	if fill != nil {
		fill(&e)
	}
	c.publish(e)
}

// collect splits the stored fields into the value of every field and the
// error of every field carrying one.
func collect(fields map[string]FieldState) (data, errs map[string]any) {
	data = make(map[string]any, len(fields))
	errs = make(map[string]any)
	for name, st := range fields {
		data[name] = st.Value
		if validation.Truthy(st.Error) {
			errs[name] = st.Error
		}
	}
	return data, errs
}

// safeCall runs fn and returns a recovered panic as an error.
// isNilSettler reports whether s is nil, including a typed nil such as a
// (*future.Future[T])(nil).
func isNilSettler(s future.Settler) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func safeCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = future.Recovered(r)
		}
	}()
	fn()
	return nil
}
