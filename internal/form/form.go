// Package form coordinates asynchronous validation and submission of a set
// of named fields.
//
// A Form owns five collaborators: the field state Store, the validation
// Engine, the pending-validation Tracker, the submit Coordinator and the
// focus Navigator. Callers talk to the Form; every state change is published
// as an Event on the form's broker.
package form

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/formflow/internal/future"
	"github.com/zjrosen/formflow/internal/log"
	"github.com/zjrosen/formflow/internal/validation"
)

// ErrClosed is returned by operations on a closed form.
var ErrClosed = errors.New("form: closed")

// DefaultErrorClass is the display label used when Config.ErrorClass is empty.
const DefaultErrorClass = "Form-error"

// TracerName is the instrumentation scope of form spans.
const TracerName = "github.com/zjrosen/formflow/internal/form"

// Config configures a Form.
type Config struct {
	Validators map[string]validation.Validator
	// Values are externally supplied defaults, keyed by field name.
	Values map[string]any

	OnSubmit  func()
	OnSuccess func(data map[string]any, register RegisterFunc)
	OnErrors  func(errors map[string]any)

	ErrorClass string
	// DisableTabOnEnter stops Enter from advancing focus; Enter is then
	// ignored.
	DisableTabOnEnter bool

	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
}

// DefaultConfig returns a config with the default error class. The zero
// Config behaves the same.
func DefaultConfig() Config {
	return Config{
		ErrorClass: DefaultErrorClass,
	}
}

// EnterAction is what HandleEnter did.
type EnterAction int

const (
	EnterIgnored EnterAction = iota
	EnterAdvanced
	EnterSubmitted
)

// Context is the snapshot handed to field collaborators.
type Context struct {
	GetField    func(name string) FieldState
	ChangeField func(name string, value any, spec validation.Spec, pristine bool) error
	Focus       func(name string)
	Submit      func() *Attempt

	Submitting  bool
	SubmitError error
	ErrorClass  string
}

// Form is an asynchronous multi-field validation and submission coordinator.
type Form struct {
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	errorClass string
	tabOnEnter bool

	regMu    sync.RWMutex
	registry *validation.Registry

	broker  *Broker
	nav     *Navigator
	store   *Store
	tracker *Tracker
	engine  *Engine
	coord   *Coordinator
}

// New creates a form from cfg.
func New(cfg Config) *Form {
	ctx, cancel := context.WithCancel(context.Background())

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	errorClass := cfg.ErrorClass
	if errorClass == "" {
		errorClass = DefaultErrorClass
	}

	f := &Form{
		ctx:        ctx,
		cancel:     cancel,
		errorClass: errorClass,
		tabOnEnter: !cfg.DisableTabOnEnter,
		registry:   validation.NewRegistry(cfg.Validators),
		broker:     NewBroker(),
		tracker:    NewTracker(),
	}
	f.nav = NewNavigator(f.focusChanged)
	f.store = NewStore(cfg.Values, f.nav.IsFocused, f.broker.Publish)
	f.engine = NewEngine(f.Registry, tracer)
	f.coord = NewCoordinator(ctx, f.store, f.tracker, Handlers{
		OnSubmit:  cfg.OnSubmit,
		OnSuccess: cfg.OnSuccess,
		OnErrors:  cfg.OnErrors,
	}, f.broker.Publish, tracer)

	log.Debug(log.CatForm, "form created", "validators", len(f.registry.Names()))
	return f
}

// SetValidators replaces the validator configuration. Fields validated later
// are checked against the new registry; running validations are unaffected.
func (f *Form) SetValidators(validators map[string]validation.Validator) {
	reg := validation.NewRegistry(validators)

	f.regMu.Lock()
	f.registry = reg
	f.regMu.Unlock()

	log.Info(log.CatForm, "validators replaced", "names", reg.Names())
	f.broker.Publish(Event{
		Type:      EventValidatorsChanged,
		Timestamp: time.Now(),
		Data:      map[string]any{"names": reg.Names()},
	})
}

// SetValues replaces the externally supplied defaults.
func (f *Form) SetValues(values map[string]any) {
	f.store.SetDefaults(values)
}

// Registry returns the current validator registry.
func (f *Form) Registry() *validation.Registry {
	f.regMu.RLock()
	defer f.regMu.RUnlock()
	return f.registry
}

// GetField returns the state of name, falling back to the default state.
func (f *Form) GetField(name string) FieldState {
	return f.store.Read(name)
}

// Fields returns the state of every field written so far.
func (f *Form) Fields() map[string]FieldState {
	return f.store.Snapshot()
}

// ChangeField writes value optimistically as loading, validates it against
// spec and tracks the validation until it settles. When pristine is set and
// a default exists for name, the default replaces value.
//
// An unknown validator name in spec is returned as an error wrapping
// validation.ErrUnknownValidator and leaves the field untouched.
func (f *Form) ChangeField(name string, value any, spec validation.Spec, pristine bool) error {
	_, err := f.changeField(name, value, spec, pristine)
	return err
}

// changeField returns the tracked task, or nil when spec is empty.
func (f *Form) changeField(name string, value any, spec validation.Spec, pristine bool) (*future.Future[struct{}], error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	if err := f.engine.Check(name, spec); err != nil {
		return nil, err
	}
	if pristine {
		if def, ok := f.store.Default(name); ok {
			value = def
		}
	}

	if len(spec) == 0 {
		f.store.Write(name, func(st *FieldState) {
			f.tracker.Begin(name)
			st.Value = value
			st.Status = StatusValid
			st.Pristine = st.Pristine && pristine
		})
		return nil, nil
	}

	task, resolveTask, _ := future.New[struct{}]()
	var (
		gen     uint64
		release func()
	)
	f.store.Write(name, func(st *FieldState) {
		gen = f.tracker.Begin(name)
		release = f.tracker.Track(name, gen, task)
		st.Value = value
		st.Status = StatusLoading
	})

	agg, err := f.engine.Validate(f.ctx, name, value, spec)
	if err != nil {
		// The registry was replaced between Check and Validate.
		f.writeBack(name, gen, err, pristine)
		release()
		resolveTask(struct{}{})
		return nil, err
	}

	go func() {
		defer release()
		defer resolveTask(struct{}{})

		payload, err := agg.Await(f.ctx)
		if err != nil {
			log.Debug(log.CatValidate, "validation abandoned", "field", name, "error", err)
			return
		}
		f.writeBack(name, gen, payload, pristine)
	}()
	return task, nil
}

// writeBack stores the validation result unless a newer change of name
// started in the meantime.
func (f *Form) writeBack(name string, gen uint64, payload any, pristine bool) {
	applied := f.store.Update(name, func(st *FieldState) bool {
		if !f.tracker.IsCurrent(name, gen) {
			return false
		}
		if validation.Truthy(payload) {
			st.Status = StatusInvalid
			st.Error = payload
		} else {
			st.Status = StatusValid
		}
		st.Pristine = st.Pristine && pristine
		return true
	})
	if !applied {
		log.Debug(log.CatValidate, "stale validation discarded", "field", name, "generation", gen)
	}
}

// Focus moves focus to name. name does not have to be a known field.
func (f *Form) Focus(name string) {
	f.nav.Focus(name)
}

// Focused returns the focused field name.
func (f *Form) Focused() string {
	return f.nav.Focused()
}

// SetFieldNames replaces the ordered field names and focuses the first one.
func (f *Form) SetFieldNames(names []string) {
	f.nav.SetFieldNames(names)
}

// FieldNames returns the ordered field names.
func (f *Form) FieldNames() []string {
	return f.nav.Names()
}

// Submit starts a submit attempt. It never blocks on validation and never
// panics; the outcome is reported through the handlers and the returned
// attempt. A closed form returns an attempt already aborted with ErrClosed.
func (f *Form) Submit() *Attempt {
	if f.closed.Load() {
		a := newAttempt()
		a.finish(OutcomeAborted, ErrClosed)
		a.release()
		return a
	}
	return f.coord.Submit()
}

// Submitting reports whether a submit attempt is in flight.
func (f *Form) Submitting() bool {
	return f.coord.Submitting()
}

// SubmitError returns the failure of the last registered completion.
func (f *Form) SubmitError() error {
	return f.coord.SubmitError()
}

// ErrorClass returns the display label for errors.
func (f *Form) ErrorClass() string {
	return f.errorClass
}

// TabOnEnter reports whether Enter advances focus.
func (f *Form) TabOnEnter() bool {
	return f.tabOnEnter
}

// HandleEnter applies the Enter key: focus moves to the next field, or the
// form is submitted when the last field has focus. A focused name that is not
// one of the field names counts as sitting before the first field.
func (f *Form) HandleEnter() (EnterAction, *Attempt) {
	if !f.tabOnEnter {
		return EnterIgnored, nil
	}
	if _, ok := f.nav.Advance(); ok {
		return EnterAdvanced, nil
	}
	return EnterSubmitted, f.Submit()
}

// Pending returns the names of fields with a validation in flight.
func (f *Form) Pending() []string {
	return f.tracker.Pending()
}

// Context returns the snapshot handed to field collaborators.
func (f *Form) Context() Context {
	return Context{
		GetField:    f.GetField,
		ChangeField: f.ChangeField,
		Focus:       f.Focus,
		Submit:      f.Submit,
		Submitting:  f.Submitting(),
		SubmitError: f.SubmitError(),
		ErrorClass:  f.errorClass,
	}
}

// Subscribe returns a channel receiving every form event.
func (f *Form) Subscribe(buffer int) (<-chan Event, func()) {
	return f.broker.Subscribe(buffer)
}

// Close cancels background work and closes every subscription. Running
// validations stop writing back; waiting attempts are aborted.
func (f *Form) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	f.cancel()
	f.broker.Close()
	log.Debug(log.CatForm, "form closed")
	return nil
}

func (f *Form) focusChanged(from, to string) {
	f.broker.Publish(Event{
		Type:      EventFocusChanged,
		Timestamp: time.Now(),
		Field:     to,
		Data:      map[string]any{"from": from},
	})
}
