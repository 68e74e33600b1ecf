package form

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/zjrosen/formflow/internal/validation"
)

// Field is the handle a field collaborator gets from Attach. It carries the
// field's validator spec so callers only pass values.
type Field struct {
	form     *Form
	name     string
	spec     validation.Spec
	detached atomic.Bool
}

// Attach registers name in the focus order and returns its handle. spec is
// checked against the registry up front; an unknown validator is returned as
// an error and nothing is registered. Attaching a name twice returns a second
// handle to the same field.
func (f *Form) Attach(name string, spec validation.Spec) (*Field, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	if name == "" {
		return nil, fmt.Errorf("form: attach: empty field name")
	}
	if err := f.engine.Check(name, spec); err != nil {
		return nil, err
	}
	f.nav.Register(name)
	return &Field{form: f, name: name, spec: spec}, nil
}

// MustAttach is Attach for static setups; it panics on error.
func (f *Form) MustAttach(name string, spec validation.Spec) *Field {
	field, err := f.Attach(name, spec)
	if err != nil {
		panic(err)
	}
	return field
}

// Name returns the field name.
func (fd *Field) Name() string { return fd.name }

// Spec returns the validator spec of the field.
func (fd *Field) Spec() validation.Spec { return fd.spec }

// State returns the current state of the field.
func (fd *Field) State() FieldState {
	return fd.form.GetField(fd.name)
}

// Change is a user-driven value change.
func (fd *Field) Change(value any) error {
	return fd.form.ChangeField(fd.name, value, fd.spec, false)
}

// ChangeAndWait is Change followed by a wait for the validation it started.
// The returned state is the field's state once that validation has been
// written back, or discarded in favour of a newer change.
func (fd *Field) ChangeAndWait(ctx context.Context, value any) (FieldState, error) {
	task, err := fd.form.changeField(fd.name, value, fd.spec, false)
	if err != nil {
		return FieldState{}, err
	}
	if task != nil {
		if _, err := task.Await(ctx); err != nil {
			return FieldState{}, err
		}
	}
	return fd.State(), nil
}

// Seed validates the externally supplied default, or value when there is
// none, without clearing the pristine flag.
func (fd *Field) Seed(value any) error {
	return fd.form.ChangeField(fd.name, value, fd.spec, true)
}

// Focus moves focus to the field.
func (fd *Field) Focus() {
	fd.form.Focus(fd.name)
}

// Detach removes the field from the focus order. Its stored state stays.
func (fd *Field) Detach() {
	if !fd.detached.CompareAndSwap(false, true) {
		return
	}
	fd.form.nav.Deregister(fd.name)
}
