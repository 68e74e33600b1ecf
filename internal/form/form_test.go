package form

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/formflow/internal/future"
	"github.com/zjrosen/formflow/internal/validation"
)

func newTestForm(t *testing.T, cfg Config) *Form {
	t.Helper()
	f := New(cfg)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func builtinConfig() Config {
	cfg := DefaultConfig()
	cfg.Validators = validation.Builtins()
	return cfg
}

func waitAttempt(t *testing.T, a *Attempt) AttemptOutcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcome, err := a.Wait(ctx)
	require.NoError(t, err)
	return outcome
}

func waitTask(t *testing.T, task *future.Future[struct{}]) {
	t.Helper()
	if task == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := task.Await(ctx)
	require.NoError(t, err)
}

func change(t *testing.T, f *Form, name string, value any, spec validation.Spec) {
	t.Helper()
	task, err := f.changeField(name, value, spec, false)
	require.NoError(t, err)
	waitTask(t, task)
}

func TestNew_Defaults(t *testing.T) {
	f := newTestForm(t, Config{})
	require.Equal(t, DefaultErrorClass, f.ErrorClass())
	require.True(t, f.TabOnEnter())
	require.True(t, newTestForm(t, DefaultConfig()).TabOnEnter())
	require.False(t, newTestForm(t, Config{DisableTabOnEnter: true}).TabOnEnter())
	require.False(t, f.Submitting())
	require.NoError(t, f.SubmitError())
}

func TestGetField_DefaultState(t *testing.T) {
	cfg := builtinConfig()
	cfg.Values = map[string]any{"name": "Ada"}
	f := newTestForm(t, cfg)

	require.Equal(t, FieldState{Value: "Ada", Status: StatusValid, Pristine: true}, f.GetField("name"))
	require.Equal(t, FieldState{Status: StatusValid, Pristine: true}, f.GetField("other"))
}

func TestChangeField_NoValidatorsCreatesNoTask(t *testing.T) {
	f := newTestForm(t, builtinConfig())

	task, err := f.changeField("a", "x", nil, false)
	require.NoError(t, err)
	require.Nil(t, task)
	require.Empty(t, f.Pending())

	st := f.GetField("a")
	require.Equal(t, StatusValid, st.Status)
	require.Equal(t, "x", st.Value)
	require.Nil(t, st.Error)
}

func TestChangeField_PassingValidators(t *testing.T) {
	f := newTestForm(t, builtinConfig())
	change(t, f, "email", "ada@example.com", validation.Spec{"required": true, "email": true})

	st := f.GetField("email")
	require.Equal(t, StatusValid, st.Status)
	require.Nil(t, st.Error)
	require.False(t, st.Pristine)
	require.Empty(t, f.Pending())
}

func TestChangeField_FailingValidator(t *testing.T) {
	f := newTestForm(t, builtinConfig())
	change(t, f, "email", "not-an-email", validation.Spec{"required": true, "email": true})

	st := f.GetField("email")
	require.Equal(t, StatusInvalid, st.Status)
	require.Equal(t, "Invalid email address", st.Error)
}

func TestChangeField_OptimisticLoadingWrite(t *testing.T) {
	g := newGate()
	f := newTestForm(t, Config{Validators: map[string]validation.Validator{"remote": g}})

	task, err := f.changeField("a", "v", validation.Spec{"remote": nil}, false)
	require.NoError(t, err)

	st := f.GetField("a")
	require.Equal(t, StatusLoading, st.Status)
	require.Equal(t, "v", st.Value)
	require.Equal(t, []string{"a"}, f.Pending())

	g.settle(0, "nope")
	waitTask(t, task)
	require.Equal(t, StatusInvalid, f.GetField("a").Status)
	require.Empty(t, f.Pending())
}

func TestChangeField_StaleWriteBackDiscarded(t *testing.T) {
	g := newGate()
	f := newTestForm(t, Config{Validators: map[string]validation.Validator{"remote": g}})
	spec := validation.Spec{"remote": nil}

	first, err := f.changeField("a", "first", spec, false)
	require.NoError(t, err)
	second, err := f.changeField("a", "second", spec, false)
	require.NoError(t, err)

	g.settle(1, nil)
	waitTask(t, second)
	require.Equal(t, StatusValid, f.GetField("a").Status)

	// The older validation finishes last with a failure; it must not win.
	g.settle(0, "stale failure")
	waitTask(t, first)

	st := f.GetField("a")
	require.Equal(t, "second", st.Value)
	require.Equal(t, StatusValid, st.Status)
	require.Nil(t, st.Error)
}

func TestChangeField_UnknownValidatorLeavesStateUntouched(t *testing.T) {
	f := newTestForm(t, builtinConfig())

	err := f.ChangeField("a", "x", validation.Spec{"requird": true}, false)
	require.ErrorIs(t, err, validation.ErrUnknownValidator)

	var unknown *validation.UnknownValidatorError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, []string{"requird"}, unknown.Missing)
	require.Equal(t, "required", unknown.Suggestions["requird"])

	require.Empty(t, f.Fields())
}

func TestChangeField_PristineUsesDefault(t *testing.T) {
	cfg := builtinConfig()
	cfg.Values = map[string]any{"name": "Ada"}
	f := newTestForm(t, cfg)
	spec := validation.Spec{"required": true}

	task, err := f.changeField("name", nil, spec, true)
	require.NoError(t, err)
	waitTask(t, task)

	st := f.GetField("name")
	require.Equal(t, "Ada", st.Value)
	require.Equal(t, StatusValid, st.Status)
	require.True(t, st.Pristine)

	change(t, f, "name", "Grace", spec)
	st = f.GetField("name")
	require.Equal(t, "Grace", st.Value)
	require.False(t, st.Pristine)

	// A field without a default keeps the incoming value.
	task, err = f.changeField("nick", "g", spec, true)
	require.NoError(t, err)
	waitTask(t, task)
	require.Equal(t, "g", f.GetField("nick").Value)
}

func TestSetValidators_ReDerivesRegistry(t *testing.T) {
	f := newTestForm(t, builtinConfig())
	require.Error(t, f.ChangeField("a", "x", validation.Spec{"shout": nil}, false))

	validators := validation.Builtins()
	validators["shout"] = validation.Func(func(context.Context, any, any) validation.Outcome {
		return validation.Fail("too quiet")
	})
	f.SetValidators(validators)

	change(t, f, "a", "x", validation.Spec{"shout": nil})
	require.Equal(t, "too quiet", f.GetField("a").Error)
}

func TestSubmit_SuccessCallsOnSuccessOnce(t *testing.T) {
	var (
		mu        sync.Mutex
		successes []map[string]any
		errCalls  atomic.Int32
		hookCalls atomic.Int32
	)
	cfg := builtinConfig()
	cfg.OnSubmit = func() { hookCalls.Add(1) }
	cfg.OnSuccess = func(data map[string]any, _ RegisterFunc) {
		mu.Lock()
		successes = append(successes, data)
		mu.Unlock()
	}
	cfg.OnErrors = func(map[string]any) { errCalls.Add(1) }
	f := newTestForm(t, cfg)

	change(t, f, "name", "Ada", validation.Spec{"required": true})
	change(t, f, "age", 36, nil)

	a := f.Submit()
	require.Equal(t, OutcomeSucceeded, waitAttempt(t, a))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, successes, 1)
	require.Empty(t, cmp.Diff(map[string]any{"name": "Ada", "age": 36}, successes[0]))
	require.Equal(t, int32(0), errCalls.Load())
	require.Equal(t, int32(1), hookCalls.Load())
	require.False(t, f.Submitting())
}

func TestSubmit_ErrorsCallsOnErrorsOnce(t *testing.T) {
	var (
		mu         sync.Mutex
		errorsSeen []map[string]any
		successes  atomic.Int32
	)
	cfg := builtinConfig()
	cfg.OnSuccess = func(map[string]any, RegisterFunc) { successes.Add(1) }
	cfg.OnErrors = func(errs map[string]any) {
		mu.Lock()
		errorsSeen = append(errorsSeen, errs)
		mu.Unlock()
	}
	f := newTestForm(t, cfg)

	change(t, f, "name", "", validation.Spec{"required": true})
	change(t, f, "email", "ada@example.com", validation.Spec{"email": true})
	change(t, f, "code", "ab", validation.Spec{"min_length": 3})

	a := f.Submit()
	require.Equal(t, OutcomeFailed, waitAttempt(t, a))

	want := map[string]any{
		"name": "This field is required",
		"code": "Must be at least 3 characters",
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errorsSeen, 1)
	require.Empty(t, cmp.Diff(want, errorsSeen[0]))
	require.Empty(t, cmp.Diff(want, a.Errors()))
	require.Equal(t, int32(0), successes.Load())
	require.False(t, f.Submitting())
}

func TestSubmit_BarrierWaitsForPendingValidations(t *testing.T) {
	validators := validation.Builtins()
	validators["slow_min_length"] = validation.Delayed(validators[validation.NameMinLength], 10*time.Millisecond)

	errsCh := make(chan map[string]any, 1)
	cfg := DefaultConfig()
	cfg.Validators = validators
	cfg.OnErrors = func(errs map[string]any) { errsCh <- errs }
	f := newTestForm(t, cfg)

	start := time.Now()
	require.NoError(t, f.ChangeField("a", "", validation.Spec{"required": true}, false))
	require.NoError(t, f.ChangeField("b", "ok", validation.Spec{"slow_min_length": 4}, false))

	a := f.Submit()
	require.True(t, f.Submitting())
	require.Equal(t, OutcomeFailed, waitAttempt(t, a))
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	errs := <-errsCh
	require.Empty(t, cmp.Diff(map[string]any{
		"a": "This field is required",
		"b": "Must be at least 4 characters",
	}, errs))
}

func TestSubmit_BarrierIgnoresTasksStartedLater(t *testing.T) {
	g := newGate()
	later := newGate()
	f := newTestForm(t, Config{Validators: map[string]validation.Validator{"remote": g, "later": later}})

	_, err := f.changeField("a", "x", validation.Spec{"remote": nil}, false)
	require.NoError(t, err)

	a := f.Submit()
	_, err = f.changeField("b", "y", validation.Spec{"later": nil}, false)
	require.NoError(t, err)

	g.settle(0, nil)
	require.Equal(t, OutcomeSucceeded, waitAttempt(t, a))
	require.Equal(t, []string{"b"}, f.Pending())
	require.Equal(t, "y", a.Data()["b"])

	later.settle(0, nil)
}

func TestSubmit_AsyncCompletionSuccess(t *testing.T) {
	completion, resolve, _ := future.New[struct{}]()
	registered := make(chan struct{})

	cfg := DefaultConfig()
	cfg.OnSuccess = func(_ map[string]any, register RegisterFunc) {
		register(completion)
		close(registered)
	}
	f := newTestForm(t, cfg)

	a := f.Submit()
	<-registered
	require.True(t, f.Submitting())
	require.Equal(t, OutcomePending, a.Outcome())

	resolve(struct{}{})
	require.Equal(t, OutcomeSettledOK, waitAttempt(t, a))
	require.False(t, f.Submitting())
	require.NoError(t, f.SubmitError())
}

func TestSubmit_AsyncCompletionFailure(t *testing.T) {
	saveErr := errors.New("save failed")
	cfg := DefaultConfig()
	cfg.OnSuccess = func(_ map[string]any, register RegisterFunc) {
		register(future.Go(context.Background(), func(context.Context) (struct{}, error) {
			time.Sleep(5 * time.Millisecond)
			return struct{}{}, saveErr
		}))
	}
	f := newTestForm(t, cfg)

	a := f.Submit()
	require.Equal(t, OutcomeSettledError, waitAttempt(t, a))
	require.ErrorIs(t, f.SubmitError(), saveErr)
	require.ErrorIs(t, a.Err(), saveErr)
	require.False(t, f.Submitting())

	// The next attempt clears the previous submit error before it starts waiting.
	next := f.Submit()
	require.NoError(t, f.SubmitError())
	require.Equal(t, OutcomeSettledError, waitAttempt(t, next))
	require.ErrorIs(t, f.SubmitError(), saveErr)
}

func TestSubmit_LateRegistrationIgnored(t *testing.T) {
	var saved RegisterFunc
	cfg := DefaultConfig()
	cfg.OnSuccess = func(_ map[string]any, register RegisterFunc) { saved = register }
	f := newTestForm(t, cfg)

	a := f.Submit()
	require.Equal(t, OutcomeSucceeded, waitAttempt(t, a))
	require.False(t, f.Submitting())

	pending, _, _ := future.New[struct{}]()
	saved(pending)
	require.False(t, f.Submitting())
	require.Equal(t, OutcomeSucceeded, a.Outcome())
}

func TestSubmit_HandlerPanicsAreContained(t *testing.T) {
	cfg := builtinConfig()
	cfg.OnSubmit = func() { panic("hook") }
	cfg.OnErrors = func(map[string]any) { panic("errors handler") }
	f := newTestForm(t, cfg)
	change(t, f, "a", "", validation.Spec{"required": true})

	require.NotPanics(t, func() {
		require.Equal(t, OutcomeFailed, waitAttempt(t, f.Submit()))
	})
	require.False(t, f.Submitting())

	cfg = DefaultConfig()
	cfg.OnSuccess = func(map[string]any, RegisterFunc) { panic("success handler") }
	f = newTestForm(t, cfg)
	a := f.Submit()
	require.Equal(t, OutcomeAborted, waitAttempt(t, a))
	require.ErrorIs(t, a.Err(), future.ErrPanic)
	require.False(t, f.Submitting())
	require.NoError(t, f.SubmitError(), "submit error is only set by a registered completion")
}

func TestSubmit_NilRegistrationsIgnored(t *testing.T) {
	for name, completion := range map[string]future.Settler{
		"untyped nil": nil,
		"typed nil":   (*future.Future[struct{}])(nil),
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.OnSuccess = func(_ map[string]any, register RegisterFunc) {
				register(completion)
			}
			f := newTestForm(t, cfg)

			a := f.Submit()
			require.Equal(t, OutcomeSucceeded, waitAttempt(t, a))
			require.NoError(t, a.Err())
			require.NoError(t, f.SubmitError())
			require.False(t, f.Submitting())
		})
	}
}

func TestSubmit_TwiceBeforeBarrierSettles(t *testing.T) {
	g := newGate()
	f := newTestForm(t, Config{Validators: map[string]validation.Validator{"remote": g}})

	_, err := f.changeField("a", "draft", validation.Spec{"remote": nil}, false)
	require.NoError(t, err)
	first := f.Submit()

	change(t, f, "a", "fixed", nil)
	var second *Attempt
	require.NotPanics(t, func() { second = f.Submit() })

	require.Equal(t, OutcomeSucceeded, waitAttempt(t, second))
	require.Empty(t, cmp.Diff(map[string]any{"a": "fixed"}, second.Data()))

	g.settle(0, "draft rejected")
	require.Equal(t, OutcomeSucceeded, waitAttempt(t, first))
	require.Equal(t, StatusValid, f.GetField("a").Status)
}

func TestClose_AbortsWaitingAttempt(t *testing.T) {
	g := newGate()
	f := New(Config{Validators: map[string]validation.Validator{"remote": g}})

	_, err := f.changeField("a", "x", validation.Spec{"remote": nil}, false)
	require.NoError(t, err)
	a := f.Submit()

	require.NoError(t, f.Close())
	require.Equal(t, OutcomeAborted, waitAttempt(t, a))
	require.ErrorIs(t, a.Err(), context.Canceled)

	require.ErrorIs(t, f.Close(), ErrClosed)
	require.ErrorIs(t, f.ChangeField("a", "y", nil, false), ErrClosed)
	closed := f.Submit()
	require.Equal(t, OutcomeAborted, waitAttempt(t, closed))
	require.ErrorIs(t, closed.Err(), ErrClosed)
}

func TestFocus_OnlyFocusedFieldReportsFocus(t *testing.T) {
	f := newTestForm(t, builtinConfig())
	f.SetFieldNames([]string{"a", "b", "c"})
	change(t, f, "a", "1", nil)

	f.Focus("b")
	require.True(t, f.GetField("b").Focused)
	require.False(t, f.GetField("a").Focused)
	require.False(t, f.GetField("c").Focused)

	focused := 0
	for _, st := range f.Fields() {
		if st.Focused {
			focused++
		}
	}
	require.Zero(t, focused, "only a has been written and b holds focus")
}

func TestHandleEnter_AdvancesThenSubmits(t *testing.T) {
	submitted := make(chan struct{}, 1)
	cfg := DefaultConfig()
	cfg.OnSubmit = func() { submitted <- struct{}{} }
	f := newTestForm(t, cfg)
	f.SetFieldNames([]string{"a", "b"})
	require.Equal(t, "a", f.Focused())

	action, a := f.HandleEnter()
	require.Equal(t, EnterAdvanced, action)
	require.Nil(t, a)
	require.Equal(t, "b", f.Focused())

	action, a = f.HandleEnter()
	require.Equal(t, EnterSubmitted, action)
	require.NotNil(t, a)
	<-submitted
	waitAttempt(t, a)
}

func TestHandleEnter_StaleFocusAdvancesToFirst(t *testing.T) {
	f := newTestForm(t, DefaultConfig())
	f.SetFieldNames([]string{"a", "b"})
	f.Focus("gone")

	action, _ := f.HandleEnter()
	require.Equal(t, EnterAdvanced, action)
	require.Equal(t, "a", f.Focused())
}

func TestHandleEnter_Disabled(t *testing.T) {
	f := newTestForm(t, Config{DisableTabOnEnter: true})
	f.SetFieldNames([]string{"a", "b"})

	action, a := f.HandleEnter()
	require.Equal(t, EnterIgnored, action)
	require.Nil(t, a)
	require.Equal(t, "a", f.Focused())
}

func TestAttach_RegistersAndDetaches(t *testing.T) {
	f := newTestForm(t, builtinConfig())

	name := f.MustAttach("name", validation.Spec{"required": true})
	email := f.MustAttach("email", validation.Spec{"email": true})
	require.Equal(t, []string{"name", "email"}, f.FieldNames())
	require.Equal(t, "name", f.Focused())

	email.Focus()
	require.True(t, email.State().Focused)

	require.NoError(t, name.Change(""))
	require.Eventually(t, func() bool {
		return name.State().Status == StatusInvalid
	}, time.Second, time.Millisecond)

	name.Detach()
	name.Detach()
	require.Equal(t, []string{"email"}, f.FieldNames())
	require.Equal(t, StatusInvalid, f.GetField("name").Status, "detaching keeps state")
}

func TestField_ChangeAndWait(t *testing.T) {
	f := newTestForm(t, builtinConfig())
	field := f.MustAttach("name", validation.Spec{"required": true, "min_length": 3})

	st, err := field.ChangeAndWait(context.Background(), "ab")
	require.NoError(t, err)
	require.Equal(t, StatusInvalid, st.Status)
	require.Equal(t, "Must be at least 3 characters", st.Error)
	require.False(t, st.Pristine)

	st, err = field.ChangeAndWait(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, StatusValid, st.Status)

	require.NoError(t, f.Close())
	_, err = field.ChangeAndWait(context.Background(), "abcd")
	require.ErrorIs(t, err, ErrClosed)
}

func TestAttach_UnknownValidator(t *testing.T) {
	f := newTestForm(t, builtinConfig())

	_, err := f.Attach("name", validation.Spec{"nope": nil})
	require.ErrorIs(t, err, validation.ErrUnknownValidator)
	require.Empty(t, f.FieldNames())

	require.Panics(t, func() { f.MustAttach("name", validation.Spec{"nope": nil}) })
}

func TestContext_Snapshot(t *testing.T) {
	cfg := builtinConfig()
	cfg.ErrorClass = "field-error"
	f := newTestForm(t, cfg)

	fc := f.Context()
	require.Equal(t, "field-error", fc.ErrorClass)
	require.False(t, fc.Submitting)
	require.NoError(t, fc.SubmitError)

	require.NoError(t, fc.ChangeField("a", "x", nil, false))
	fc.Focus("a")
	require.True(t, fc.GetField("a").Focused)
	waitAttempt(t, fc.Submit())
}
