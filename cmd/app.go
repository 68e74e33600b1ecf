package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/zjrosen/formflow/internal/config"
	"github.com/zjrosen/formflow/internal/form"
	"github.com/zjrosen/formflow/internal/form/persistence"
	"github.com/zjrosen/formflow/internal/future"
	"github.com/zjrosen/formflow/internal/log"
	"github.com/zjrosen/formflow/internal/store"
	"github.com/zjrosen/formflow/internal/tracing"
	"github.com/zjrosen/formflow/internal/validation"
)

// appOptions selects the pieces a command needs.
type appOptions struct {
	// save stores successful submissions through the async-success protocol.
	save bool
	// eventsDir enables the JSONL event log when non-empty.
	eventsDir string
	// watch re-derives the validators whenever the config file changes.
	watch bool
}

// app is a form wired to the configured store, tracer and event log.
type app struct {
	cfg     config.Config
	form    *form.Form
	db      *store.Store
	tracing *tracing.Provider
	events  *persistence.EventLogger

	followDone chan struct{}
}

// defaultEventsDir keeps the event log next to the submission database.
func defaultEventsDir(c config.Config) string {
	return filepath.Dir(c.Store.Path)
}

func newApp(ctx context.Context, c config.Config, opts appOptions) (_ *app, err error) {
	a := &app{cfg: c}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.tracing, err = tracing.Setup(ctx, tracing.Config{
		Exporter: c.Tracing.Exporter,
		Endpoint: c.Tracing.Endpoint,
	})
	if err != nil {
		return nil, err
	}

	a.db, err = store.Open(ctx, c.Store.Path)
	if err != nil {
		return nil, err
	}

	validators := c.Validators(a.db)
	if err := c.Form.Check(validators); err != nil {
		return nil, err
	}

	fc := form.Config{
		Validators:        validators,
		Values:            c.Form.Values(),
		ErrorClass:        c.Form.ErrorClass,
		DisableTabOnEnter: !c.Form.TabOnEnter,
		Tracer:            a.tracing.Tracer(form.TracerName),
	}
	if opts.save {
		fc.OnSuccess = saveSubmission(ctx, a.db, c.Form.Title, c.Form.Secrets())
	}
	a.form = form.New(fc)

	if opts.eventsDir != "" {
		a.events, err = persistence.NewEventLogger(opts.eventsDir, c.Form.Secrets()...)
		if err != nil {
			return nil, err
		}
		ch, _ := a.form.Subscribe(256)
		a.followDone = make(chan struct{})
		go func() {
			defer close(a.followDone)
			a.events.Follow(ch)
		}()
	}

	if opts.watch && loader != nil && loader.Path() != "" {
		loader.Watch(func(next config.Config, err error) {
			if err != nil {
				return
			}
			a.form.SetValidators(next.Validators(a.db))
		})
	}

	return a, nil
}

// saveSubmission registers the store write as the attempt's completion, so
// a failing write surfaces as the form's submit error.
func saveSubmission(ctx context.Context, db *store.Store, formName string, skip []string) func(map[string]any, form.RegisterFunc) {
	return func(data map[string]any, register form.RegisterFunc) {
		register(future.Go(ctx, func(ctx context.Context) (store.Submission, error) {
			sub, err := db.Save(ctx, formName, data, skip...)
			if err != nil {
				return store.Submission{}, fmt.Errorf("saving submission: %w", err)
			}
			log.Info(log.CatStore, "submission saved", "id", sub.ID, "form", formName)
			return sub, nil
		}))
	}
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.form != nil {
		errs = append(errs, a.form.Close())
	}
	if a.followDone != nil {
		<-a.followDone
	}
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.tracing != nil {
		errs = append(errs, a.tracing.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// validatorNames lists every validator the config can reference.
func validatorNames(c config.Config) []string {
	var lookup validation.Lookup = noLookup{}
	return validation.NewRegistry(c.Validators(lookup)).Names()
}

// noLookup stands in for the store when only the validator names matter.
type noLookup struct{}

func (noLookup) Exists(context.Context, string, string) (bool, error) { return false, nil }
