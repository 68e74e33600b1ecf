package form

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/formflow/internal/future"
	"github.com/zjrosen/formflow/internal/log"
	"github.com/zjrosen/formflow/internal/validation"
)

// Engine runs the validators of one field and folds their outcomes into a
// single payload: nil when every validator passed, otherwise the payload of
// the first failure to become observable.
//
// Synchronous outcomes are observed in sorted validator-name order while the
// validators are invoked; deferred outcomes are observed in completion order.
// A failure short-circuits the aggregate, later failures are dropped.
type Engine struct {
	registry func() *validation.Registry
	tracer   trace.Tracer
}

// NewEngine creates an engine reading the current registry through registry.
func NewEngine(registry func() *validation.Registry, tracer trace.Tracer) *Engine {
	return &Engine{registry: registry, tracer: tracer}
}

// Check fails when spec references a validator the registry does not know.
func (e *Engine) Check(name string, spec validation.Spec) error {
	if err := e.registry().Check(spec); err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	return nil
}

// Validate starts every validator in spec against value. The returned future
// never rejects: rejected or panicking validators surface as the payload.
func (e *Engine) Validate(ctx context.Context, name string, value any, spec validation.Spec) (*future.Future[any], error) {
	if len(spec) == 0 {
		return future.Resolved[any](nil), nil
	}
	reg := e.registry()
	if err := reg.Check(spec); err != nil {
		return nil, fmt.Errorf("field %q: %w", name, err)
	}

	ctx, span := e.tracer.Start(ctx, "form.validate", trace.WithAttributes(
		attribute.String("form.field", name),
		attribute.Int("form.validators", len(spec)),
	))

	agg, resolve, _ := future.New[any]()
	names := spec.Names()

	var remaining atomic.Int32
	remaining.Store(int32(len(names)))
	settle := func(validator string, payload any) {
		if validation.Truthy(payload) {
			log.Debug(log.CatValidate, "validator failed", "field", name, "validator", validator)
			resolve(payload)
		}
		if remaining.Add(-1) == 0 {
			resolve(nil)
		}
	}

	for _, vn := range names {
		v, _ := reg.Lookup(vn)
		out := invoke(ctx, v, value, spec[vn])
		if !out.IsDeferred() {
			settle(vn, out.Payload())
			continue
		}
		go func(vn string, f *future.Future[any]) {
			<-f.Done()
			payload, _, err := f.Result()
			if err != nil {
				payload = err
			}
			settle(vn, payload)
		}(vn, out.Future())
	}

	go func() {
		<-agg.Done()
		payload, _, _ := agg.Result()
		span.SetAttributes(attribute.Bool("form.valid", !validation.Truthy(payload)))
		span.End()
	}()

	return agg, nil
}

// invoke calls v, turning a panic into a failed outcome.
func invoke(ctx context.Context, v validation.Validator, value any, opts any) (out validation.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = validation.Fail(future.Recovered(r))
		}
	}()
	return v.Validate(ctx, value, opts)
}
