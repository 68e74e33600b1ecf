// Package validation holds the validator registry, the validator contract and
// the built-in validators a form can reference by name.
package validation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ErrUnknownValidator is returned when a field references a validator name
// that is not registered. It is a programming error, not a user-facing
// validation failure.
var ErrUnknownValidator = errors.New("validator not defined in the form")

// Validator checks a single value. opts are the validator-specific options
// taken from the field's Spec.
type Validator interface {
	Validate(ctx context.Context, value any, opts any) Outcome
}

// Func adapts a plain function to the Validator interface.
type Func func(ctx context.Context, value any, opts any) Outcome

// Validate implements Validator.
func (f Func) Validate(ctx context.Context, value any, opts any) Outcome {
	return f(ctx, value, opts)
}

// Spec maps validator names to their options for one field.
type Spec map[string]any

// Names returns the validator names in sorted order.
func (s Spec) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

// UnknownValidatorError lists the names a Spec referenced that the registry
// does not know, with close matches where one exists.
type UnknownValidatorError struct {
	Missing     []string
	Suggestions map[string]string
}

func (e *UnknownValidatorError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "validator(s) `%s` were not defined in the form", strings.Join(e.Missing, ", "))
	var hints []string
	for _, name := range e.Missing {
		if s, ok := e.Suggestions[name]; ok {
			hints = append(hints, fmt.Sprintf("%s -> %s", name, s))
		}
	}
	if len(hints) > 0 {
		fmt.Fprintf(&sb, " (did you mean: %s)", strings.Join(hints, ", "))
	}
	return sb.String()
}

func (e *UnknownValidatorError) Unwrap() error {
	return ErrUnknownValidator
}

// Registry is an immutable name -> Validator lookup. Replace it wholesale
// when the configuration changes.
type Registry struct {
	validators map[string]Validator
	names      []string
}

// NewRegistry builds a registry from the given mapping. Nil validators are
// skipped.
func NewRegistry(validators map[string]Validator) *Registry {
	r := &Registry{validators: make(map[string]Validator, len(validators))}
	for name, v := range validators {
		if v == nil || strings.TrimSpace(name) == "" {
			continue
		}
		r.validators[name] = v
	}
	r.names = slices.Sorted(maps.Keys(r.validators))
	return r
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.names)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Lookup returns the validator registered under name.
func (r *Registry) Lookup(name string) (Validator, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.validators[name]
	return v, ok
}

// Check fails with an *UnknownValidatorError when spec references a name
// that is not registered.
func (r *Registry) Check(spec Spec) error {
	var missing []string
	for _, name := range spec.Names() {
		if !r.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	suggestions := make(map[string]string)
	for _, name := range missing {
		if s := r.closest(name); s != "" {
			suggestions[name] = s
		}
	}
	return &UnknownValidatorError{Missing: missing, Suggestions: suggestions}
}

// closest returns the registered name within edit distance 2 of name.
func (r *Registry) closest(name string) string {
	best, bestDist := "", 3
	for _, candidate := range r.Names() {
		if d := levenshtein.ComputeDistance(name, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}
