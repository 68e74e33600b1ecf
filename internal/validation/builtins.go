package validation

import (
	"context"
	"fmt"
	"net/mail"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Built-in validator names.
const (
	NameRequired  = "required"
	NameMinLength = "min_length"
	NameMaxLength = "max_length"
	NamePattern   = "pattern"
	NameEmail     = "email"
	NameOneOf     = "one_of"
	NameUnique    = "unique"
)

// Builtins returns the synchronous built-in validators keyed by name.
// The async "unique" validator needs a store and is added by the caller.
func Builtins() map[string]Validator {
	return map[string]Validator{
		NameRequired:  Func(required),
		NameMinLength: Func(minLength),
		NameMaxLength: Func(maxLength),
		NamePattern:   Func(pattern),
		NameEmail:     Func(email),
		NameOneOf:     Func(oneOf),
	}
}

// Delayed wraps v so that every outcome settles after d. Used to simulate
// remote validators.
func Delayed(v Validator, d time.Duration) Validator {
	return Func(func(ctx context.Context, value any, opts any) Outcome {
		return Async(ctx, func(ctx context.Context) (any, error) {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			out := v.Validate(ctx, value, opts)
			if !out.IsDeferred() {
				return out.Payload(), nil
			}
			return out.Future().Await(ctx)
		})
	})
}

// DelayAll wraps every validator in the mapping with Delayed.
func DelayAll(validators map[string]Validator, d time.Duration) map[string]Validator {
	if d <= 0 {
		return validators
	}
	out := make(map[string]Validator, len(validators))
	for name, v := range validators {
		out[name] = Delayed(v, d)
	}
	return out
}

func required(_ context.Context, value any, opts any) Outcome {
	if enabled, ok := opts.(bool); ok && !enabled {
		return Pass()
	}
	if isEmpty(value) {
		return Fail(message(opts, "This field is required"))
	}
	return Pass()
}

func minLength(_ context.Context, value any, opts any) Outcome {
	n, err := intOption(opts, "min")
	if err != nil {
		return Fail(fmt.Errorf("%s: %w", NameMinLength, err))
	}
	if utf8.RuneCountInString(stringValue(value)) < n {
		return Fail(message(opts, fmt.Sprintf("Must be at least %d characters", n)))
	}
	return Pass()
}

func maxLength(_ context.Context, value any, opts any) Outcome {
	n, err := intOption(opts, "max")
	if err != nil {
		return Fail(fmt.Errorf("%s: %w", NameMaxLength, err))
	}
	if utf8.RuneCountInString(stringValue(value)) > n {
		return Fail(message(opts, fmt.Sprintf("Must be at most %d characters", n)))
	}
	return Pass()
}

var patternCache sync.Map // string -> *regexp.Regexp

func pattern(_ context.Context, value any, opts any) Outcome {
	expr := stringOption(opts, "pattern")
	if expr == "" {
		return Fail(fmt.Errorf("%s: missing pattern option", NamePattern))
	}
	re, err := compilePattern(expr)
	if err != nil {
		return Fail(fmt.Errorf("%s: %w", NamePattern, err))
	}
	s := stringValue(value)
	if s == "" {
		// Emptiness is the business of "required".
		return Pass()
	}
	if !re.MatchString(s) {
		return Fail(message(opts, "Invalid format"))
	}
	return Pass()
}

func compilePattern(expr string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(expr); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	patternCache.Store(expr, re)
	return re, nil
}

func email(_ context.Context, value any, opts any) Outcome {
	s := strings.TrimSpace(stringValue(value))
	if s == "" {
		return Pass()
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return Fail(message(opts, "Invalid email address"))
	}
	return Pass()
}

func oneOf(_ context.Context, value any, opts any) Outcome {
	var choices []any
	switch o := opts.(type) {
	case []any:
		choices = o
	case []string:
		for _, c := range o {
			choices = append(choices, c)
		}
	case map[string]any:
		if list, ok := o["values"].([]any); ok {
			choices = list
		}
	}
	if len(choices) == 0 {
		return Fail(fmt.Errorf("%s: no choices configured", NameOneOf))
	}
	if isEmpty(value) {
		return Pass()
	}
	s := stringValue(value)
	for _, c := range choices {
		if fmt.Sprint(c) == s {
			return Pass()
		}
	}
	return Fail(message(opts, "Must be one of the allowed values"))
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func stringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// message returns opts["message"] when opts is a map carrying one.
func message(opts any, fallback string) string {
	if m, ok := opts.(map[string]any); ok {
		if s, ok := m["message"].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func stringOption(opts any, key string) string {
	switch o := opts.(type) {
	case string:
		return o
	case map[string]any:
		if s, ok := o[key].(string); ok {
			return s
		}
	}
	return ""
}

// intOption accepts a bare number or a map carrying key. Config decoders
// hand numbers over as int, int64 or float64.
func intOption(opts any, key string) (int, error) {
	raw := opts
	if m, ok := opts.(map[string]any); ok {
		raw = m[key]
	}
	switch n := raw.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case uint64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("option %q must be a number, got %T", key, raw)
	}
}
