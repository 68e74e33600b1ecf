package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultUniqueTTL is how long a uniqueness answer is memoized.
const DefaultUniqueTTL = 30 * time.Second

// Lookup answers whether a value was already submitted for a field.
type Lookup interface {
	Exists(ctx context.Context, field, value string) (bool, error)
}

// Unique is an asynchronous validator that fails when the value has already
// been submitted. Options name the stored field to check: either a bare
// string or {"field": ..., "message": ...}.
//
// Answers are cached for the configured TTL so that re-validating an
// unchanged value does not hit the store again.
type Unique struct {
	lookup Lookup
	cache  *cache.Cache
}

// NewUnique creates the validator. ttl <= 0 uses DefaultUniqueTTL.
func NewUnique(lookup Lookup, ttl time.Duration) *Unique {
	if ttl <= 0 {
		ttl = DefaultUniqueTTL
	}
	return &Unique{
		lookup: lookup,
		cache:  cache.New(ttl, 2*ttl),
	}
}

// Validate implements Validator.
func (u *Unique) Validate(ctx context.Context, value any, opts any) Outcome {
	field := stringOption(opts, "field")
	if field == "" {
		return Fail(fmt.Errorf("%s: missing field option", NameUnique))
	}
	s := strings.TrimSpace(stringValue(value))
	if s == "" {
		return Pass()
	}

	key := cacheKey(field, s)
	if taken, ok := u.cache.Get(key); ok {
		if taken.(bool) {
			return Fail(message(opts, "Already taken"))
		}
		return Pass()
	}

	return Async(ctx, func(ctx context.Context) (any, error) {
		taken, err := u.lookup.Exists(ctx, field, s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", NameUnique, err)
		}
		u.cache.SetDefault(key, taken)
		if taken {
			return message(opts, "Already taken"), nil
		}
		return nil, nil
	})
}

// Forget drops the cached answer for a field/value pair, e.g. after the value
// has been stored.
func (u *Unique) Forget(field, value string) {
	u.cache.Delete(cacheKey(field, strings.TrimSpace(value)))
}

func cacheKey(field, value string) string {
	return field + "\x00" + value
}
