// Package config implements fail-open environment loading: a value that is
// missing keeps its default, and a value that fails to parse or validate is
// replaced by the default with a warning the caller can log and count.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Result is the outcome of loading one environment variable.
type Result[T any] struct {
	Key   string
	Value T

	// Raw is the rejected input when FallbackApplied is true.
	Raw string

	// Warning explains why the default was used. Empty unless
	// FallbackApplied is true.
	Warning         string
	FallbackApplied bool
}

// Load reads key, converts it with parse and checks it with validate. An
// unset or blank variable yields def without a warning. validate may be nil.
func Load[T any](key string, def T, parse func(string) (T, error), validate func(T) error) Result[T] {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return Result[T]{Key: key, Value: def}
	}

	v, err := parse(raw)
	if err == nil && validate != nil {
		err = validate(v)
	}
	if err != nil {
		return Result[T]{
			Key:             key,
			Value:           def,
			Raw:             raw,
			Warning:         fmt.Sprintf("invalid %s=%q: %v, falling back to default %v", key, raw, err, def),
			FallbackApplied: true,
		}
	}
	return Result[T]{Key: key, Value: v}
}

// LoadString loads a string checked by validate.
func LoadString(key, def string, validate func(string) error) Result[string] {
	return Load(key, def, func(s string) (string, error) { return s, nil }, validate)
}

// LoadInt loads a base-10 integer.
func LoadInt(key string, def int, validate func(int) error) Result[int] {
	return Load(key, def, func(s string) (int, error) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid integer format")
		}
		return n, nil
	}, validate)
}

// LoadDuration loads a time.ParseDuration string such as "90s".
func LoadDuration(key string, def time.Duration, validate func(time.Duration) error) Result[time.Duration] {
	return Load(key, def, time.ParseDuration, validate)
}

// LoadBool accepts the strconv.ParseBool spellings.
func LoadBool(key string, def bool) Result[bool] {
	return Load(key, def, strconv.ParseBool, nil)
}

// LoadList splits a comma separated value, dropping blank entries. A value
// with no entries falls back to def.
func LoadList(key string, def []string) Result[[]string] {
	return Load(key, def, func(s string) ([]string, error) {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no entries")
		}
		return out, nil
	}, nil)
}
