package cache

import (
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultKeyMaxLength is the longest key accepted unless configured otherwise.
const DefaultKeyMaxLength = 255

// KeyRules configures [ValidateKey].
type KeyRules struct {
	// MaxLength is the maximum number of characters. Zero means
	// [DefaultKeyMaxLength].
	MaxLength int
	// MaxBytes is the maximum length of the UTF-8 encoded key. Zero means
	// no byte limit.
	MaxBytes int
	// InvalidChars lists characters that must not appear in a key.
	InvalidChars string
}

// ValueRules configures [ValidateValue].
type ValueRules struct {
	// DisallowPrimitives rejects booleans, numbers and strings.
	DisallowPrimitives bool
}

// PatternRules configures [ValidatePattern].
type PatternRules struct {
	// Wildcards lists the tokens a pattern may start or end with.
	// Defaults to "*".
	Wildcards []string
	// Regex treats patterns as regular expressions. The start/end wildcard
	// rule does not apply; the pattern must compile instead.
	Regex bool
}

// ValidateKey fails if key is blank, too long in characters or bytes, or holds
// a forbidden character.
func ValidateKey(key string, rules KeyRules) error {
	if strings.TrimSpace(key) == "" {
		return validationErrorf("key must not be empty")
	}
	maxLength := rules.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultKeyMaxLength
	}
	if n := utf8.RuneCountInString(key); n > maxLength {
		return validationErrorf("key is too long: %d characters, maximum is %d", n, maxLength)
	}
	if rules.MaxBytes > 0 && len(key) > rules.MaxBytes {
		return validationErrorf("key is too long: %d bytes, maximum is %d", len(key), rules.MaxBytes)
	}
	if i := strings.IndexAny(key, rules.InvalidChars); i >= 0 {
		r, _ := utf8.DecodeRuneInString(key[i:])
		return validationErrorf("key contains invalid character %q", r)
	}
	return nil
}

// ValidateValue fails if v is nil, a nil pointer, map, slice, func, channel or
// interface, or a primitive when rules disallow primitives.
func ValidateValue(v any, rules ValueRules) error {
	if isNil(v) {
		return validationErrorf("value must not be nil")
	}
	if rules.DisallowPrimitives && isPrimitive(v) {
		return validationErrorf("primitive values are not allowed: %T", v)
	}
	return nil
}

// ValidatePattern fails if pattern is blank, or, unless rules.Regex is set,
// if it neither starts nor ends with one of the wildcards.
func ValidatePattern(pattern string, rules PatternRules) error {
	if strings.TrimSpace(pattern) == "" {
		return validationErrorf("pattern must not be empty")
	}
	if rules.Regex {
		if _, err := regexp.Compile(pattern); err != nil {
			return validationErrorf("pattern is not a valid regular expression: %w", err)
		}
		return nil
	}
	wildcards := rules.Wildcards
	if len(wildcards) == 0 {
		wildcards = []string{"*"}
	}
	for _, w := range wildcards {
		if strings.HasPrefix(pattern, w) || strings.HasSuffix(pattern, w) {
			return nil
		}
	}
	return validationErrorf("pattern must start or end with a wildcard, supported wildcards: %s",
		strings.Join(wildcards, ", "))
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func isPrimitive(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.String:
		return true
	}
	return false
}
