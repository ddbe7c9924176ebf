package cache

import (
	"fmt"
	"time"

	"github.com/bartventer/persistedcache/internal/pcerrors"
)

// DefaultGrace is the tolerance applied by [DefaultExpirePolicy].
const DefaultGrace = time.Second

// never is the instant used for entries that do not expire. It fits every
// backend's temporal type at microsecond precision.
var never = time.Date(9999, time.December, 31, 23, 59, 59, 999999000, time.UTC)

// Expire is the instant at which a cache entry stops being live.
//
// Expire values are built through [Never], [In], [At] and the In* helpers,
// which reject instants in the past. The zero value is not valid.
type Expire struct {
	t time.Time
}

// ExpirePolicy validates expiry instants at construction time.
type ExpirePolicy struct {
	// Grace is how far in the past an instant may lie and still be accepted.
	// Zero makes the policy strict.
	Grace time.Duration

	// now is overridden in tests.
	now func() time.Time
}

// DefaultExpirePolicy is used by the package level factories.
var DefaultExpirePolicy = ExpirePolicy{Grace: DefaultGrace}

func (p ExpirePolicy) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// At returns an Expire for the absolute instant t.
func (p ExpirePolicy) At(t time.Time) (Expire, error) {
	now := p.clock()
	if t.Before(now.Add(-p.Grace)) {
		return Expire{}, pcerrors.Mark("",
			fmt.Errorf("%w: %s is in the past", ErrInvalidExpiry, t.UTC().Format(time.RFC3339Nano)),
			ErrValidation)
	}
	if t.After(never) {
		t = never
	}
	return Expire{t: t.UTC()}, nil
}

// In returns an Expire d from now.
func (p ExpirePolicy) In(d time.Duration) (Expire, error) {
	return p.At(p.clock().Add(d))
}

// Never returns an Expire that never elapses.
func Never() Expire {
	return Expire{t: never}
}

// At returns an Expire for the absolute instant t.
func At(t time.Time) (Expire, error) { return DefaultExpirePolicy.At(t) }

// In returns an Expire d from now.
func In(d time.Duration) (Expire, error) { return DefaultExpirePolicy.In(d) }

// InMilliseconds returns an Expire n milliseconds from now.
func InMilliseconds(n int) (Expire, error) { return In(time.Duration(n) * time.Millisecond) }

// InSeconds returns an Expire n seconds from now.
func InSeconds(n int) (Expire, error) { return In(time.Duration(n) * time.Second) }

// InMinutes returns an Expire n minutes from now.
func InMinutes(n int) (Expire, error) { return In(time.Duration(n) * time.Minute) }

// InHours returns an Expire n hours from now.
func InHours(n int) (Expire, error) { return In(time.Duration(n) * time.Hour) }

// InDays returns an Expire n calendar days from now.
func InDays(n int) (Expire, error) { return At(time.Now().AddDate(0, 0, n)) }

// InMonths returns an Expire n calendar months from now.
func InMonths(n int) (Expire, error) { return At(time.Now().AddDate(0, n, 0)) }

// InYears returns an Expire n calendar years from now.
func InYears(n int) (Expire, error) { return At(time.Now().AddDate(n, 0, 0)) }

// Must panics if err is not nil.
//
//	c.Set(ctx, "key", v, cache.Must(cache.InMinutes(5)))
func Must(e Expire, err error) Expire {
	if err != nil {
		panic(err)
	}
	return e
}

// Time returns the instant in UTC.
func (e Expire) Time() time.Time { return e.t }

// IsZero reports whether e was not built by a factory.
func (e Expire) IsZero() bool { return e.t.IsZero() }

// IsNever reports whether e never elapses.
func (e Expire) IsNever() bool { return e.t.Equal(never) }

// IsExpired reports whether e has elapsed at now.
func (e Expire) IsExpired(now time.Time) bool { return !e.t.After(now) }

// Compare returns -1, 0 or +1 depending on whether e is before, equal to or
// after o.
func (e Expire) Compare(o Expire) int { return e.t.Compare(o.t) }

// Before reports whether e is before o.
func (e Expire) Before(o Expire) bool { return e.t.Before(o.t) }

// After reports whether e is after o.
func (e Expire) After(o Expire) bool { return e.t.After(o.t) }

// Equal reports whether e and o are the same instant.
func (e Expire) Equal(o Expire) bool { return e.t.Equal(o.t) }

func (e Expire) String() string {
	if e.IsNever() {
		return "never"
	}
	return e.t.Format(time.RFC3339Nano)
}

// MarshalText encodes e as an RFC 3339 instant.
func (e Expire) MarshalText() ([]byte, error) {
	return e.t.MarshalText()
}

// UnmarshalText decodes an RFC 3339 instant. No past check is applied so that
// stored entries can be read back after they elapse.
func (e *Expire) UnmarshalText(data []byte) error {
	var t time.Time
	if err := t.UnmarshalText(data); err != nil {
		return pcerrors.Mark("", err, ErrSerialization)
	}
	e.t = t.UTC()
	return nil
}

// MarshalJSON encodes e as a JSON string holding an RFC 3339 instant.
func (e Expire) MarshalJSON() ([]byte, error) {
	return e.t.MarshalJSON()
}

// UnmarshalJSON decodes a JSON string holding an RFC 3339 instant.
func (e *Expire) UnmarshalJSON(data []byte) error {
	var t time.Time
	if err := t.UnmarshalJSON(data); err != nil {
		return pcerrors.Mark("", err, ErrSerialization)
	}
	e.t = t.UTC()
	return nil
}
