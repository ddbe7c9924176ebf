package cache

import (
	"errors"
	"fmt"

	"github.com/bartventer/persistedcache/internal/pcerrors"
	"github.com/bartventer/persistedcache/pkg/driver"
)

var (
	// ErrNoCache is returned when no cache implementation is registered for a scheme.
	ErrNoCache = errors.New("no cache implementation available")

	// ErrValidation marks errors caused by an invalid key, value, pattern or
	// expiry. They are raised before any I/O.
	ErrValidation = errors.New("validation failed")

	// ErrStorage marks errors returned by the storage backend.
	ErrStorage = errors.New("storage failure")

	// ErrSerialization marks errors raised while encoding or decoding a value.
	ErrSerialization = errors.New("serialization failure")

	// ErrInvalidExpiry is returned when an expiry is constructed in the past.
	// It always matches [ErrValidation] as well.
	ErrInvalidExpiry = errors.New("invalid expiry")

	// ErrPatternMatchingNotSupported is returned when a pattern operation is
	// not supported by the backend.
	ErrPatternMatchingNotSupported = driver.ErrPatternMatchingNotSupported

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache is closed")
)

func validationErrorf(format string, args ...any) error {
	return pcerrors.Mark("", fmt.Errorf(format, args...), ErrValidation)
}

func serializationError(scheme string, err error) error {
	return pcerrors.Mark(scheme, err, ErrSerialization)
}

// storageError marks err as a storage failure unless it already carries one
// of the other kinds.
func storageError(scheme string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrSerialization),
		errors.Is(err, ErrClosed):
		return err
	case errors.Is(err, ErrPatternMatchingNotSupported):
		return pcerrors.NewWithScheme(scheme, err)
	}
	return pcerrors.Mark(scheme, err, ErrStorage)
}
