// Package driver defines the storage contract that persisted cache backends
// implement. The cache engine drives every backend through the [Store] and
// [Tx] interfaces and never branches on backend identity; backend differences
// are expressed through [Capabilities].
package driver

import (
	"context"
	"errors"
	"time"
)

// ErrPatternMatchingNotSupported is returned by a [Tx] whose backend cannot
// match keys against a pattern.
var ErrPatternMatchingNotSupported = errors.New("pattern matching not supported")

// Entry is the stored unit: a key, its serialized value and the absolute
// instant after which it is no longer live.
type Entry struct {
	Key    string
	Value  []byte
	Expiry time.Time
}

// IsLive reports whether the entry is still valid at now.
func (e Entry) IsLive(now time.Time) bool {
	return e.Expiry.After(now)
}

// Capabilities describes what a backend supports and which keys it accepts.
type Capabilities struct {
	// Scheme names the backend in error messages.
	Scheme string
	// Wildcards maps the universal wildcard tokens to the backend's native ones.
	Wildcards Wildcards
	// MaxKeyLength is the longest key the backend can store. Zero means no
	// backend-specific limit.
	MaxKeyLength int
	// MaxKeyBytes is the longest key in bytes of its UTF-8 encoding, for
	// backends limited in bytes rather than characters. Zero means no limit.
	MaxKeyBytes int
	// InvalidKeyChars lists characters that must not appear in keys.
	InvalidKeyChars string
	// PatternMatching is false when FlushPattern and Query are unsupported.
	PatternMatching bool
	// RegexPatterns is true when patterns are passed to the backend as regular
	// expressions instead of wildcard patterns.
	RegexPatterns bool
}

// Store is a backend connection factory. Implementations must be safe for
// concurrent use; every call to RunInTransaction or RunInConnection works on
// its own connection.
type Store interface {
	// Setup idempotently creates the table, collection or directory that
	// holds the entries.
	Setup(ctx context.Context) error

	// RunInTransaction acquires a connection, begins a transaction, calls fn
	// and commits when fn returns nil. Any error or panic discards the
	// transaction. The connection is released on every exit path.
	// Backends without transactions run fn directly.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// RunInConnection calls fn on a connection without transactional scoping.
	// It is meant for read-only units of work.
	RunInConnection(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Capabilities reports the backend's capabilities.
	Capabilities() Capabilities

	// Ping verifies that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the resources held by the store.
	Close() error
}

// Tx executes the cache commands of one unit of work.
type Tx interface {
	// Get returns the value of the entry for key if it is live at now.
	Get(ctx context.Context, key string, now time.Time) (value []byte, ok bool, err error)

	// Has reports whether a live entry exists for key at now.
	Has(ctx context.Context, key string, now time.Time) (bool, error)

	// Set inserts the entry or replaces the value and expiry of an existing one.
	Set(ctx context.Context, entry Entry) error

	// Forget deletes the entry for key, if any.
	Forget(ctx context.Context, key string) error

	// Flush deletes every entry.
	Flush(ctx context.Context) error

	// FlushPattern deletes every entry whose key matches the native pattern.
	FlushPattern(ctx context.Context, pattern string) error

	// Purge deletes every entry whose expiry is at or before now and reports
	// how many were removed, or -1 when the backend cannot tell.
	Purge(ctx context.Context, now time.Time) (int64, error)

	// Query returns the values of the live entries whose key matches the
	// native pattern.
	Query(ctx context.Context, pattern string, now time.Time) ([][]byte, error)
}

// Puller is implemented by a [Tx] that can read and delete an entry in one
// atomic backend command. The returned entry may already be expired; it is
// deleted regardless.
type Puller interface {
	Pull(ctx context.Context, key string) (entry Entry, ok bool, err error)
}
