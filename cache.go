/*
Package cache offers a persisted key-value cache with expiry for Go.

The same cache semantics (expiring entries, upserts, read-and-delete, pattern
invalidation, purge of expired entries) are implemented once in [Cache] and run
on top of interchangeable storage drivers: relational databases, document
stores, key-value servers and the local filesystem. Switching backends only
requires a different URL scheme.

# URL Format

The cache package uses URLs to specify cache implementations. The URL scheme
is used to determine the driver to use. The URL format is:

	scheme://[user:password@]<host>[:port][/path][?query]

The query parameters configure the driver. Fields of [Config] are accepted by
every driver; the rest are documented by each driver. Unrecognised parameters
are passed on to the backend connection string where the backend has one.

# Usage

Import the driver package and open the cache with [OpenCache]:

	import (
	    "context"
	    "log"

	    cache "github.com/bartventer/persistedcache"
	    _ "github.com/bartventer/persistedcache/sqlite"
	)

	type Profile struct {
	    Name string
	}

	func main() {
	    ctx := context.Background()
	    c, err := cache.OpenCache(ctx, "sqlite:///var/lib/app/cache.db?purgeinterval=1h")
	    if err != nil {
	        log.Fatalf("Failed to initialize cache: %v", err)
	    }
	    defer c.Close()

	    err = c.Set(ctx, "profile:1", Profile{Name: "Ada"}, cache.Must(cache.InMinutes(10)))
	    if err != nil {
	        log.Fatalf("Failed to set key: %v", err)
	    }

	    p, ok, err := cache.Get[Profile](ctx, c, "profile:1")
	    if err != nil {
	        log.Fatalf("Failed to get key: %v", err)
	    }
	    log.Printf("Value: %v (found: %t)", p, ok)
	}

# Patterns

FlushPattern and Query accept the universal wildcards '*' (any run of
characters) and '?' (exactly one character). A pattern must start or end with
'*'. Drivers that match keys with regular expressions may be configured to
take the pattern as a regular expression instead.

# Errors

Errors can be classified with [errors.Is] against [ErrValidation],
[ErrStorage] and [ErrSerialization]. Validation always happens before any I/O,
so a rejected call never modifies storage.

# Drivers

For specific URL formats, query parameters, and examples, refer to the
documentation of each driver package.
*/
package cache

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bartventer/persistedcache/pkg/driver"
)

// Cache is a persisted key-value cache bound to one storage driver.
//
// A Cache holds no mutable state besides its lifecycle and is safe for
// concurrent use. Atomicity of every operation comes from the backend
// transaction it runs in.
type Cache struct {
	store        driver.Store
	config       Config
	caps         driver.Capabilities
	keyRules     KeyRules
	valueRules   ValueRules
	patternRules PatternRules
	scheduler    *PurgeScheduler

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	now func() time.Time
}

// New returns a cache backed by store. Unless [Config.SkipStorageSetup] is
// set, the storage is created before New returns. Unless [Config.DisablePurge]
// is set, a background purge of expired entries is started; it runs until
// [Cache.Close].
func New(ctx context.Context, store driver.Store, config Config) (*Cache, error) {
	config.revise()
	caps := store.Capabilities()

	maxLength := config.KeyMaxLength
	if caps.MaxKeyLength > 0 && caps.MaxKeyLength < maxLength {
		maxLength = caps.MaxKeyLength
	}

	c := &Cache{
		store:        store,
		config:       config,
		caps:         caps,
		keyRules:     KeyRules{MaxLength: maxLength, MaxBytes: caps.MaxKeyBytes, InvalidChars: caps.InvalidKeyChars},
		valueRules:   ValueRules{DisallowPrimitives: config.DisallowPrimitives},
		patternRules: PatternRules{Regex: caps.RegexPatterns},
		now:          func() time.Time { return time.Now().UTC() },
	}

	if !config.SkipStorageSetup {
		if err := store.Setup(ctx); err != nil {
			return nil, storageError(caps.Scheme, err)
		}
	}
	if !config.DisablePurge {
		c.scheduler = NewPurgeScheduler(c, config.PurgeInterval)
		c.scheduler.Start(ctx)
	}
	return c, nil
}

// Config returns the revised configuration of the cache.
func (c *Cache) Config() Config {
	return c.config
}

// Capabilities returns the capabilities of the underlying driver.
func (c *Cache) Capabilities() driver.Capabilities {
	return c.caps
}

func (c *Cache) checkOpen() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (c *Cache) validateKey(key string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return ValidateKey(key, c.keyRules)
}

func (c *Cache) encode(value any) ([]byte, error) {
	if err := ValidateValue(value, c.valueRules); err != nil {
		return nil, err
	}
	data, err := c.config.Serializer.Marshal(value)
	if err != nil {
		return nil, serializationError(c.caps.Scheme, err)
	}
	return data, nil
}

func (c *Cache) decode(data []byte, dst any) error {
	if err := c.config.Serializer.Unmarshal(data, dst); err != nil {
		return serializationError(c.caps.Scheme, err)
	}
	return nil
}

func (c *Cache) entry(key string, data []byte, expire Expire) (driver.Entry, error) {
	if expire.IsZero() {
		return driver.Entry{}, validationErrorf("expiry must be set, use cache.Never for entries that do not expire")
	}
	return driver.Entry{
		Key:    key,
		Value:  data,
		Expiry: expire.Time().Truncate(time.Microsecond),
	}, nil
}

func (c *Cache) inTx(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) error {
	return storageError(c.caps.Scheme, c.store.RunInTransaction(ctx, fn))
}

func (c *Cache) inConn(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) error {
	return storageError(c.caps.Scheme, c.store.RunInConnection(ctx, fn))
}

func isBlank(data []byte) bool {
	return len(bytes.TrimSpace(data)) == 0
}

// Set stores value under key until expire, replacing any existing entry.
func (c *Cache) Set(ctx context.Context, key string, value any, expire Expire) error {
	if err := c.validateKey(key); err != nil {
		return err
	}
	data, err := c.encode(value)
	if err != nil {
		return err
	}
	e, err := c.entry(key, data, expire)
	if err != nil {
		return err
	}
	return c.inTx(ctx, func(ctx context.Context, tx driver.Tx) error {
		return tx.Set(ctx, e)
	})
}

// SetForever stores value under key without expiry.
func (c *Cache) SetForever(ctx context.Context, key string, value any) error {
	return c.Set(ctx, key, value, Never())
}

// Get decodes the live value stored under key into dst and reports whether
// one was found. dst must be a non-nil pointer.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if err := c.validateKey(key); err != nil {
		return false, err
	}
	var (
		data []byte
		ok   bool
	)
	err := c.inConn(ctx, func(ctx context.Context, tx driver.Tx) error {
		var err error
		data, ok, err = tx.Get(ctx, key, c.now())
		return err
	})
	if err != nil || !ok || isBlank(data) {
		return false, err
	}
	if err := c.decode(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Pull deletes the entry stored under key and decodes its value into dst if
// it was live. The entry is deleted even when it had already expired.
func (c *Cache) Pull(ctx context.Context, key string, dst any) (bool, error) {
	if err := c.validateKey(key); err != nil {
		return false, err
	}
	var (
		data []byte
		ok   bool
	)
	err := c.inTx(ctx, func(ctx context.Context, tx driver.Tx) error {
		var err error
		data, ok, err = pull(ctx, tx, key, c.now())
		return err
	})
	if err != nil || !ok || isBlank(data) {
		return false, err
	}
	if err := c.decode(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func pull(ctx context.Context, tx driver.Tx, key string, now time.Time) ([]byte, bool, error) {
	if p, ok := tx.(driver.Puller); ok {
		e, found, err := p.Pull(ctx, key)
		if err != nil || !found || !e.IsLive(now) {
			return nil, false, err
		}
		return e.Value, true, nil
	}
	data, ok, err := tx.Get(ctx, key, now)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Forget(ctx, key); err != nil {
		return nil, false, err
	}
	return data, ok, nil
}

// Has reports whether a live entry is stored under key.
func (c *Cache) Has(ctx context.Context, key string) (bool, error) {
	if err := c.validateKey(key); err != nil {
		return false, err
	}
	var found bool
	err := c.inConn(ctx, func(ctx context.Context, tx driver.Tx) error {
		var err error
		found, err = tx.Has(ctx, key, c.now())
		return err
	})
	return found, err
}

// Forget deletes the entry stored under key. Deleting a missing key is not an error.
func (c *Cache) Forget(ctx context.Context, key string) error {
	if err := c.validateKey(key); err != nil {
		return err
	}
	return c.inTx(ctx, func(ctx context.Context, tx driver.Tx) error {
		return tx.Forget(ctx, key)
	})
}

// Flush deletes every entry.
func (c *Cache) Flush(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.inTx(ctx, func(ctx context.Context, tx driver.Tx) error {
		return tx.Flush(ctx)
	})
}

// nativePattern validates pattern and translates it for the driver.
func (c *Cache) nativePattern(pattern string) (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	if !c.caps.PatternMatching {
		return "", storageError(c.caps.Scheme, ErrPatternMatchingNotSupported)
	}
	if err := ValidatePattern(pattern, c.patternRules); err != nil {
		return "", err
	}
	if c.caps.RegexPatterns {
		return pattern, nil
	}
	return c.caps.Wildcards.Translate(pattern), nil
}

// FlushPattern deletes every entry whose key matches pattern.
func (c *Cache) FlushPattern(ctx context.Context, pattern string) error {
	native, err := c.nativePattern(pattern)
	if err != nil {
		return err
	}
	return c.inTx(ctx, func(ctx context.Context, tx driver.Tx) error {
		return tx.FlushPattern(ctx, native)
	})
}

// Purge deletes every expired entry.
func (c *Cache) Purge(ctx context.Context) error {
	_, err := c.PurgeCount(ctx)
	return err
}

// PurgeCount deletes every expired entry and reports how many were removed,
// or -1 when the backend cannot tell.
func (c *Cache) PurgeCount(ctx context.Context) (int64, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	var n int64
	err := c.inTx(ctx, func(ctx context.Context, tx driver.Tx) error {
		var err error
		n, err = tx.Purge(ctx, c.now())
		return err
	})
	return n, err
}

// query returns the raw live values whose key matches pattern.
func (c *Cache) query(ctx context.Context, pattern string) ([][]byte, error) {
	native, err := c.nativePattern(pattern)
	if err != nil {
		return nil, err
	}
	var values [][]byte
	err = c.inConn(ctx, func(ctx context.Context, tx driver.Tx) error {
		var err error
		values, err = tx.Query(ctx, native, c.now())
		return err
	})
	return values, err
}

// Ping verifies that the backend is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return storageError(c.caps.Scheme, c.store.Ping(ctx))
}

// Close stops the background purge and releases the driver. Subsequent
// operations return [ErrClosed].
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		if c.scheduler != nil {
			c.scheduler.Stop()
		}
		c.closed.Store(true)
		if err := c.store.Close(); err != nil {
			c.closeErr = storageError(c.caps.Scheme, err)
		}
	})
	return c.closeErr
}
