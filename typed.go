package cache

import (
	"context"

	"github.com/bartventer/persistedcache/internal/logext"
	"github.com/bartventer/persistedcache/pkg/driver"
)

// Get returns the live value stored under key.
// The boolean is false when no live entry exists.
func Get[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var v T
	ok, err := c.Get(ctx, key, &v)
	if err != nil || !ok {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

// Pull deletes the entry stored under key and returns its value if it was live.
func Pull[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var v T
	ok, err := c.Pull(ctx, key, &v)
	if err != nil || !ok {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

// GetOrSet returns the live value stored under key. When there is none,
// factory is called once, its result is stored until expire and returned.
// The read and the write run in one transaction.
//
// Concurrent callers racing on the same missing key may each call their
// factory; the last committed write wins.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, factory func(ctx context.Context) (T, error), expire Expire) (T, error) {
	var zero T
	if err := c.validateKey(key); err != nil {
		return zero, err
	}
	if expire.IsZero() {
		return zero, validationErrorf("expiry must be set, use cache.Never for entries that do not expire")
	}

	var (
		result     T
		factoryErr error
	)
	err := c.inTx(ctx, func(ctx context.Context, tx driver.Tx) error {
		data, ok, err := tx.Get(ctx, key, c.now())
		if err != nil {
			return err
		}
		if ok && !isBlank(data) {
			return c.decode(data, &result)
		}

		v, err := factory(ctx)
		if err != nil {
			factoryErr = err
			return err
		}
		data, err = c.encode(v)
		if err != nil {
			return err
		}
		e, err := c.entry(key, data, expire)
		if err != nil {
			return err
		}
		if err := tx.Set(ctx, e); err != nil {
			return err
		}
		result = v
		return nil
	})
	if factoryErr != nil {
		return zero, factoryErr
	}
	if err != nil {
		return zero, err
	}
	return result, nil
}

// GetOrSetForever is [GetOrSet] with an entry that never expires.
func GetOrSetForever[T any](ctx context.Context, c *Cache, key string, factory func(ctx context.Context) (T, error)) (T, error) {
	return GetOrSet(ctx, c, key, factory, Never())
}

// Query returns the live values whose key matches pattern, in no particular
// order. Entries that cannot be decoded into T are skipped.
func Query[T any](ctx context.Context, c *Cache, pattern string) ([]T, error) {
	raw, err := c.query(ctx, pattern)
	if err != nil {
		return nil, err
	}
	values := make([]T, 0, len(raw))
	for _, data := range raw {
		if isBlank(data) {
			continue
		}
		var v T
		if err := c.decode(data, &v); err != nil {
			logext.Default().Printf("query %q: skipping entry: %v", pattern, err)
			continue
		}
		values = append(values, v)
	}
	return values, nil
}
