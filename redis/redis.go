/*
Package redis implements a Redis storage driver for the persisted cache. It
uses the go-redis universal client, so a standalone server, a Sentinel
failover group or a Redis Cluster can back the cache.

# URL Format

The URL should have the following format:

	redis://[user[:password]@]<host>:<port>[/db][?query]
	rediscluster://[user[:password]@]<host1>:<port1>,<host2>:<port2>,...[?query]

The rediscluster scheme always creates a cluster client. The [?query] part,
though optional, can be used for additional configuration through query
parameters. The keys of the query parameters should correspond to the
case-insensitive field names of [Options] or [redis.UniversalOptions].
However, not all options can be set as query parameters. The following
options are excluded:

  - [redis.UniversalOptions].Addrs
  - Any option that is a function
  - Serializer

# Usage

Example via the URL opener:

	import (
	    "context"
	    "log"

	    cache "github.com/bartventer/persistedcache"
	    _ "github.com/bartventer/persistedcache/redis"
	)

	func main() {
	    ctx := context.Background()
	    c, err := cache.OpenCache(ctx, "redis://localhost:6379?namespace=app:&maxretries=5")
	    if err != nil {
	        log.Fatalf("Failed to initialize cache: %v", err)
	    }
	    defer c.Close()
	    // ... use c
	}

Example via [redis.New] constructor:

	c, err := redis.New(ctx, redis.Options{
	    UniversalOptions: goredis.UniversalOptions{Addrs: []string{"localhost:6379"}},
	})

# Storage

Entries are string keys prefixed with the namespace, holding the serialized
value with a native millisecond expiry. Redis evicts expired entries itself,
so purging is a no-op. Pattern operations SCAN the namespace on every master
node. Units of work are not isolated: every command is atomic on its own and
Pull uses GETDEL.
*/
package redis

import (
	"context"
	"net/url"
	"strings"
	"time"

	cache "github.com/bartventer/persistedcache"
	"github.com/bartventer/persistedcache/internal/pcerrors"
	"github.com/bartventer/persistedcache/pkg/driver"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Schemes for Redis.
const (
	Scheme        = "redis"
	ClusterScheme = "rediscluster"
)

func init() { //nolint:gochecknoinits // This is the entry point of the package.
	o := &opener{}
	cache.RegisterCache(Scheme, o)
	cache.RegisterCache(ClusterScheme, o)
}

type opener struct{}

var _ cache.URLOpener = (*opener)(nil)

// OpenCacheURL implements cache.URLOpener.
func (o *opener) OpenCacheURL(ctx context.Context, u *url.URL) (*cache.Cache, error) {
	opts, err := optionsFromURL(u)
	if err != nil {
		return nil, pcerrors.NewWithScheme(u.Scheme, err)
	}
	return New(ctx, opts)
}

// New returns a cache stored in the Redis deployment described by options.
func New(ctx context.Context, options Options) (*cache.Cache, error) {
	store := NewStore(options)
	c, err := cache.New(ctx, store, options.Config)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

// Store is a Redis implementation of [driver.Store].
type Store struct {
	client    redis.UniversalClient
	namespace string
	count     int64
	scheme    string
}

var _ driver.Store = (*Store)(nil)

// NewStore creates a client for options.
func NewStore(options Options) *Store {
	options.revise()
	var client redis.UniversalClient
	if options.ClusterMode {
		client = redis.NewClusterClient(options.UniversalOptions.Cluster())
	} else {
		client = redis.NewUniversalClient(&options.UniversalOptions)
	}
	return NewStoreFromClient(client, options)
}

// NewStoreFromClient returns a store using client. The store takes ownership
// of the client and closes it on Close.
func NewStoreFromClient(client redis.UniversalClient, options Options) *Store {
	options.revise()
	scheme := Scheme
	if _, ok := client.(*redis.ClusterClient); ok {
		scheme = ClusterScheme
	}
	return &Store{
		client:    client,
		namespace: options.Namespace,
		count:     options.CountLimit,
		scheme:    scheme,
	}
}

// Client returns the underlying client.
func (s *Store) Client() redis.UniversalClient { return s.client }

// Setup implements driver.Store. Redis needs no storage setup.
func (s *Store) Setup(context.Context) error { return nil }

// RunInTransaction implements driver.Store. Commands are not isolated from
// concurrent units of work.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) error {
	return s.RunInConnection(ctx, fn)
}

// RunInConnection implements driver.Store.
func (s *Store) RunInConnection(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &tx{s: s})
}

// Capabilities implements driver.Store.
func (s *Store) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		Scheme:          s.scheme,
		Wildcards:       driver.GlobWildcards,
		PatternMatching: true,
	}
}

// Ping implements driver.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements driver.Store.
func (s *Store) Close() error {
	return s.client.Close()
}

// Count returns the number of keys in the namespace.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.scan(ctx, s.match("*"), func(_ context.Context, _ redis.Cmdable, keys []string) error {
		n += int64(len(keys))
		return nil
	})
	return n, err
}

func (s *Store) key(key string) string {
	return s.namespace + key
}

// match returns the SCAN pattern for a native pattern within the namespace.
func (s *Store) match(pattern string) string {
	return escapeGlob(s.namespace) + pattern
}

// scan calls fn with batches of keys matching pattern on every master node.
// fn receives the node the keys live on.
func (s *Store) scan(ctx context.Context, pattern string, fn func(ctx context.Context, node redis.Cmdable, keys []string) error) error {
	if cc, ok := s.client.(*redis.ClusterClient); ok {
		return cc.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return scanNode(ctx, node, pattern, s.count, fn)
		})
	}
	return scanNode(ctx, s.client, pattern, s.count, fn)
}

func scanNode(ctx context.Context, node redis.Cmdable, pattern string, count int64, fn func(ctx context.Context, node redis.Cmdable, keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := node.Scan(ctx, cursor, pattern, count).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(ctx, node, keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// escapeGlob escapes the characters that carry a meaning in SCAN patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ttl converts an expiry into a relative expiration. Zero means no
// expiration; a negative value means the entry is already expired.
func ttl(expiry time.Time, now time.Time) time.Duration {
	if !expiry.Before(cache.Never().Time()) {
		return 0
	}
	d := expiry.Sub(now)
	if d <= 0 {
		return -1
	}
	return d
}

// tx runs commands against the namespace of a Store.
type tx struct {
	s *Store
}

var (
	_ driver.Tx     = (*tx)(nil)
	_ driver.Puller = (*tx)(nil)
)

func (t *tx) Get(ctx context.Context, key string, _ time.Time) ([]byte, bool, error) {
	v, err := t.s.client.Get(ctx, t.s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (t *tx) Has(ctx context.Context, key string, _ time.Time) (bool, error) {
	n, err := t.s.client.Exists(ctx, t.s.key(key)).Result()
	return n > 0, err
}

func (t *tx) Set(ctx context.Context, entry driver.Entry) error {
	d := ttl(entry.Expiry, time.Now())
	if d < 0 {
		return t.s.client.Del(ctx, t.s.key(entry.Key)).Err()
	}
	return t.s.client.Set(ctx, t.s.key(entry.Key), entry.Value, d).Err()
}

func (t *tx) Forget(ctx context.Context, key string) error {
	return t.s.client.Del(ctx, t.s.key(key)).Err()
}

func (t *tx) Flush(ctx context.Context) error {
	return t.FlushPattern(ctx, "*")
}

func (t *tx) FlushPattern(ctx context.Context, pattern string) error {
	return t.s.scan(ctx, t.s.match(pattern), func(ctx context.Context, node redis.Cmdable, keys []string) error {
		pipe := node.Pipeline()
		for _, key := range keys {
			pipe.Del(ctx, key)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Purge implements driver.Tx. Redis expires entries itself.
func (t *tx) Purge(context.Context, time.Time) (int64, error) {
	return -1, nil
}

func (t *tx) Query(ctx context.Context, pattern string, _ time.Time) ([][]byte, error) {
	var values [][]byte
	err := t.s.scan(ctx, t.s.match(pattern), func(ctx context.Context, node redis.Cmdable, keys []string) error {
		pipe := node.Pipeline()
		cmds := make([]*redis.StringCmd, len(keys))
		for i, key := range keys {
			cmds[i] = pipe.Get(ctx, key)
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		for _, cmd := range cmds {
			v, err := cmd.Bytes()
			if errors.Is(err, redis.Nil) {
				continue // expired since the scan
			}
			if err != nil {
				return err
			}
			values = append(values, v)
		}
		return nil
	})
	return values, err
}

func (t *tx) Pull(ctx context.Context, key string) (driver.Entry, bool, error) {
	v, err := t.s.client.GetDel(ctx, t.s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return driver.Entry{}, false, nil
	}
	if err != nil {
		return driver.Entry{}, false, err
	}
	// Redis only returns live values.
	return driver.Entry{Key: key, Value: v, Expiry: cache.Never().Time()}, true, nil
}
