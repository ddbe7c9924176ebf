/*
Package memcache implements a Memcached storage driver for the persisted
cache, backed by github.com/bradfitz/gomemcache.

# URL Format

The URL should have the following format:

	memcache://<host1>:<port1>[,<host2>:<port2>,...][?query]

Each <host>:<port> pair is a Memcached node; keys are spread across the nodes
by the client. Keys matching the case-insensitive field names of [Options]
configure the driver.

# Usage

Example via the URL opener:

	import (
	    "context"
	    "log"

	    cache "github.com/bartventer/persistedcache"
	    _ "github.com/bartventer/persistedcache/memcache"
	)

	func main() {
	    ctx := context.Background()
	    c, err := cache.OpenCache(ctx, "memcache://localhost:11211?timeout=500ms")
	    if err != nil {
	        log.Fatalf("Failed to initialize cache: %v", err)
	    }
	    defer c.Close()
	    // ... use c
	}

Example via [memcache.New] constructor:

	c, err := memcache.New(ctx, memcache.Options{Addrs: []string{"localhost:11211"}})

# Storage

Each item holds a msgpack envelope with the serialized value and its expiry
in microseconds. The item expiration is the expiry rounded up to the second,
and reads check the envelope, so sub-second expiries are honored.

Memcached cannot enumerate its keys: pattern operations are unsupported,
Flush empties every node and purging is left to the server.
*/
package memcache

import (
	"context"
	"net/url"
	"strings"
	"time"

	cache "github.com/bartventer/persistedcache"
	"github.com/bartventer/persistedcache/internal/pcerrors"
	"github.com/bartventer/persistedcache/pkg/driver"
	"github.com/bradfitz/gomemcache/memcache"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Scheme is the cache scheme for Memcached.
const Scheme = "memcache"

// maxKeyLength is the key limit in bytes of the memcached protocol.
const maxKeyLength = 250

func init() { //nolint:gochecknoinits // This is the entry point of the package.
	cache.RegisterCache(Scheme, &opener{})
}

type opener struct{}

var _ cache.URLOpener = (*opener)(nil)

// OpenCacheURL implements cache.URLOpener.
func (o *opener) OpenCacheURL(ctx context.Context, u *url.URL) (*cache.Cache, error) {
	opts, err := optionsFromURL(u)
	if err != nil {
		return nil, pcerrors.NewWithScheme(Scheme, err)
	}
	return New(ctx, opts)
}

// New returns a cache stored on the Memcached nodes described by options.
func New(ctx context.Context, options Options) (*cache.Cache, error) {
	store, err := NewStore(options)
	if err != nil {
		return nil, err
	}
	c, err := cache.New(ctx, store, options.Config)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

// invalidKeyChars lists the characters the memcached text protocol does not
// accept in keys: whitespace and control characters.
var invalidKeyChars = func() string {
	var b strings.Builder
	b.WriteByte(' ')
	for r := rune(0); r < 0x20; r++ {
		b.WriteRune(r)
	}
	b.WriteRune(0x7f)
	return b.String()
}()

// envelope is the msgpack encoded content of an item.
type envelope struct {
	Value  []byte `msgpack:"v"`
	Expiry int64  `msgpack:"e"` // microseconds since the Unix epoch
}

func (e envelope) expiry() time.Time {
	return time.UnixMicro(e.Expiry).UTC()
}

// Store is a Memcached implementation of [driver.Store].
type Store struct {
	client *memcache.Client
}

var _ driver.Store = (*Store)(nil)

// NewStore creates a client for options.
func NewStore(options Options) (*Store, error) {
	options.revise()
	if len(options.Addrs) == 0 {
		return nil, pcerrors.Mark(Scheme, errors.New("no server addresses"), cache.ErrValidation)
	}
	client := memcache.New(options.Addrs...)
	client.Timeout = options.Timeout
	client.MaxIdleConns = options.MaxIdleConns
	return NewStoreFromClient(client), nil
}

// NewStoreFromClient returns a store using client.
func NewStoreFromClient(client *memcache.Client) *Store {
	return &Store{client: client}
}

// Client returns the underlying client.
func (s *Store) Client() *memcache.Client { return s.client }

// Setup implements driver.Store. Memcached needs no storage setup.
func (s *Store) Setup(context.Context) error { return nil }

// RunInTransaction implements driver.Store. Memcached has no transactions.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) error {
	return s.RunInConnection(ctx, fn)
}

// RunInConnection implements driver.Store.
func (s *Store) RunInConnection(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &tx{client: s.client})
}

// Capabilities implements driver.Store.
func (s *Store) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		Scheme:          Scheme,
		MaxKeyLength:    maxKeyLength,
		MaxKeyBytes:     maxKeyLength,
		InvalidKeyChars: invalidKeyChars,
	}
}

// Ping implements driver.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.client.Ping()
}

// Close implements driver.Store.
func (s *Store) Close() error {
	return s.client.Close()
}

// expiration returns the item expiration for expiry: zero for entries that
// never expire, otherwise the Unix time rounded up to the second. A negative
// value means the entry is already expired.
func expiration(expiry, now time.Time) int32 {
	if !expiry.Before(cache.Never().Time()) {
		return 0
	}
	if !expiry.After(now) {
		return -1
	}
	sec := expiry.Unix()
	if expiry.Nanosecond() > 0 {
		sec++
	}
	return int32(sec)
}

// tx runs commands through a shared client.
type tx struct {
	client *memcache.Client
}

var (
	_ driver.Tx     = (*tx)(nil)
	_ driver.Puller = (*tx)(nil)
)

// lookup returns the envelope stored for key.
func (t *tx) lookup(key string) (envelope, bool, error) {
	item, err := t.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return envelope{}, false, nil
	}
	if err != nil {
		return envelope{}, false, err
	}
	var env envelope
	if err := msgpack.Unmarshal(item.Value, &env); err != nil {
		return envelope{}, false, errors.Wrapf(err, "decode item %q", key)
	}
	return env, true, nil
}

func (t *tx) Get(_ context.Context, key string, now time.Time) ([]byte, bool, error) {
	env, ok, err := t.lookup(key)
	if err != nil || !ok || !env.expiry().After(now) {
		return nil, false, err
	}
	return env.Value, true, nil
}

func (t *tx) Has(ctx context.Context, key string, now time.Time) (bool, error) {
	_, ok, err := t.Get(ctx, key, now)
	return ok, err
}

func (t *tx) Set(_ context.Context, entry driver.Entry) error {
	exp := expiration(entry.Expiry, time.Now())
	if exp < 0 {
		return t.delete(entry.Key)
	}
	data, err := msgpack.Marshal(envelope{Value: entry.Value, Expiry: entry.Expiry.UnixMicro()})
	if err != nil {
		return errors.Wrapf(err, "encode item %q", entry.Key)
	}
	return t.client.Set(&memcache.Item{Key: entry.Key, Value: data, Expiration: exp})
}

func (t *tx) delete(key string) error {
	err := t.client.Delete(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

func (t *tx) Forget(_ context.Context, key string) error {
	return t.delete(key)
}

func (t *tx) Flush(context.Context) error {
	return t.client.DeleteAll()
}

func (t *tx) FlushPattern(context.Context, string) error {
	return driver.ErrPatternMatchingNotSupported
}

// Purge implements driver.Tx. Memcached evicts expired items itself.
func (t *tx) Purge(context.Context, time.Time) (int64, error) {
	return -1, nil
}

func (t *tx) Query(context.Context, string, time.Time) ([][]byte, error) {
	return nil, driver.ErrPatternMatchingNotSupported
}

// Pull implements driver.Puller. The item is read and then deleted; a
// concurrent writer may slip in between.
func (t *tx) Pull(_ context.Context, key string) (driver.Entry, bool, error) {
	env, ok, err := t.lookup(key)
	if err != nil || !ok {
		return driver.Entry{}, false, err
	}
	if err := t.delete(key); err != nil {
		return driver.Entry{}, false, err
	}
	return driver.Entry{Key: key, Value: env.Value, Expiry: env.expiry()}, true, nil
}
