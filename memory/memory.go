/*
Package memory implements an in-process storage driver for the persisted cache.

It's useful for testing, development, and caching small data sets. It's not
recommended for production since entries do not survive a restart.

# URL Format

The URL should have the following format:

	mem://[?query]

The query part, though optional, can be used for additional configuration
through query parameters. The keys of the query parameters should correspond
to the case-insensitive field names of [Options].

# Usage

Example via the URL opener:

	import (
	    "context"
	    "log"

	    cache "github.com/bartventer/persistedcache"
	    _ "github.com/bartventer/persistedcache/memory"
	)

	func main() {
	    ctx := context.Background()
	    c, err := cache.OpenCache(ctx, "mem://?purgeinterval=5m")
	    if err != nil {
	        log.Fatalf("Failed to initialize cache: %v", err)
	    }
	    defer c.Close()
	    // ... use c
	}

Example via [memory.New] constructor:

	c, err := memory.New(ctx, memory.Options{})

# Transactions

A unit of work run through RunInTransaction holds an exclusive lock on the
store, and its changes are reverted when it fails. Units of work run through
RunInConnection share a read lock and cannot modify the store.
*/
package memory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sync"
	"time"

	cache "github.com/bartventer/persistedcache"
	"github.com/bartventer/persistedcache/internal/pcerrors"
	"github.com/bartventer/persistedcache/pkg/driver"
)

// Scheme is the cache scheme for the in-memory driver.
const Scheme = "mem"

func init() { //nolint:gochecknoinits // This is the entry point of the package.
	cache.RegisterCache(Scheme, &opener{})
}

var (
	errClosed   = errors.New("store is closed")
	errReadOnly = errors.New("write in a read-only unit of work")
)

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

// New returns a cache backed by a new in-memory store.
func New(ctx context.Context, options Options) (*cache.Cache, error) {
	return cache.New(ctx, NewStore(), options.Config)
}

// Store is an in-memory implementation of [driver.Store].
type Store struct {
	mu     sync.RWMutex
	items  items
	closed bool
}

var _ driver.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{items: make(items)}
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Setup implements driver.Store.
func (s *Store) Setup(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

// RunInTransaction implements driver.Store.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{items: s.items}
	defer func() {
		if p := recover(); p != nil {
			t.undo.revert(s.items)
			panic(p)
		}
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			t.undo.revert(s.items)
		}
	}()
	return fn(ctx, t)
}

// RunInConnection implements driver.Store.
func (s *Store) RunInConnection(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &tx{items: s.items, readOnly: true})
}

// Capabilities implements driver.Store.
func (s *Store) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		Scheme:          Scheme,
		Wildcards:       driver.RegexWildcards,
		PatternMatching: true,
	}
}

// Ping implements driver.Store.
func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

// Close implements driver.Store. The entries are released.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.items = make(items)
	return nil
}

// tx runs commands against the items of a Store whose lock is held.
type tx struct {
	items    items
	undo     undoLog
	readOnly bool
}

var (
	_ driver.Tx     = (*tx)(nil)
	_ driver.Puller = (*tx)(nil)
)

func (t *tx) write(key string) error {
	if t.readOnly {
		return errReadOnly
	}
	t.undo.record(t.items, key)
	return nil
}

func (t *tx) delete(key string) error {
	if err := t.write(key); err != nil {
		return err
	}
	delete(t.items, key)
	return nil
}

func (t *tx) Get(_ context.Context, key string, now time.Time) ([]byte, bool, error) {
	e, ok := t.items[key]
	if !ok || !e.IsLive(now) {
		return nil, false, nil
	}
	return e.Value, true, nil
}

func (t *tx) Has(_ context.Context, key string, now time.Time) (bool, error) {
	e, ok := t.items[key]
	return ok && e.IsLive(now), nil
}

func (t *tx) Set(_ context.Context, entry driver.Entry) error {
	if err := t.write(entry.Key); err != nil {
		return err
	}
	entry.Value = append([]byte(nil), entry.Value...)
	t.items[entry.Key] = entry
	return nil
}

func (t *tx) Pull(_ context.Context, key string) (driver.Entry, bool, error) {
	e, ok := t.items[key]
	if !ok {
		return driver.Entry{}, false, nil
	}
	return e, true, t.delete(key)
}

func (t *tx) Forget(_ context.Context, key string) error {
	if _, ok := t.items[key]; !ok {
		return nil
	}
	return t.delete(key)
}

func (t *tx) Flush(context.Context) error {
	for key := range t.items {
		if err := t.delete(key); err != nil {
			return err
		}
	}
	return nil
}

func compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^" + pattern + "$")
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	return re, nil
}

func (t *tx) FlushPattern(_ context.Context, pattern string) error {
	re, err := compile(pattern)
	if err != nil {
		return err
	}
	for key := range t.items {
		if !re.MatchString(key) {
			continue
		}
		if err := t.delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) Purge(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, e := range t.items.sortedByExpiry() {
		if e.IsLive(now) {
			// Entries are sorted by expiry time, so we can break early
			break
		}
		if err := t.delete(e.Key); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (t *tx) Query(_ context.Context, pattern string, now time.Time) ([][]byte, error) {
	re, err := compile(pattern)
	if err != nil {
		return nil, err
	}
	var values [][]byte
	for key, e := range t.items {
		if e.IsLive(now) && re.MatchString(key) {
			values = append(values, e.Value)
		}
	}
	return values, nil
}
