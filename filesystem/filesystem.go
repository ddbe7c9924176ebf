/*
Package filesystem implements a storage driver for the persisted cache that
keeps one JSON file per entry in a directory.

# URL Format

The URL should have the following format:

	filesystem://[path][?query]

Relative directories are written as filesystem://cache, absolute ones as
filesystem:///var/cache/app. The query part, though optional, can be used for
additional configuration through query parameters. The keys of the query
parameters should correspond to the case-insensitive field names of [Options].

# Usage

Example via the URL opener:

	import (
	    "context"
	    "log"

	    cache "github.com/bartventer/persistedcache"
	    _ "github.com/bartventer/persistedcache/filesystem"
	)

	func main() {
	    ctx := context.Background()
	    c, err := cache.OpenCache(ctx, "filesystem:///var/cache/app")
	    if err != nil {
	        log.Fatalf("Failed to initialize cache: %v", err)
	    }
	    defer c.Close()
	    // ... use c
	}

Example via [filesystem.New] constructor:

	c, err := filesystem.New(ctx, filesystem.Options{Path: "/var/cache/app"})

# Storage

Entry key is stored in {key}.json as an envelope holding the key, the value
and the expiry. Writes go to a temporary file that is renamed over the entry,
so readers never see a partial file. Reading an expired entry schedules its
deletion in the background.

Keys may not contain path separators, characters reserved by common
filesystems or control characters. Units of work are serialized within the
process; there is no rollback and no coordination between processes.
*/
package filesystem

import (
	"context"
	"encoding/json"
	"io/fs"
	"log"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cache "github.com/bartventer/persistedcache"
	"github.com/bartventer/persistedcache/internal/logext"
	"github.com/bartventer/persistedcache/internal/pcerrors"
	"github.com/bartventer/persistedcache/pkg/driver"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// Scheme is the cache scheme for the filesystem driver.
const Scheme = "filesystem"

const (
	fileExt      = ".json"
	tempPattern  = ".tmp-*.part"
	maxKeyBytes  = 255 - len(fileExt) // file names are limited to 255 bytes
	dirPerm      = 0o750
)

// invalidKeyChars lists the characters a key may not contain: separators,
// characters reserved on common filesystems and control characters.
var invalidKeyChars = func() string {
	var b strings.Builder
	b.WriteString(`/\:*?"<>|`)
	for r := rune(0); r < 0x20; r++ {
		b.WriteRune(r)
	}
	b.WriteRune(0x7f)
	return b.String()
}()

var (
	errClosed  = errors.New("store is closed")
	errCorrupt = errors.New("corrupt entry file")
)

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

// New returns a cache stored in the directory described by options.
func New(ctx context.Context, options Options) (*cache.Cache, error) {
	store, err := NewStore(options)
	if err != nil {
		return nil, err
	}
	return cache.New(ctx, store, options.Config)
}

// envelope is the content of an entry file.
type envelope struct {
	Key    string          `json:"key"`
	Value  json.RawMessage `json:"value"`
	Expiry time.Time       `json:"expiry"`
}

// Store is a filesystem implementation of [driver.Store].
type Store struct {
	dir         string
	concurrency int
	log         *log.Logger

	mu      sync.RWMutex
	closed  atomic.Bool
	pending sync.WaitGroup // background deletes
}

var _ driver.Store = (*Store)(nil)

// NewStore returns a store over the directory of options.
func NewStore(options Options) (*Store, error) {
	options.revise()
	if strings.TrimSpace(options.Path) == "" {
		return nil, pcerrors.Mark(Scheme, errors.New("path must not be empty"), cache.ErrValidation)
	}
	if strings.ContainsRune(options.Path, 0) {
		return nil, pcerrors.Mark(Scheme, errors.New("path contains invalid characters"), cache.ErrValidation)
	}
	return &Store{
		dir:         filepath.Clean(options.Path),
		concurrency: options.Concurrency,
		log:         logext.Default(),
	}, nil
}

// Dir returns the directory holding the entry files.
func (s *Store) Dir() string { return s.dir }

// Setup implements driver.Store. The directory is created when missing.
func (s *Store) Setup(context.Context) error {
	return os.MkdirAll(s.dir, dirPerm)
}

// RunInTransaction implements driver.Store.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	return fn(ctx, &tx{s: s})
}

// RunInConnection implements driver.Store.
func (s *Store) RunInConnection(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	return fn(ctx, &tx{s: s})
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return errClosed
	}
	return ctx.Err()
}

// Capabilities implements driver.Store.
func (s *Store) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		Scheme:          Scheme,
		Wildcards:       driver.GlobWildcards,
		MaxKeyLength:    maxKeyBytes,
		MaxKeyBytes:     maxKeyBytes,
		InvalidKeyChars: invalidKeyChars,
		PatternMatching: true,
	}
}

// Ping implements driver.Store.
func (s *Store) Ping(context.Context) error {
	if s.closed.Load() {
		return errClosed
	}
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.Newf("%s is not a directory", s.dir)
	}
	return nil
}

// Close implements driver.Store. It waits for background deletes.
func (s *Store) Close() error {
	s.closed.Store(true)
	// Units of work started before the flag was set may still schedule
	// deletes; they hold the lock until they return.
	s.mu.Lock()
	s.mu.Unlock() //nolint:staticcheck // barrier
	s.pending.Wait()
	return nil
}

// Count returns the number of entry files, expired ones included.
func (s *Store) Count(context.Context) (int64, error) {
	keys, err := s.keys()
	return int64(len(keys)), err
}

func (s *Store) file(key string) string {
	return filepath.Join(s.dir, key+fileExt)
}

// keys lists the keys of the entry files.
func (s *Store) keys() ([]string, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(dirents))
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	return keys, nil
}

// read loads the envelope of key. A missing file is reported with found false.
func (s *Store) read(key string) (env envelope, found bool, err error) {
	data, err := os.ReadFile(s.file(key))
	if errors.Is(err, fs.ErrNotExist) {
		return envelope{}, false, nil
	}
	if err != nil {
		return envelope{}, false, err
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, false, errors.Mark(errors.Wrapf(err, "decode %s", s.file(key)), errCorrupt)
	}
	return env, true, nil
}

// write replaces the file of the entry atomically.
func (s *Store) write(env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.file(env.Key)); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *Store) remove(key string) error {
	err := os.Remove(s.file(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// deleteLater removes key in the background once no unit of work is running,
// unless the entry was replaced by a live one in the meantime.
func (s *Store) deleteLater(key string) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		env, found, err := s.read(key)
		if err == nil && found && env.Expiry.After(time.Now()) {
			return
		}
		if err := s.remove(key); err != nil {
			s.log.Printf("filesystem: failed to delete expired entry %q: %v", key, err)
		}
	}()
}

// tx runs commands against the directory of a Store whose lock is held.
type tx struct {
	s *Store
}

var (
	_ driver.Tx     = (*tx)(nil)
	_ driver.Puller = (*tx)(nil)
)

func (t *tx) Get(_ context.Context, key string, now time.Time) ([]byte, bool, error) {
	env, found, err := t.s.read(key)
	if err != nil || !found {
		return nil, false, err
	}
	if !env.Expiry.After(now) {
		t.s.deleteLater(key)
		return nil, false, nil
	}
	return env.Value, true, nil
}

func (t *tx) Has(ctx context.Context, key string, now time.Time) (bool, error) {
	_, found, err := t.Get(ctx, key, now)
	return found, err
}

func (t *tx) Set(ctx context.Context, entry driver.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.s.write(envelope{Key: entry.Key, Value: entry.Value, Expiry: entry.Expiry.UTC()})
}

func (t *tx) Forget(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.s.remove(key)
}

func (t *tx) Flush(ctx context.Context) error {
	return t.removeMatching(ctx, func(string) (bool, error) { return true, nil })
}

func (t *tx) FlushPattern(ctx context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return err
	}
	return t.removeMatching(ctx, func(key string) (bool, error) {
		return path.Match(pattern, key)
	})
}

func (t *tx) removeMatching(ctx context.Context, match func(key string) (bool, error)) error {
	keys, err := t.s.keys()
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.s.concurrency)
	for _, key := range keys {
		key := key
		ok, err := match(key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return t.s.remove(key)
		})
	}
	return g.Wait()
}

func (t *tx) Purge(ctx context.Context, now time.Time) (int64, error) {
	keys, err := t.s.keys()
	if err != nil {
		return 0, err
	}
	var n atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.s.concurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			env, found, err := t.s.read(key)
			if errors.Is(err, errCorrupt) {
				t.s.log.Printf("filesystem: removing unreadable entry %q: %v", key, err)
			} else if err != nil || !found || env.Expiry.After(now) {
				return err
			}
			if err := t.s.remove(key); err != nil {
				return err
			}
			n.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return n.Load(), err
}

func (t *tx) Query(ctx context.Context, pattern string, now time.Time) ([][]byte, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	keys, err := t.s.keys()
	if err != nil {
		return nil, err
	}
	var values [][]byte
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ok, _ := path.Match(pattern, key); !ok {
			continue
		}
		env, found, err := t.s.read(key)
		if err != nil {
			t.s.log.Printf("filesystem: skipping unreadable entry %q: %v", key, err)
			continue
		}
		if found && env.Expiry.After(now) {
			values = append(values, env.Value)
		}
	}
	return values, nil
}

func (t *tx) Pull(ctx context.Context, key string) (driver.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return driver.Entry{}, false, err
	}
	env, found, err := t.s.read(key)
	if errors.Is(err, errCorrupt) {
		if rmErr := t.s.remove(key); rmErr != nil {
			return driver.Entry{}, false, errors.WithSecondaryError(err, rmErr)
		}
		return driver.Entry{}, false, err
	}
	if err != nil || !found {
		return driver.Entry{}, false, err
	}
	if err := t.s.remove(key); err != nil {
		return driver.Entry{}, false, err
	}
	return driver.Entry{Key: key, Value: env.Value, Expiry: env.Expiry}, true, nil
}
