package filesystem

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cache "github.com/bartventer/persistedcache"
	"github.com/bartventer/persistedcache/drivertest"
	"github.com/bartventer/persistedcache/pkg/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestOpener_OpenCacheURL(t *testing.T) {
	t.Parallel()
	o := &opener{}
	dir := filepath.Join(t.TempDir(), "cache")

	u, err := url.Parse("filesystem://" + dir + "?disablepurge=true")
	require.NoError(t, err)

	c, err := o.OpenCacheURL(context.Background(), u)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Ping(context.Background()))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewStore_InvalidPath(t *testing.T) {
	t.Parallel()
	for _, p := range []string{"", "   ", "bad\x00path"} {
		_, err := NewStore(Options{Path: p})
		assert.ErrorIs(t, err, cache.ErrValidation, "path %q", p)
	}
}

func newTestCache(t *testing.T) (*cache.Cache, *Store) {
	t.Helper()
	s, err := NewStore(Options{Path: t.TempDir()})
	require.NoError(t, err)
	c, err := cache.New(context.Background(), s, cache.Config{DisablePurge: true})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, s
}

func TestStore_InvalidKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCache(t)

	for _, key := range []string{"a/b", `a\b`, "a:b", "a*b", "a?b", `a"b`, "a<b", "a>b", "a|b", "a\x00b", "a\nb", strings.Repeat("k", 251), strings.Repeat("é", 200)} {
		err := c.SetForever(ctx, key, 1)
		assert.ErrorIs(t, err, cache.ErrValidation, "key %q", key)
	}
	require.NoError(t, c.SetForever(ctx, "user.profile-1_[a]", 1))
}

func TestStore_MultibyteKeyLength(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestCache(t)

	// 125 two-byte characters fill the file name exactly.
	longest := strings.Repeat("é", 125)
	require.NoError(t, c.SetForever(ctx, longest, 1))
	got, ok, err := cache.Get[int](ctx, c, longest)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got)

	err = c.SetForever(ctx, longest+"é", 1)
	require.ErrorIs(t, err, cache.ErrValidation)
	assert.NotErrorIs(t, err, cache.ErrStorage)
}

func TestStore_FileLayout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, s := newTestCache(t)

	require.NoError(t, c.SetForever(ctx, "greeting", map[string]string{"text": "hello"}))
	require.NoError(t, c.SetForever(ctx, "greeting", map[string]string{"text": "hi"}))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files left behind")
	assert.Equal(t, "greeting.json", entries[0].Name())

	data, err := os.ReadFile(filepath.Join(s.Dir(), "greeting.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"greeting","value":{"text":"hi"},"expiry":"9999-12-31T23:59:59.999999Z"}`, string(data))
}

func TestStore_LazyDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, s := newTestCache(t)

	require.NoError(t, c.Set(ctx, "short", "value", cache.Must(cache.InMilliseconds(1))))
	time.Sleep(20 * time.Millisecond)

	_, ok, err := cache.Get[string](ctx, c, "short")
	require.NoError(t, err)
	assert.False(t, ok)
	require.Eventually(t, func() bool {
		n, err := s.Count(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStore_LazyDeleteKeepsReplacement(t *testing.T) {
	t.Parallel()
	_, s := newTestCache(t)

	require.NoError(t, s.write(envelope{Key: "key", Value: []byte(`1`), Expiry: time.Now().Add(time.Hour)}))
	s.deleteLater("key")
	s.pending.Wait()

	_, found, err := s.read("key")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestStore_Closed(t *testing.T) {
	t.Parallel()
	s, err := NewStore(Options{Path: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Ping(context.Background()), errClosed)
	err = s.RunInConnection(context.Background(), func(context.Context, driver.Tx) error { return nil })
	require.ErrorIs(t, err, errClosed)
}

type harness struct {
	dir   string
	store *Store
}

func (h *harness) MakeStore(context.Context) (driver.Store, error) {
	s, err := NewStore(Options{Path: h.dir})
	if err != nil {
		return nil, err
	}
	h.store = s
	return s, nil
}

func (h *harness) Count(ctx context.Context) (int64, error) {
	return h.store.Count(ctx)
}

func (h *harness) Close() {}

func (h *harness) Options() drivertest.Options {
	return drivertest.Options{}
}

func newHarness(ctx context.Context, t *testing.T) (drivertest.Harness, error) {
	return &harness{dir: filepath.Join(t.TempDir(), "entries")}, nil
}

func TestConformance(t *testing.T) {
	drivertest.RunConformanceTests(t, newHarness)
}

func writeCorrupt(t *testing.T, s *Store, key string) string {
	t.Helper()
	name := filepath.Join(s.Dir(), key+fileExt)
	require.NoError(t, os.WriteFile(name, []byte("{not json"), 0o600))
	return name
}

func TestStore_PurgeRemovesUnreadable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, s := newTestCache(t)

	bad := writeCorrupt(t, s, "bad")
	require.NoError(t, s.write(envelope{Key: "expired", Value: []byte(`1`), Expiry: time.Now().Add(-time.Minute)}))
	require.NoError(t, c.SetForever(ctx, "live", 2))

	n, err := c.PurgeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoFileExists(t, bad)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStore_PullRemovesUnreadable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, s := newTestCache(t)

	bad := writeCorrupt(t, s, "bad")
	_, _, err := cache.Pull[int](ctx, c, "bad")
	require.ErrorIs(t, err, cache.ErrStorage)
	assert.NoFileExists(t, bad)

	_, ok, err := cache.Pull[int](ctx, c, "bad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_CloseWaitsForLazyDeletes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, err := NewStore(Options{Path: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, s.Setup(ctx))
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("expired%d", i)
		require.NoError(t, s.write(envelope{Key: key, Value: []byte(`1`), Expiry: time.Now().Add(-time.Minute)}))
	}

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		i := i
		g.Go(func() error {
			err := s.RunInConnection(ctx, func(ctx context.Context, tx driver.Tx) error {
				_, _, err := tx.Get(ctx, fmt.Sprintf("expired%d", i), time.Now())
				return err
			})
			if errors.Is(err, errClosed) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, s.Close())
	require.NoError(t, g.Wait())
}
