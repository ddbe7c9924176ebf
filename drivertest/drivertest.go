// Package drivertest provides conformance tests for storage driver implementations.
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	cache "github.com/bartventer/persistedcache"
	"github.com/bartventer/persistedcache/pkg/driver"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Options describes the set of options that a driver supports.
type Options struct {
	// PatternMatchingDisabled is true if the driver does not support pattern matching.
	// If true, FlushPattern and Query must fail with [cache.ErrPatternMatchingNotSupported].
	PatternMatchingDisabled bool
}

// Harness descibes the functionality test harnesses must provide to run
// conformance tests.
type Harness interface {
	// MakeStore makes a [driver.Store] over empty storage.
	MakeStore(context.Context) (driver.Store, error)

	// Count returns the number of entries physically held by the storage of
	// the last store made, expired ones included. Harnesses that cannot count
	// return [errors.ErrUnsupported].
	Count(context.Context) (int64, error)

	// Close closes resources used by the harness.
	Close()

	// Options returns the set of options that the driver supports.
	Options() Options
}

// HarnessMaker describes functions that construct a harness for running tests.
// It is called exactly once per test; Harness.Close() will be called when the test is complete.
type HarnessMaker func(ctx context.Context, t *testing.T) (Harness, error)

// RunConformanceTests runs conformance tests for driver implementations of [driver.Store].
// Every test works on its own storage; tests do not run in parallel because
// some backends can only flush globally.
func RunConformanceTests(t *testing.T, newHarness HarnessMaker) {
	t.Helper()

	t.Run("Setup", func(t *testing.T) { withCache(t, newHarness, testSetup) })
	t.Run("RoundTrip", func(t *testing.T) { withCache(t, newHarness, testRoundTrip) })
	t.Run("SetReplaces", func(t *testing.T) { withCache(t, newHarness, testSetReplaces) })
	t.Run("SetForever", func(t *testing.T) { withCache(t, newHarness, testSetForever) })
	t.Run("GetMissing", func(t *testing.T) { withCache(t, newHarness, testGetMissing) })
	t.Run("Expiry", func(t *testing.T) { withCache(t, newHarness, testExpiry) })
	t.Run("Has", func(t *testing.T) { withCache(t, newHarness, testHas) })
	t.Run("Forget", func(t *testing.T) { withCache(t, newHarness, testForget) })
	t.Run("Flush", func(t *testing.T) { withCache(t, newHarness, testFlush) })
	t.Run("FlushPattern", func(t *testing.T) { withCache(t, newHarness, testFlushPattern) })
	t.Run("FlushPatternLiterals", func(t *testing.T) { withCache(t, newHarness, testFlushPatternLiterals) })
	t.Run("Query", func(t *testing.T) { withCache(t, newHarness, testQuery) })
	t.Run("QuerySkipsUndecodable", func(t *testing.T) { withCache(t, newHarness, testQuerySkipsUndecodable) })
	t.Run("Pull", func(t *testing.T) { withCache(t, newHarness, testPull) })
	t.Run("PullExpired", func(t *testing.T) { withCache(t, newHarness, testPullExpired) })
	t.Run("GetOrSet", func(t *testing.T) { withCache(t, newHarness, testGetOrSet) })
	t.Run("GetOrSetFactoryError", func(t *testing.T) { withCache(t, newHarness, testGetOrSetFactoryError) })
	t.Run("Purge", func(t *testing.T) { withCache(t, newHarness, testPurge) })
	t.Run("Validation", func(t *testing.T) { withCache(t, newHarness, testValidation) })
	t.Run("ConcurrentSet", func(t *testing.T) { withCache(t, newHarness, testConcurrentSet) })
	t.Run("Ping", func(t *testing.T) { withCache(t, newHarness, testPing) })
	t.Run("Close", func(t *testing.T) { withCache(t, newHarness, testClose) })
}

type fixture struct {
	cache *cache.Cache
	store driver.Store
	h     Harness
	opts  Options
}

// count returns the raw entry count, skipping the check when the harness cannot count.
func (f *fixture) count(t *testing.T) (int64, bool) {
	t.Helper()
	n, err := f.h.Count(context.Background())
	if errors.Is(err, errors.ErrUnsupported) {
		return 0, false
	}
	require.NoError(t, err)
	return n, true
}

func (f *fixture) assertCount(t *testing.T, want int64) {
	t.Helper()
	if n, ok := f.count(t); ok {
		assert.Equal(t, want, n, "unexpected number of stored entries")
	}
}

// withCache creates a new cache and runs the test function.
func withCache(t *testing.T, newHarness HarnessMaker, f func(*testing.T, *fixture)) {
	t.Helper()

	ctx := context.Background()
	h, err := newHarness(ctx, t)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	s, err := h.MakeStore(ctx)
	if err != nil {
		t.Fatal(err)
	}
	c, err := cache.New(ctx, s, cache.Config{DisablePurge: true})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	f(t, &fixture{cache: c, store: s, h: h, opts: h.Options()})
}

type nested struct {
	Tags  []string          `json:"tags"`
	Attrs map[string]string `json:"attrs"`
}

type record struct {
	ID      int       `json:"id"`
	Name    string    `json:"name"`
	Score   float64   `json:"score"`
	Active  bool      `json:"active"`
	Created time.Time `json:"created"`
	Nested  *nested   `json:"nested"`
}

func newRecord(id int) record {
	return record{
		ID:      id,
		Name:    fmt.Sprintf("record %d <&>", id),
		Score:   float64(id) + 0.5,
		Active:  id%2 == 0,
		Created: time.Date(2024, time.January, 2, 3, 4, 5, 6000, time.UTC),
		Nested: &nested{
			Tags:  []string{"a", "b"},
			Attrs: map[string]string{"k": "v"},
		},
	}
}

func assertRecord(t *testing.T, want, got record) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func inMinute(t *testing.T) cache.Expire {
	t.Helper()
	e, err := cache.InMinutes(1)
	require.NoError(t, err)
	return e
}

// testSetup tests that the storage setup is idempotent.
func testSetup(t *testing.T, f *fixture) {
	ctx := context.Background()
	require.NoError(t, f.store.Setup(ctx))
	require.NoError(t, f.store.Setup(ctx))
	f.assertCount(t, 0)
}

// testRoundTrip tests that a value read back deep-equals the value written.
func testRoundTrip(t *testing.T, f *fixture) {
	ctx := context.Background()
	want := newRecord(1)

	require.NoError(t, f.cache.Set(ctx, "record", want, inMinute(t)))
	got, ok, err := cache.Get[record](ctx, f.cache, "record")
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, f.cache.Set(ctx, "text", "a \"quoted\" value", inMinute(t)))
	s, ok, err := cache.Get[string](ctx, f.cache, "text")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a \"quoted\" value", s)

	require.NoError(t, f.cache.Set(ctx, "list", []int{3, 1, 2}, inMinute(t)))
	l, ok, err := cache.Get[[]int](ctx, f.cache, "list")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int{3, 1, 2}, l)
}

// testSetReplaces tests that a second Set on the same key replaces the first.
func testSetReplaces(t *testing.T, f *fixture) {
	ctx := context.Background()

	require.NoError(t, f.cache.Set(ctx, "key", "first", inMinute(t)))
	require.NoError(t, f.cache.Set(ctx, "key", "second", inMinute(t)))

	got, ok, err := cache.Get[string](ctx, f.cache, "key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", got)
	f.assertCount(t, 1)
}

// testSetForever tests entries without expiry.
func testSetForever(t *testing.T, f *fixture) {
	ctx := context.Background()

	require.NoError(t, f.cache.SetForever(ctx, "forever", newRecord(2)))
	require.NoError(t, f.cache.Purge(ctx))

	got, ok, err := cache.Get[record](ctx, f.cache, "forever")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.ID)
}

// testGetMissing tests that a missing key is reported as absent, not as an error.
func testGetMissing(t *testing.T, f *fixture) {
	ctx := context.Background()

	got, ok, err := cache.Get[record](ctx, f.cache, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, record{}, got)
}

// testExpiry tests that an entry is no longer returned once expired and is
// removed by Purge.
func testExpiry(t *testing.T, f *fixture) {
	ctx := context.Background()

	e, err := cache.InMilliseconds(1)
	require.NoError(t, err)
	require.NoError(t, f.cache.Set(ctx, "short", "value", e))
	time.Sleep(50 * time.Millisecond)

	_, ok, err := cache.Get[string](ctx, f.cache, "short")
	require.NoError(t, err)
	assert.False(t, ok, "expired entry returned by Get")

	has, err := f.cache.Has(ctx, "short")
	require.NoError(t, err)
	assert.False(t, has, "expired entry reported by Has")

	require.NoError(t, f.cache.Purge(ctx))
	f.assertCount(t, 0)
}

// testHas tests the Has method of the cache.
func testHas(t *testing.T, f *fixture) {
	ctx := context.Background()

	has, err := f.cache.Has(ctx, "key")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, f.cache.Set(ctx, "key", 1, inMinute(t)))
	has, err = f.cache.Has(ctx, "key")
	require.NoError(t, err)
	assert.True(t, has)
}

// testForget tests the Forget method of the cache.
func testForget(t *testing.T, f *fixture) {
	ctx := context.Background()

	require.NoError(t, f.cache.Set(ctx, "key", "value", inMinute(t)))
	require.NoError(t, f.cache.Forget(ctx, "key"))

	has, err := f.cache.Has(ctx, "key")
	require.NoError(t, err)
	assert.False(t, has)

	// Non-existent key
	require.NoError(t, f.cache.Forget(ctx, "nonExistentKey"))
	f.assertCount(t, 0)
}

// testFlush tests the Flush method of the cache.
func testFlush(t *testing.T, f *fixture) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.cache.Set(ctx, fmt.Sprintf("key%d", i), i, inMinute(t)))
	}
	require.NoError(t, f.cache.Flush(ctx))

	for i := 0; i < 3; i++ {
		has, err := f.cache.Has(ctx, fmt.Sprintf("key%d", i))
		require.NoError(t, err)
		assert.False(t, has)
	}
	f.assertCount(t, 0)
}

var patternKeys = []string{"key1", "key2", "key3", "4yek"}

// testFlushPattern tests the FlushPattern method of the cache.
func testFlushPattern(t *testing.T, f *fixture) {
	ctx := context.Background()

	if f.opts.PatternMatchingDisabled {
		err := f.cache.FlushPattern(ctx, "key*")
		require.Error(t, err)
		assert.ErrorIs(t, err, cache.ErrPatternMatchingNotSupported)
		return
	}

	for _, key := range patternKeys {
		require.NoError(t, f.cache.Set(ctx, key, key, inMinute(t)))
	}

	require.NoError(t, f.cache.FlushPattern(ctx, "key*"))
	for _, key := range patternKeys[:3] {
		has, err := f.cache.Has(ctx, key)
		require.NoError(t, err)
		assert.False(t, has, "%s should have been flushed", key)
	}
	has, err := f.cache.Has(ctx, "4yek")
	require.NoError(t, err)
	assert.True(t, has, "4yek should not have been flushed")

	require.NoError(t, f.cache.FlushPattern(ctx, "?yek*"))
	has, err = f.cache.Has(ctx, "4yek")
	require.NoError(t, err)
	assert.False(t, has)

	// No match
	require.NoError(t, f.cache.FlushPattern(ctx, "nonExistentKey*"))
}

// testFlushPatternLiterals tests that characters special to the backend are
// matched literally.
func testFlushPatternLiterals(t *testing.T, f *fixture) {
	ctx := context.Background()
	if f.opts.PatternMatchingDisabled {
		t.Skip("pattern matching not supported")
	}

	require.NoError(t, f.cache.Set(ctx, "user_1", 1, inMinute(t)))
	require.NoError(t, f.cache.Set(ctx, "userX1", 2, inMinute(t)))
	require.NoError(t, f.cache.Set(ctx, "a.b", 3, inMinute(t)))
	require.NoError(t, f.cache.Set(ctx, "axb", 4, inMinute(t)))

	require.NoError(t, f.cache.FlushPattern(ctx, "user_*"))
	require.NoError(t, f.cache.FlushPattern(ctx, "a.b*"))

	for key, want := range map[string]bool{"user_1": false, "userX1": true, "a.b": false, "axb": true} {
		has, err := f.cache.Has(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, has, "key %s", key)
	}
}

// testQuery tests that Query returns the live values matching the pattern.
func testQuery(t *testing.T, f *fixture) {
	ctx := context.Background()

	if f.opts.PatternMatchingDisabled {
		_, err := cache.Query[string](ctx, f.cache, "*")
		require.Error(t, err)
		assert.ErrorIs(t, err, cache.ErrPatternMatchingNotSupported)
		return
	}

	for _, key := range patternKeys {
		require.NoError(t, f.cache.Set(ctx, key, key, inMinute(t)))
	}
	e, err := cache.InMilliseconds(1)
	require.NoError(t, err)
	require.NoError(t, f.cache.Set(ctx, "key4", "key4", e))
	time.Sleep(50 * time.Millisecond)

	got, err := cache.Query[string](ctx, f.cache, "key*")
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"key1", "key2", "key3"}, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("Query(key*) mismatch (-want +got):\n%s", diff)
	}

	got, err = cache.Query[string](ctx, f.cache, "*")
	require.NoError(t, err)
	if diff := cmp.Diff(patternKeys, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("Query(*) mismatch (-want +got):\n%s", diff)
	}

	got, err = cache.Query[string](ctx, f.cache, "nothing*")
	require.NoError(t, err)
	assert.Empty(t, got)
}

// testQuerySkipsUndecodable tests that entries of another type are skipped.
func testQuerySkipsUndecodable(t *testing.T, f *fixture) {
	ctx := context.Background()
	if f.opts.PatternMatchingDisabled {
		t.Skip("pattern matching not supported")
	}

	require.NoError(t, f.cache.Set(ctx, "item1", newRecord(1), inMinute(t)))
	require.NoError(t, f.cache.Set(ctx, "item2", "not a record", inMinute(t)))
	require.NoError(t, f.cache.Set(ctx, "item3", newRecord(3), inMinute(t)))

	got, err := cache.Query[record](ctx, f.cache, "item*")
	require.NoError(t, err)
	if diff := cmp.Diff([]record{newRecord(1), newRecord(3)}, got,
		cmpopts.SortSlices(func(a, b record) bool { return a.ID < b.ID })); diff != "" {
		t.Errorf("Query() mismatch (-want +got):\n%s", diff)
	}
}

// testPull tests that Pull returns the value and removes the entry.
func testPull(t *testing.T, f *fixture) {
	ctx := context.Background()
	want := newRecord(7)

	require.NoError(t, f.cache.SetForever(ctx, "key", want))
	got, ok, err := cache.Pull[record](ctx, f.cache, "key")
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Pull() mismatch (-want +got):\n%s", diff)
	}

	_, ok, err = cache.Get[record](ctx, f.cache, "key")
	require.NoError(t, err)
	assert.False(t, ok, "pulled entry still present")

	_, ok, err = cache.Pull[record](ctx, f.cache, "key")
	require.NoError(t, err)
	assert.False(t, ok)
	f.assertCount(t, 0)
}

// testPullExpired tests that Pull deletes an expired entry without returning it.
func testPullExpired(t *testing.T, f *fixture) {
	ctx := context.Background()

	e, err := cache.InMilliseconds(1)
	require.NoError(t, err)
	require.NoError(t, f.cache.Set(ctx, "key", "value", e))
	time.Sleep(50 * time.Millisecond)

	_, ok, err := cache.Pull[string](ctx, f.cache, "key")
	require.NoError(t, err)
	assert.False(t, ok)
	f.assertCount(t, 0)
}

// testGetOrSet tests that the factory runs only on a miss.
func testGetOrSet(t *testing.T, f *fixture) {
	ctx := context.Background()
	var calls atomic.Int32
	factory := func(context.Context) (record, error) {
		calls.Add(1)
		return newRecord(5), nil
	}

	got, err := cache.GetOrSet(ctx, f.cache, "key", factory, inMinute(t))
	require.NoError(t, err)
	assertRecord(t, newRecord(5), got)
	assert.Equal(t, int32(1), calls.Load())

	got, err = cache.GetOrSet(ctx, f.cache, "key", factory, inMinute(t))
	require.NoError(t, err)
	assertRecord(t, newRecord(5), got)
	assert.Equal(t, int32(1), calls.Load(), "factory invoked on a hit")

	require.NoError(t, f.cache.SetForever(ctx, "preset", newRecord(9)))
	got, err = cache.GetOrSetForever(ctx, f.cache, "preset", factory)
	require.NoError(t, err)
	assert.Equal(t, 9, got.ID)
	assert.Equal(t, int32(1), calls.Load(), "factory invoked on a hit")
	f.assertCount(t, 2)
}

// testGetOrSetFactoryError tests that a failing factory stores nothing.
func testGetOrSetFactoryError(t *testing.T, f *fixture) {
	ctx := context.Background()
	errFactory := errors.New("factory failed")

	_, err := cache.GetOrSet(ctx, f.cache, "key", func(context.Context) (string, error) {
		return "", errFactory
	}, inMinute(t))
	require.ErrorIs(t, err, errFactory)

	has, err := f.cache.Has(ctx, "key")
	require.NoError(t, err)
	assert.False(t, has)
}

// testPurge tests that Purge removes expired entries only.
func testPurge(t *testing.T, f *fixture) {
	ctx := context.Background()

	e, err := cache.InMilliseconds(1)
	require.NoError(t, err)
	require.NoError(t, f.cache.Set(ctx, "expired1", 1, e))
	require.NoError(t, f.cache.Set(ctx, "expired2", 2, e))
	require.NoError(t, f.cache.Set(ctx, "live", 3, inMinute(t)))
	require.NoError(t, f.cache.SetForever(ctx, "forever", 4))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, f.cache.Purge(ctx))
	f.assertCount(t, 2)

	for _, key := range []string{"live", "forever"} {
		has, err := f.cache.Has(ctx, key)
		require.NoError(t, err)
		assert.True(t, has, "%s purged", key)
	}
}

type validationCase struct {
	name string
	call func() error
}

// testValidation tests that invalid input is rejected without touching storage.
func testValidation(t *testing.T, f *fixture) {
	ctx := context.Background()
	require.NoError(t, f.cache.Set(ctx, "key1", "value", inMinute(t)))
	var nilRecord *record

	tests := []validationCase{
		{"empty key", func() error { return f.cache.Set(ctx, "", "value", inMinute(t)) }},
		{"blank key", func() error { return f.cache.Set(ctx, "   ", "value", inMinute(t)) }},
		{"long key", func() error { return f.cache.Set(ctx, strings.Repeat("k", 256), "value", inMinute(t)) }},
		{"nil value", func() error { return f.cache.Set(ctx, "key2", nil, inMinute(t)) }},
		{"nil pointer value", func() error { return f.cache.Set(ctx, "key2", nilRecord, inMinute(t)) }},
		{"zero expiry", func() error { return f.cache.Set(ctx, "key2", "value", cache.Expire{}) }},
		{"forget empty key", func() error { return f.cache.Forget(ctx, "") }},
		{"pull empty key", func() error { _, err := f.cache.Pull(ctx, "", new(string)); return err }},
		{"get empty key", func() error { _, err := f.cache.Get(ctx, "", new(string)); return err }},
	}
	if !f.opts.PatternMatchingDisabled {
		tests = append(tests,
			validationCase{"pattern without wildcard", func() error { return f.cache.FlushPattern(ctx, "key1") }},
			validationCase{"empty pattern", func() error { return f.cache.FlushPattern(ctx, "") }},
		)
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, cache.ErrValidation)
		})
	}

	got, ok, err := cache.Get[string](ctx, f.cache, "key1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", got)
	has, err := f.cache.Has(ctx, "key2")
	require.NoError(t, err)
	assert.False(t, has)
	f.assertCount(t, 1)
}

// testConcurrentSet tests concurrent writes on distinct keys.
func testConcurrentSet(t *testing.T, f *fixture) {
	ctx := context.Background()
	const n = 100
	expire := inMinute(t)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return f.cache.Set(ctx, fmt.Sprintf("concurrent%d", i), newRecord(i), expire)
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < n; i++ {
		got, ok, err := cache.Get[record](ctx, f.cache, fmt.Sprintf("concurrent%d", i))
		require.NoError(t, err)
		require.True(t, ok, "key %d missing", i)
		assertRecord(t, newRecord(i), got)
	}
	f.assertCount(t, n)
}

// testPing tests the Ping method of the cache.
func testPing(t *testing.T, f *fixture) {
	require.NoError(t, f.cache.Ping(context.Background()))
}

// testClose tests that a closed cache rejects operations.
func testClose(t *testing.T, f *fixture) {
	ctx := context.Background()

	require.NoError(t, f.cache.Close())
	require.NoError(t, f.cache.Close())

	assert.ErrorIs(t, f.cache.Ping(ctx), cache.ErrClosed)
	assert.ErrorIs(t, f.cache.Set(ctx, "key", "value", inMinute(t)), cache.ErrClosed)
	_, err := f.cache.Has(ctx, "key")
	assert.ErrorIs(t, err, cache.ErrClosed)
}
