package drivertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bartventer/persistedcache/pkg/driver"
)

// mockStore is a minimal driver.Store without transactions or pattern matching.
type mockStore struct {
	mu    sync.Mutex
	items map[string]driver.Entry
}

var _ driver.Store = (*mockStore)(nil)

func (m *mockStore) Setup(context.Context) error { return nil }

func (m *mockStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, m)
}

func (m *mockStore) RunInConnection(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) error {
	return m.RunInTransaction(ctx, fn)
}

func (m *mockStore) Capabilities() driver.Capabilities {
	return driver.Capabilities{Scheme: "mock"}
}

func (m *mockStore) Ping(context.Context) error { return nil }

func (m *mockStore) Close() error { return nil }

func (m *mockStore) Get(_ context.Context, key string, now time.Time) ([]byte, bool, error) {
	e, ok := m.items[key]
	if !ok || !e.IsLive(now) {
		return nil, false, nil
	}
	return e.Value, true, nil
}

func (m *mockStore) Has(ctx context.Context, key string, now time.Time) (bool, error) {
	_, ok, err := m.Get(ctx, key, now)
	return ok, err
}

func (m *mockStore) Set(_ context.Context, entry driver.Entry) error {
	m.items[entry.Key] = entry
	return nil
}

func (m *mockStore) Forget(_ context.Context, key string) error {
	delete(m.items, key)
	return nil
}

func (m *mockStore) Flush(context.Context) error {
	m.items = make(map[string]driver.Entry)
	return nil
}

func (m *mockStore) FlushPattern(context.Context, string) error {
	return driver.ErrPatternMatchingNotSupported
}

func (m *mockStore) Purge(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for key, e := range m.items {
		if !e.IsLive(now) {
			delete(m.items, key)
			n++
		}
	}
	return n, nil
}

func (m *mockStore) Query(context.Context, string, time.Time) ([][]byte, error) {
	return nil, driver.ErrPatternMatchingNotSupported
}

type mockHarness struct {
	store *mockStore
}

func (h *mockHarness) MakeStore(context.Context) (driver.Store, error) {
	h.store = &mockStore{items: make(map[string]driver.Entry)}
	return h.store, nil
}

func (h *mockHarness) Count(context.Context) (int64, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return int64(len(h.store.items)), nil
}

func (h *mockHarness) Close() {}

func (h *mockHarness) Options() Options {
	return Options{PatternMatchingDisabled: true}
}

func TestConformance(t *testing.T) {
	RunConformanceTests(t, func(ctx context.Context, t *testing.T) (Harness, error) {
		return &mockHarness{}, nil
	})
}
