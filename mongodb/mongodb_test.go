package mongodb

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	cache "github.com/bartventer/persistedcache"
	"github.com/bartventer/persistedcache/drivertest"
	"github.com/bartventer/persistedcache/internal/testutil"
	"github.com/bartventer/persistedcache/pkg/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultPort = "27017/tcp"

func Test_keyRegex(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "^(?:key.*|other)$", keyRegex("key.*|other").Pattern)
}

// setupMongoDB starts a MongoDB container and returns its URI.
func setupMongoDB(t *testing.T) string {
	t.Helper()
	endpoint := testutil.StartContainer(t, testutil.ContainerRequest{
		Image:       "mongo:7",
		Port:        defaultPort,
		HealthCheck: []string{"mongosh", "--quiet", "--eval", "db.adminCommand('ping').ok"},
	})
	return "mongodb://" + endpoint
}

type harness struct {
	uri        string
	collection string
	store      *Store
}

func (h *harness) MakeStore(ctx context.Context) (driver.Store, error) {
	s, err := NewStore(ctx, Options{URI: h.uri, Database: "cache", Collection: h.collection})
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

func TestConformance(t *testing.T) {
	uri := setupMongoDB(t)
	var n atomic.Int64
	drivertest.RunConformanceTests(t, func(ctx context.Context, t *testing.T) (drivertest.Harness, error) {
		return &harness{uri: uri, collection: fmt.Sprintf("cache_%d", n.Add(1))}, nil
	})
}

func TestRegexPatterns(t *testing.T) {
	uri := setupMongoDB(t)
	ctx := context.Background()

	c, err := cache.OpenCache(ctx, uri+"/cache?collection=regex&regexpatterns=true&disablepurge=true")
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, c.Capabilities().RegexPatterns)

	for _, key := range []string{"user1", "user2", "userX", "admin1"} {
		require.NoError(t, c.SetForever(ctx, key, key))
	}
	got, err := cache.Query[string](ctx, c, "user[0-9]")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user1", "user2"}, got)

	require.NoError(t, c.FlushPattern(ctx, "user[0-9]|admin1"))
	got, err = cache.Query[string](ctx, c, ".*")
	require.NoError(t, err)
	assert.Equal(t, []string{"userX"}, got)
}
