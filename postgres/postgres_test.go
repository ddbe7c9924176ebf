package postgres

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	cache "github.com/bartventer/persistedcache"
	"github.com/bartventer/persistedcache/drivertest"
	"github.com/bartventer/persistedcache/internal/testutil"
	"github.com/bartventer/persistedcache/pkg/driver"
	"github.com/bartventer/persistedcache/pkg/sqldriver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultPort = "5432/tcp"

func TestNewStore_InvalidConnString(t *testing.T) {
	t.Parallel()
	_, err := NewStore(Options{ConnString: "postgres://localhost:notaport/app"})
	require.Error(t, err)
	assert.ErrorIs(t, err, cache.ErrValidation)
}

func Test_dialect(t *testing.T) {
	t.Parallel()
	d := dialect("cache", `odd"name`)
	assert.Equal(t, `DELETE FROM "cache"."odd""name"`, d.Flush)
	assert.Equal(t, maxKeyLength, d.MaxKeyLength)
	assert.Len(t, d.Setup, 3)
}

// setupPostgres starts a PostgreSQL container and returns its connection string.
func setupPostgres(t *testing.T) string {
	t.Helper()
	endpoint := testutil.StartContainer(t, testutil.ContainerRequest{
		Image: "postgres:16-alpine",
		Port:  defaultPort,
		Env: map[string]string{
			"POSTGRES_USER":     "cache",
			"POSTGRES_PASSWORD": "cache",
			"POSTGRES_DB":       "cache",
		},
		HealthCheck: []string{"pg_isready", "-U", "cache", "-d", "cache"},
	})
	return fmt.Sprintf("postgres://cache:cache@%s/cache?sslmode=disable", endpoint)
}

type harness struct {
	connString string
	table      string
	store      *sqldriver.Store
}

func (h *harness) MakeStore(context.Context) (driver.Store, error) {
	s, err := NewStore(Options{ConnString: h.connString, TableName: h.table})
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
	connString := setupPostgres(t)
	var n atomic.Int64
	drivertest.RunConformanceTests(t, func(ctx context.Context, t *testing.T) (drivertest.Harness, error) {
		return &harness{
			connString: connString,
			table:      fmt.Sprintf("cache_%d", n.Add(1)),
		}, nil
	})
}

func TestOpenCache(t *testing.T) {
	connString := setupPostgres(t)
	ctx := context.Background()

	c, err := cache.OpenCache(ctx, connString+"&schema=public&tablename=opened&disablepurge=true")
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Ping(ctx))
	assert.Equal(t, Scheme, c.Capabilities().Scheme)
}
