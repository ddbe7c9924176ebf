/*
Package sqlite implements a SQLite storage driver for the persisted cache,
backed by the pure Go modernc.org/sqlite driver.

# URL Format

The URL should have the following format:

	sqlite://[path][?query]

The path locates the database file; an empty path opens an in-memory database.
Relative paths are written as sqlite://cache.db, absolute ones as
sqlite:///var/lib/app/cache.db.

The query part, though optional, can be used for additional configuration
through query parameters. Keys matching the case-insensitive field names of
[Options] configure the driver; every other parameter (for example _pragma or
_txlock) is forwarded to modernc.org/sqlite.

# Usage

Example via the URL opener:

	import (
	    "context"
	    "log"

	    cache "github.com/bartventer/persistedcache"
	    _ "github.com/bartventer/persistedcache/sqlite"
	)

	func main() {
	    ctx := context.Background()
	    c, err := cache.OpenCache(ctx, "sqlite:///var/lib/app/cache.db?tablename=entries")
	    if err != nil {
	        log.Fatalf("Failed to initialize cache: %v", err)
	    }
	    defer c.Close()
	    // ... use c
	}

Example via [sqlite.New] constructor:

	c, err := sqlite.New(ctx, sqlite.Options{Path: "cache.db"})

# Storage

Entries live in one table (persisted_cache by default) with the value as JSON
text and the expiry as fixed-width RFC 3339 text, so that lexical comparison
orders instants. The pool holds a single connection: SQLite serializes
writers anyway and the cache transactions never wait on a second connection.
*/
package sqlite

import (
	"context"
	"database/sql"
	"net/url"

	cache "github.com/bartventer/persistedcache"
	"github.com/bartventer/persistedcache/internal/pcerrors"
	"github.com/bartventer/persistedcache/pkg/driver"
	"github.com/bartventer/persistedcache/pkg/sqldriver"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Scheme is the cache scheme for SQLite.
const Scheme = "sqlite"

// driverName is the database/sql driver registered by modernc.org/sqlite.
const driverName = "sqlite"

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

// New returns a cache stored in the SQLite database described by options.
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

// NewStore opens the database described by options.
func NewStore(options Options) (*sqldriver.Store, error) {
	options.revise()
	db, err := sql.Open(driverName, options.dsn())
	if err != nil {
		return nil, pcerrors.Mark(Scheme, err, cache.ErrStorage)
	}
	db.SetMaxOpenConns(1)
	return sqldriver.NewStore(db, dialect(options.TableName)), nil
}

// dialect returns the scripts for table.
func dialect(table string) sqldriver.Dialect {
	t := quote(table)
	return sqldriver.Dialect{
		Scheme: Scheme,
		Setup: []string{
			`CREATE TABLE IF NOT EXISTS ` + t + ` ("key" TEXT NOT NULL PRIMARY KEY, "value" TEXT NOT NULL, "expiry" TEXT NOT NULL)`,
			`CREATE INDEX IF NOT EXISTS ` + quote(sqldriver.IndexName(table, "key_expiry")) + ` ON ` + t + ` ("key", "expiry")`,
			`CREATE INDEX IF NOT EXISTS ` + quote(sqldriver.IndexName(table, "expiry")) + ` ON ` + t + ` ("expiry")`,
		},
		Get:          `SELECT "value" FROM ` + t + ` WHERE "key" = ? AND "expiry" > ?`,
		Has:          `SELECT 1 FROM ` + t + ` WHERE "key" = ? AND "expiry" > ?`,
		Set:          `INSERT INTO ` + t + ` ("key", "value", "expiry") VALUES (?, ?, ?) ON CONFLICT ("key") DO UPDATE SET "value" = excluded."value", "expiry" = excluded."expiry"`,
		Forget:       `DELETE FROM ` + t + ` WHERE "key" = ?`,
		Flush:        `DELETE FROM ` + t,
		FlushPattern: `DELETE FROM ` + t + ` WHERE "key" LIKE ? ESCAPE '\'`,
		Purge:        `DELETE FROM ` + t + ` WHERE "expiry" <= ?`,
		Query:        `SELECT "value" FROM ` + t + ` WHERE "key" LIKE ? ESCAPE '\' AND "expiry" > ?`,
		Pull:         `DELETE FROM ` + t + ` WHERE "key" = ? RETURNING "value", "expiry"`,
		Count:        `SELECT COUNT(*) FROM ` + t,
		Wildcards:    driver.SQLLikeWildcards,
		Isolation:    sql.LevelDefault,
		EncodeTime:   sqldriver.EncodeTextTime,
	}
}

func quote(name string) string {
	return sqldriver.QuoteIdentifier(name, `"`, `"`)
}
