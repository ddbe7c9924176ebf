// Package sqldriver implements [driver.Store] over database/sql. Backends
// describe themselves with a [Dialect]; the store binds its scripts and runs
// them on dedicated connections.
package sqldriver

import (
	"context"
	"database/sql"
	"time"

	"github.com/bartventer/persistedcache/pkg/driver"
	"github.com/cockroachdb/errors"
)

// Store is a [driver.Store] executing the scripts of a [Dialect].
type Store struct {
	db      *sql.DB
	dialect Dialect
	factory *ConnectionFactory
}

var _ driver.Store = (*Store)(nil)

// NewStore returns a store over db. The store takes ownership of db.
func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		factory: NewConnectionFactory(db, dialect.Isolation),
	}
}

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// Setup implements [driver.Store].
func (s *Store) Setup(ctx context.Context) error {
	for _, stmt := range s.dialect.Setup {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "setup")
		}
	}
	return nil
}

// RunInTransaction implements [driver.Store].
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) error {
	return s.factory.RunInTransaction(ctx, func(ctx context.Context, q Querier) error {
		return fn(ctx, s.bind(q))
	})
}

// RunInConnection implements [driver.Store].
func (s *Store) RunInConnection(ctx context.Context, fn func(ctx context.Context, tx driver.Tx) error) error {
	return s.factory.RunInConnection(ctx, func(ctx context.Context, q Querier) error {
		return fn(ctx, s.bind(q))
	})
}

func (s *Store) bind(q Querier) driver.Tx {
	t := &tx{q: q, d: &s.dialect}
	if s.dialect.Pull != "" {
		return &pullTx{t}
	}
	return t
}

// Capabilities implements [driver.Store].
func (s *Store) Capabilities() driver.Capabilities {
	return s.dialect.capabilities()
}

// Ping implements [driver.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements [driver.Store].
func (s *Store) Close() error {
	return s.db.Close()
}

// Count returns the number of stored entries, expired ones included.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, s.dialect.Count).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count")
	}
	return n, nil
}

// tx runs dialect scripts on a connection or transaction.
type tx struct {
	q Querier
	d *Dialect
}

var _ driver.Tx = (*tx)(nil)

func (t *tx) Get(ctx context.Context, key string, now time.Time) ([]byte, bool, error) {
	var v sql.NullString
	err := t.q.QueryRowContext(ctx, t.d.Get, t.d.args(ArgKey, key, ArgNow, t.d.time(now))...).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !v.Valid {
		return nil, true, nil
	}
	return []byte(v.String), true, nil
}

func (t *tx) Has(ctx context.Context, key string, now time.Time) (bool, error) {
	var one int
	err := t.q.QueryRowContext(ctx, t.d.Has, t.d.args(ArgKey, key, ArgNow, t.d.time(now))...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (t *tx) Set(ctx context.Context, entry driver.Entry) error {
	_, err := t.q.ExecContext(ctx, t.d.Set, t.d.args(
		ArgKey, entry.Key,
		ArgValue, string(entry.Value),
		ArgExpiry, t.d.time(entry.Expiry),
	)...)
	return err
}

func (t *tx) Forget(ctx context.Context, key string) error {
	_, err := t.q.ExecContext(ctx, t.d.Forget, t.d.args(ArgKey, key)...)
	return err
}

func (t *tx) Flush(ctx context.Context) error {
	_, err := t.q.ExecContext(ctx, t.d.Flush)
	return err
}

func (t *tx) FlushPattern(ctx context.Context, pattern string) error {
	if t.d.FlushPattern == "" {
		return driver.ErrPatternMatchingNotSupported
	}
	_, err := t.q.ExecContext(ctx, t.d.FlushPattern, t.d.args(ArgPattern, pattern)...)
	return err
}

func (t *tx) Purge(ctx context.Context, now time.Time) (int64, error) {
	res, err := t.q.ExecContext(ctx, t.d.Purge, t.d.args(ArgNow, t.d.time(now))...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return n, nil
}

func (t *tx) Query(ctx context.Context, pattern string, now time.Time) ([][]byte, error) {
	if t.d.Query == "" {
		return nil, driver.ErrPatternMatchingNotSupported
	}
	rows, err := t.q.QueryContext(ctx, t.d.Query, t.d.args(ArgPattern, pattern, ArgNow, t.d.time(now))...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values [][]byte
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid {
			values = append(values, []byte(v.String))
		}
	}
	return values, rows.Err()
}

// pullTx adds single-statement removal for dialects with a Pull script.
type pullTx struct {
	*tx
}

var _ driver.Puller = (*pullTx)(nil)

func (t *pullTx) Pull(ctx context.Context, key string) (driver.Entry, bool, error) {
	var (
		v      sql.NullString
		expiry timeScanner
	)
	err := t.q.QueryRowContext(ctx, t.d.Pull, t.d.args(ArgKey, key)...).Scan(&v, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return driver.Entry{}, false, nil
	}
	if err != nil {
		return driver.Entry{}, false, err
	}
	return driver.Entry{Key: key, Value: []byte(v.String), Expiry: expiry.t}, true, nil
}
