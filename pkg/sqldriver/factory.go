package sqldriver

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// Querier is implemented by [sql.Conn] and [sql.Tx].
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.Conn)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// ConnectionFactory runs units of work on dedicated connections of a pool.
type ConnectionFactory struct {
	db        *sql.DB
	isolation sql.IsolationLevel
}

// NewConnectionFactory returns a factory starting transactions at isolation.
func NewConnectionFactory(db *sql.DB, isolation sql.IsolationLevel) *ConnectionFactory {
	return &ConnectionFactory{db: db, isolation: isolation}
}

// RunInTransaction acquires a connection, begins a transaction and calls fn.
// The transaction is committed when fn returns nil and rolled back when fn
// fails or panics. The connection is returned to the pool on every path.
func (f *ConnectionFactory) RunInTransaction(ctx context.Context, fn func(ctx context.Context, q Querier) error) (err error) {
	conn, err := f.db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire connection")
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: f.isolation})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.WithSecondaryError(err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// RunInConnection acquires a connection and calls fn without a transaction.
func (f *ConnectionFactory) RunInConnection(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	conn, err := f.db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire connection")
	}
	defer conn.Close()
	return fn(ctx, conn)
}
