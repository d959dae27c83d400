package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Tx is a thin wrapper around *sql.Tx mirroring the DB API so repositories
// can run against either through Querier.
type Tx struct {
	sqltx *sql.Tx
	hooks hookChain
}

// Exec executes a statement that does not return rows.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	t.hooks.Before(ctx, query, args)
	res, err := t.sqltx.ExecContext(ctx, query, args...)
	err = mapError(err)
	t.hooks.After(ctx, query, args, time.Since(start), err)
	return res, err
}

// Query executes a query returning rows. The caller must close the rows.
func (t *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	t.hooks.Before(ctx, query, args)
	rows, err := t.sqltx.QueryContext(ctx, query, args...)
	err = mapError(err)
	t.hooks.After(ctx, query, args, time.Since(start), err)
	return rows, err
}

// QueryRow executes a query expected to return at most one row.
func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *Row {
	start := time.Now()
	t.hooks.Before(ctx, query, args)
	raw := t.sqltx.QueryRowContext(ctx, query, args...)
	t.hooks.After(ctx, query, args, time.Since(start), nil)
	return &Row{raw: raw}
}

// Prepare creates a prepared statement bound to the transaction.
func (t *Tx) Prepare(ctx context.Context, query string) (*Stmt, error) {
	s, err := t.sqltx.PrepareContext(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	return &Stmt{stmt: s, query: query, hooks: t.hooks}, nil
}

// ExecTx runs fn inside a transaction using the dialect's isolation level. It
// commits when fn returns nil and rolls back on error or panic, so no partial
// write of fn is ever visible.
func (db *DB) ExecTx(ctx context.Context, fn func(*Tx) error) (err error) {
	opts := &sql.TxOptions{Isolation: db.dialect.Isolation}
	if db.dialect.Isolation == sql.LevelDefault {
		opts = nil
	}

	sqltx, err := db.conn.BeginTx(ctx, opts)
	if err != nil {
		return mapError(err)
	}
	tx := &Tx{sqltx: sqltx, hooks: db.hooks}

	defer func() {
		if p := recover(); p != nil {
			_ = sqltx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqltx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				err = fmt.Errorf("database: rollback failed (%v) after: %w", rbErr, err)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return mapError(err)
	}
	if err = sqltx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// Querier is the interface shared by *DB and *Tx.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *Row
	Prepare(ctx context.Context, query string) (*Stmt, error)
}

var (
	_ Querier = (*DB)(nil)
	_ Querier = (*Tx)(nil)
)
