// Package database wraps database/sql with the pieces the contact store needs:
// per-driver dialects, transactions, error mapping, statement hooks and
// embedded schema migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
)

// Config holds the options for opening the connection pool.
type Config struct {
	// DSN is the driver-specific data source name. For sqlite3 it is a file path.
	DSN string
	// DriverName is one of DriverSQLite, DriverPostgres or DriverPGX.
	DriverName string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// DefaultTimeout applies to statements whose context has no deadline.
	// Zero disables it.
	DefaultTimeout time.Duration

	// Hooks run around every statement. Nil entries are skipped.
	Hooks []Hook

	Logger *slog.Logger
}

// Dialect captures what differs between the supported engines.
type Dialect struct {
	Name string
	// RowLocking appends FOR UPDATE to component reads.
	RowLocking bool
	// Isolation is the isolation level requested for read-write transactions.
	Isolation sql.IsolationLevel
	// MigrationsDir is the embedded migrations directory for the engine.
	MigrationsDir string
}

// DialectFor returns the dialect of a driver name.
func DialectFor(driverName string) (Dialect, error) {
	switch driverName {
	case DriverSQLite:
		// BEGIN IMMEDIATE (see sqliteDSN) already serializes writers.
		return Dialect{Name: DriverSQLite, Isolation: sql.LevelDefault, MigrationsDir: "migrations/sqlite3"}, nil
	case DriverPostgres, DriverPGX:
		return Dialect{Name: driverName, RowLocking: true, Isolation: sql.LevelSerializable, MigrationsDir: "migrations/postgres"}, nil
	}
	return Dialect{}, fmt.Errorf("database: unsupported driver %q", driverName)
}

// DB wraps the sql.DB connection
type DB struct {
	conn    *sql.DB
	cfg     Config
	dialect Dialect
	hooks   hookChain
	logger  *slog.Logger
}

// Open opens the pool described by cfg and verifies connectivity.
func Open(cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database: DSN must not be empty")
	}
	dialect, err := DialectFor(cfg.DriverName)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if cfg.DriverName == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	conn, err := sql.Open(cfg.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db := &DB{
		conn:    conn,
		cfg:     cfg,
		dialect: dialect,
		hooks:   newHookChain(cfg.Hooks, logger),
		logger:  logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", mapError(err))
	}
	return db, nil
}

// New opens the database and applies pending migrations.
func New(cfg Config) (*DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(cfg.DriverName, cfg.DSN, db.logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	db.logger.Info("database initialized", slog.String("driver", cfg.DriverName))
	return db, nil
}

// Dialect returns the engine dialect of the pool.
func (db *DB) Dialect() Dialect { return db.dialect }

// Raw returns the underlying *sql.DB.
func (db *DB) Raw() *sql.DB { return db.conn }

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.withDefaultTimeout(ctx)
	defer cancel()
	return mapError(db.conn.PingContext(ctx))
}

// Stats returns pool statistics.
func (db *DB) Stats() sql.DBStats { return db.conn.Stats() }

// Exec executes a statement that returns no rows.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := db.withDefaultTimeout(ctx)
	defer cancel()
	start := time.Now()
	db.hooks.Before(ctx, query, args)
	res, err := db.conn.ExecContext(ctx, query, args...)
	err = mapError(err)
	db.hooks.After(ctx, query, args, time.Since(start), err)
	return res, err
}

// Query executes a query that returns rows. The caller must close the rows.
// The default timeout is not applied here because it would cancel the rows
// before the caller reads them.
func (db *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	db.hooks.Before(ctx, query, args)
	rows, err := db.conn.QueryContext(ctx, query, args...)
	err = mapError(err)
	db.hooks.After(ctx, query, args, time.Since(start), err)
	return rows, err
}

// QueryRow executes a query expected to return at most one row.
func (db *DB) QueryRow(ctx context.Context, query string, args ...any) *Row {
	start := time.Now()
	db.hooks.Before(ctx, query, args)
	raw := db.conn.QueryRowContext(ctx, query, args...)
	db.hooks.After(ctx, query, args, time.Since(start), nil)
	return &Row{raw: raw}
}

// Prepare creates a prepared statement. The caller must close it.
func (db *DB) Prepare(ctx context.Context, query string) (*Stmt, error) {
	s, err := db.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	return &Stmt{stmt: s, query: query, hooks: db.hooks}, nil
}

func (db *DB) withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.cfg.DefaultTimeout == 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, db.cfg.DefaultTimeout)
}

// Row wraps *sql.Row and maps errors through the error taxonomy.
type Row struct {
	raw *sql.Row
}

// Scan copies the matched row into dest. ErrNotFound is returned when no row matched.
func (r *Row) Scan(dest ...any) error {
	return mapError(r.raw.Scan(dest...))
}

// Stmt wraps a prepared *sql.Stmt with hook dispatch and error mapping.
type Stmt struct {
	stmt  *sql.Stmt
	query string
	hooks hookChain
}

// Exec executes the prepared statement.
func (s *Stmt) Exec(ctx context.Context, args ...any) (sql.Result, error) {
	start := time.Now()
	s.hooks.Before(ctx, s.query, args)
	res, err := s.stmt.ExecContext(ctx, args...)
	err = mapError(err)
	s.hooks.After(ctx, s.query, args, time.Since(start), err)
	return res, err
}

// Close releases the prepared statement.
func (s *Stmt) Close() error { return s.stmt.Close() }

var sqliteDefaults = []string{
	"_txlock=immediate",
	"_busy_timeout=5000",
	"_foreign_keys=on",
	"_journal_mode=WAL",
}

// sqliteDSN adds the connection parameters the store relies on unless the
// caller already set them.
func sqliteDSN(dsn string) string {
	for _, param := range sqliteDefaults {
		key := param[:strings.Index(param, "=")+1]
		if strings.Contains(dsn, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + param
		} else {
			dsn += "?" + param
		}
	}
	return dsn
}
