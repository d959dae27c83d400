package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// NewMigrator builds a migrate instance over the embedded migrations of the
// driver's dialect. It owns a dedicated connection pool which m.Close releases.
func NewMigrator(driverName, dsn string, logger *slog.Logger) (*migrate.Migrate, error) {
	dialect, err := DialectFor(driverName)
	if err != nil {
		return nil, err
	}
	if driverName == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	src, err := iofs.New(migrationsFS, dialect.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open migration connection: %w", err)
	}

	var target migratedb.Driver
	switch driverName {
	case DriverSQLite:
		target, err = sqlite3.WithInstance(conn, &sqlite3.Config{})
	default:
		target, err = postgres.WithInstance(conn, &postgres.Config{})
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driverName, target)
	if err != nil {
		_ = target.Close()
		return nil, fmt.Errorf("migration init: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	m.Log = &migrateLogger{logger: logger}
	return m, nil
}

// Migrate applies every pending up migration.
func Migrate(driverName, dsn string, logger *slog.Logger) error {
	m, err := NewMigrator(driverName, dsn, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *migrateLogger) Verbose() bool { return false }
