package database_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-reconciliation/internal/database"
)

type recordingCollector struct {
	mu  sync.Mutex
	ops []string
	ok  []bool
}

func (c *recordingCollector) RecordQuery(op string, _ time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, op)
	c.ok = append(c.ok, success)
}

func newTestDB(t *testing.T, hooks ...database.Hook) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		DSN:        filepath.Join(t.TempDir(), "contacts.db"),
		DriverName: database.DriverSQLite,
		Hooks:      hooks,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func countContacts(t *testing.T, db *database.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(context.Background(), `SELECT COUNT(*) FROM contacts`).Scan(&n))
	return n
}

func insertContact(ctx context.Context, q database.Querier, email string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO contacts (email, link_precedence, created_at, updated_at) VALUES ($1, 'primary', $2, $3)`,
		email, time.Now().UTC(), time.Now().UTC())
	return err
}

func TestNewRunsMigrations(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, 0, countContacts(t, db))
	assert.Equal(t, database.DriverSQLite, db.Dialect().Name)
	assert.False(t, db.Dialect().RowLocking)
}

func TestNewIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.db")
	for i := 0; i < 2; i++ {
		db, err := database.New(database.Config{DSN: path, DriverName: database.DriverSQLite})
		require.NoError(t, err)
		require.NoError(t, db.Close())
	}
}

func TestMigratorStepsDownAndUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.db")
	m, err := database.NewMigrator(database.DriverSQLite, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = m.Close() })

	require.NoError(t, m.Up())
	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	require.NoError(t, m.Steps(-1))
	_, _, err = m.Version()
	assert.ErrorIs(t, err, migrate.ErrNilVersion)

	require.NoError(t, m.Up())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := database.Open(database.Config{DSN: "x", DriverName: "oracle"})
	require.Error(t, err)
}

func TestExecTxCommits(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.ExecTx(ctx, func(tx *database.Tx) error {
		return insertContact(ctx, tx, "a@example.com")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countContacts(t, db))
}

func TestExecTxRollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.ExecTx(ctx, func(tx *database.Tx) error {
		if err := insertContact(ctx, tx, "a@example.com"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countContacts(t, db))
}

func TestExecTxRollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = db.ExecTx(ctx, func(tx *database.Tx) error {
			_ = insertContact(ctx, tx, "a@example.com")
			panic("boom")
		})
	})
	assert.Equal(t, 0, countContacts(t, db))
}

func TestCheckViolationIsMapped(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Exec(context.Background(),
		`INSERT INTO contacts (email, link_precedence) VALUES ($1, $2)`, "a@example.com", "tertiary")
	require.ErrorIs(t, err, database.ErrCheckViolation)
	assert.False(t, database.IsTransient(err))
}

func TestQueryRowNotFound(t *testing.T) {
	db := newTestDB(t)
	var id int64
	err := db.QueryRow(context.Background(), `SELECT id FROM contacts WHERE id = $1`, 42).Scan(&id)
	assert.True(t, database.IsNotFound(err))
}

func TestCancelledContextIsTimeout(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := db.ExecTx(ctx, func(tx *database.Tx) error { return nil })
	assert.True(t, database.IsTimeout(err), "got %v", err)
}

func TestHooksObserveStatements(t *testing.T) {
	collector := &recordingCollector{}
	db := newTestDB(t, database.NewMetricsHook(collector), database.NewLogHook(database.LogHookConfig{LogArgs: true}))
	ctx := context.Background()

	require.NoError(t, insertContact(ctx, db, "a@example.com"))
	_, err := db.Exec(ctx, `INSERT INTO contacts (link_precedence) VALUES ('nope')`)
	require.Error(t, err)

	collector.mu.Lock()
	defer collector.mu.Unlock()
	assert.Equal(t, []string{"INSERT", "INSERT"}, collector.ops)
	assert.Equal(t, []bool{true, false}, collector.ok)
}

type panickingHook struct{}

func (panickingHook) BeforeQuery(context.Context, string, []any) { panic("before") }
func (panickingHook) AfterQuery(context.Context, string, []any, time.Duration, error) {
	panic("after")
}

func TestHookPanicsAreRecovered(t *testing.T) {
	db := newTestDB(t, panickingHook{})
	require.NoError(t, insertContact(context.Background(), db, "a@example.com"))
	assert.Equal(t, 1, countContacts(t, db))
}

func TestOperation(t *testing.T) {
	assert.Equal(t, "SELECT", database.Operation("\n\t select id from contacts"))
	assert.Equal(t, "UPDATE", database.Operation("UPDATE contacts SET x = 1"))
	assert.Equal(t, "UNKNOWN", database.Operation("   "))
}
