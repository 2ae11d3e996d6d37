// Package sqlite is the embedded single-file store used when no
// PostgreSQL URL is configured. Importing it registers the driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database"
)

func init() {
	database.Register(database.DriverSQLite, NewConnection)
}

// placeholder matches PostgreSQL style positional parameters with an
// optional type cast, e.g. $3 or $3::timestamptz.
var placeholder = regexp.MustCompile(`\$(\d+)(?:::[a-z_]+)?`)

// Rebind rewrites $N placeholders to SQLite's ?N form and drops
// PostgreSQL casts so repositories can share one statement text.
func Rebind(query string) string {
	return placeholder.ReplaceAllString(query, "?$1")
}

// pragmas applied to every connection. WAL lets the availability reads
// proceed while a booking commits; busy_timeout waits on the writer
// instead of failing.
var pragmas = []string{
	"journal_mode(WAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

func dsn(path string) string {
	var b strings.Builder
	b.WriteString(path)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range pragmas {
		b.WriteString(sep + "_pragma=" + p)
		sep = "&"
	}
	// Times are stored as sortable text so range predicates work.
	b.WriteString("&_time_format=sqlite")
	return b.String()
}

// runner is what *sql.DB and *sql.Tx have in common.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// executor rebinds statements and runs them on a runner.
type executor struct {
	run runner
}

func (e executor) Exec(ctx context.Context, query string, args ...any) (database.Result, error) {
	res, err := e.run.ExecContext(ctx, Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (e executor) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return e.run.QueryRowContext(ctx, Rebind(query), args...)
}

func (e executor) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := e.run.QueryContext(ctx, Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Connection is a database.Connection over one SQLite file.
type Connection struct {
	executor
	db *sql.DB
}

// NewConnection opens (creating if needed) the configured SQLite file.
func NewConnection(ctx context.Context, cfg database.Config) (database.Connection, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = database.DefaultSQLitePath()
	}
	if err := database.EnsureDirectory(path); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// A single connection serializes every transaction, which is what
	// makes the conditional booking statements race free on SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return &Connection{executor: executor{run: db}, db: db}, nil
}

func (c *Connection) Driver() database.Driver        { return database.DriverSQLite }
func (c *Connection) Close() error                   { return c.db.Close() }
func (c *Connection) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

// BeginTx starts a transaction. With one open connection it waits for
// any other transaction to finish.
func (c *Connection) BeginTx(ctx context.Context) (database.Transaction, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Transaction{executor: executor{run: tx}, tx: tx}, nil
}

// Transaction is a database.Transaction over sql.Tx.
type Transaction struct {
	executor
	tx *sql.Tx
}

func (t *Transaction) Commit(context.Context) error   { return t.tx.Commit() }
func (t *Transaction) Rollback(context.Context) error { return t.tx.Rollback() }
