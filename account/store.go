// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package account

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	// Register the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Errors returned by the store.
var (
	ErrNotFound      = errors.New("account: not found")
	ErrDuplicateName = errors.New("account: an account with this name already exists")
	ErrDriver        = errors.New("account: unsupported database driver")
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// DBTX is the subset of database/sql used by the store.
// Both *sql.DB and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists users, accounts, and legacy JIDs.
type Store struct {
	db     *sql.DB
	driver string
	domain string
}

// New returns a store that uses db.
// driver must be the name of the database/sql driver db was opened with and
// domain is the domain of the component that accounts JIDs are allocated on.
// New does not create tables, see Migrate.
func New(db *sql.DB, driver, domain string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", ErrDriver, driver)
	}
	return &Store{db: db, driver: driver, domain: domain}, nil
}

// Open opens a database with the given driver and DSN, creates the tables if
// necessary, and returns a store using it.
func Open(ctx context.Context, driver, dsn, domain string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer, serialize access in the pool instead of
		// failing with "database is locked".
		db.SetMaxOpenConns(1)
	}
	s, err := New(db, driver, domain)
	if err != nil {
		/* #nosec */
		db.Close()
		return nil, err
	}
	if err = s.Migrate(ctx); err != nil {
		/* #nosec */
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates or upgrades the tables used by the store.
func (s *Store) Migrate(ctx context.Context) error {
	dialect, dir := "sqlite3", "migrations/sqlite"
	if s.driver == DriverPostgres {
		dialect, dir = "postgres", "migrations/postgres"
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, s.db, dir); err != nil {
		return fmt.Errorf("account: migrating tables: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Domain returns the domain that account JIDs are allocated on.
func (s *Store) Domain() string {
	return s.domain
}

// Do runs fn in a transaction.
// The transaction is committed if fn returns nil and rolled back if it returns
// an error or panics, in which case the panic is propagated.
//
// Do is the unit of atomicity: everything fn does is either persisted or
// discarded.
func (s *Store) Do(ctx context.Context, fn func(*Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("account: begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			/* #nosec */
			sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			/* #nosec */
			sqlTx.Rollback()
			return
		}
		err = sqlTx.Commit()
	}()

	return fn(&Tx{db: sqlTx, s: s})
}

// rebind converts ? placeholders to the numbered form used by postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
