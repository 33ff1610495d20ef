package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gelchrist-coder/gel-invent/internal/port"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(name))); d {
	case DialectSQLite, DialectMySQL, DialectPostgres:
		return d, nil
	case "sqlite3":
		return DialectSQLite, nil
	case "postgresql", "pq":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unknown sql dialect %q", name)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case DialectSQLite:
		return "sqlite3"
	case DialectPostgres:
		return "postgres"
	default:
		return string(d)
	}
}

type sqlQueries struct {
	schema string
	get    string
	upsert string
	remove string
}

var dialectQueries = map[Dialect]sqlQueries{
	DialectSQLite: {
		schema: `
		CREATE TABLE IF NOT EXISTS kv_store (
			store_key   TEXT PRIMARY KEY,
			store_value BLOB NOT NULL,
			version     INTEGER NOT NULL DEFAULT 1,
			updated_at  TIMESTAMP NOT NULL
		)`,
		get: `SELECT store_value FROM kv_store WHERE store_key = ?`,
		upsert: `
		INSERT INTO kv_store (store_key, store_value, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(store_key) DO UPDATE
		SET store_value = excluded.store_value, version = kv_store.version + 1, updated_at = excluded.updated_at`,
		remove: `DELETE FROM kv_store WHERE store_key = ?`,
	},
	DialectMySQL: {
		schema: `
		CREATE TABLE IF NOT EXISTS kv_store (
			store_key   VARCHAR(191) NOT NULL PRIMARY KEY,
			store_value LONGBLOB NOT NULL,
			version     BIGINT NOT NULL DEFAULT 1,
			updated_at  DATETIME(6) NOT NULL
		)`,
		get: `SELECT store_value FROM kv_store WHERE store_key = ?`,
		upsert: `
		INSERT INTO kv_store (store_key, store_value, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON DUPLICATE KEY UPDATE
			store_value = VALUES(store_value), version = version + 1, updated_at = VALUES(updated_at)`,
		remove: `DELETE FROM kv_store WHERE store_key = ?`,
	},
	DialectPostgres: {
		schema: `
		CREATE TABLE IF NOT EXISTS kv_store (
			store_key   TEXT PRIMARY KEY,
			store_value BYTEA NOT NULL,
			version     BIGINT NOT NULL DEFAULT 1,
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
		get: `SELECT store_value FROM kv_store WHERE store_key = $1`,
		upsert: `
		INSERT INTO kv_store (store_key, store_value, version, updated_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (store_key) DO UPDATE
		SET store_value = EXCLUDED.store_value, version = kv_store.version + 1, updated_at = EXCLUDED.updated_at`,
		remove: `DELETE FROM kv_store WHERE store_key = $1`,
	},
}

// SQLAdapter keeps every logical value in one row of kv_store. A write
// replaces the whole value and bumps the row version.
type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
	queries sqlQueries
}

func NewSQLAdapter(db *sql.DB, dialect Dialect) (*SQLAdapter, error) {
	q, ok := dialectQueries[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	return &SQLAdapter{db: db, dialect: dialect, queries: q}, nil
}

// OpenSQL opens and pings a database for dialect. The caller registers the
// driver with a blank import.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// sqlite serializes writers
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, nil
}

func (s *SQLAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.queries.schema); err != nil {
		return fmt.Errorf("create kv_store: %w", err)
	}
	return nil
}

func (s *SQLAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, s.queries.get, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLAdapter) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, s.queries.upsert, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *SQLAdapter) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.queries.remove, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
