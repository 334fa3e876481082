package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQLite string

//go:embed schema_mysql.sql
var schemaMySQL string

// DB is the SQL-backed store: one physical database, one kv table.
type DB struct {
	*sql.DB
	dbType string
}

func New(dsn string) (*DB, error) {
	var db *sql.DB
	var err error
	var dbType string

	// MySQL DSN examples: user:password@tcp(host:port)/dbname, user:password@/dbname
	// SQLite DSN: file path (e.g., data/anishelf.db, :memory:)
	isMySQL := strings.Contains(dsn, "@")

	if isMySQL {
		dbType = "mysql"
		db, err = sql.Open("mysql", dsn)
	} else {
		dbType = "sqlite"
		if dsn != ":memory:" {
			dir := filepath.Dir(dsn)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}

		if !strings.Contains(dsn, "?") {
			dsn += "?"
		} else {
			dsn += "&"
		}

		// modernc.org/sqlite uses _pragma query parameters
		pragmas := []string{
			"_pragma=journal_mode(WAL)",
			"_pragma=busy_timeout(30000)",
			"_pragma=synchronous(NORMAL)",
			"_pragma=temp_store(MEMORY)",
		}
		dsn += strings.Join(pragmas, "&")

		db, err = sql.Open("sqlite", dsn)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(db, dbType); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{DB: db, dbType: dbType}, nil
}

func initSchema(db *sql.DB, dbType string) error {
	var schema string
	if dbType == "mysql" {
		schema = schemaMySQL
	} else {
		schema = schemaSQLite
	}

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *DB) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, `SELECT item_value FROM kv WHERE item_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: get %s: %w", key, err)
	}
	return value, nil
}

func (db *DB) Set(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO kv (item_key, item_value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(item_key) DO UPDATE SET item_value=excluded.item_value, updated_at=excluded.updated_at`
	if db.dbType == "mysql" {
		query = `INSERT INTO kv (item_key, item_value, updated_at) VALUES (?, ?, ?)
	ON DUPLICATE KEY UPDATE item_value=VALUES(item_value), updated_at=VALUES(updated_at)`
	}
	if _, err := db.ExecContext(ctx, query, key, value, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("db: set %s: %w", key, err)
	}
	return nil
}

func (db *DB) Delete(ctx context.Context, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE item_key = ?`, key); err != nil {
		return fmt.Errorf("db: delete %s: %w", key, err)
	}
	return nil
}

func (db *DB) Clear(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("db: clear: %w", err)
	}
	return nil
}

func (db *DB) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT item_key FROM kv ORDER BY item_key`)
	if err != nil {
		return nil, fmt.Errorf("db: list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("db: list keys: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Estimate approximates usage as the total size of stored keys and values.
func (db *DB) Estimate(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT SUM(LENGTH(item_key) + LENGTH(item_value)) FROM kv`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("db: estimate: %w", err)
	}
	return total.Int64, nil
}

// Apply writes and deletes the batch in one transaction.
func (db *DB) Apply(ctx context.Context, b Batch) error {
	upsert := `INSERT INTO kv (item_key, item_value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(item_key) DO UPDATE SET item_value=excluded.item_value, updated_at=excluded.updated_at`
	if db.dbType == "mysql" {
		upsert = `INSERT INTO kv (item_key, item_value, updated_at) VALUES (?, ?, ?)
	ON DUPLICATE KEY UPDATE item_value=VALUES(item_value), updated_at=VALUES(updated_at)`
	}
	now := time.Now().UnixMilli()

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		for key, value := range b.Set {
			if _, err := tx.ExecContext(ctx, upsert, key, value, now); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
		for _, key := range b.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE item_key = ?`, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("db: apply batch: %w", err)
	}
	return nil
}
