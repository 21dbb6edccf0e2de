// Package dbx holds the small database/sql abstraction shared by the
// packages that talk to the test database.
package dbx

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"todoe2e/internal/config"
)

// DBTX is the subset of database/sql used here.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open returns a pool for the configured database through the pgx stdlib
// driver. Statements issued on the pool outside a transaction autocommit.
// It does not connect; use PingContext for that.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Name, err)
	}
	db.SetMaxOpenConns(4)
	return db, nil
}
