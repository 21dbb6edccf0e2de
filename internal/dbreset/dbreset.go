// Package dbreset drops and recreates the todo application's schema so every
// scenario starts from empty Users, Projects and Todos tables.
package dbreset

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"todoe2e/internal/dbreset/migrations"
	"todoe2e/pkg/logging"
)

const dropTablesSQL = `
DO $$ DECLARE
    r RECORD;
BEGIN
    FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
        EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
    END LOOP;
END $$;`

const dropSequencesSQL = `
DO $$ DECLARE
    r RECORD;
BEGIN
    FOR r IN (SELECT sequence_name FROM information_schema.sequences WHERE sequence_schema = 'public') LOOP
        EXECUTE 'DROP SEQUENCE IF EXISTS ' || quote_ident(r.sequence_name) || ' CASCADE';
    END LOOP;
END $$;`

// Tables lists the tables a reset leaves behind, in name order.
var Tables = []string{"Projects", "Todos", "Users"}

// Resetter resets the public schema of one database.
type Resetter struct {
	db *sql.DB
}

// New wraps db. Statements run outside any transaction, so each one is
// committed as soon as it succeeds.
func New(db *sql.DB) *Resetter {
	return &Resetter{db: db}
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Reset drops every table and sequence in the public schema and recreates
// the fixed schema. It is idempotent. Any error aborts the reset.
func (r *Resetter) Reset(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, dropTablesSQL); err != nil {
		return fmt.Errorf("reset database: drop tables: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, dropSequencesSQL); err != nil {
		return fmt.Errorf("reset database: drop sequences: %w", err)
	}
	if err := r.applySchema(ctx); err != nil {
		return fmt.Errorf("reset database: apply schema: %w", err)
	}

	logging.Debug("DBReset", "schema reset")
	return nil
}

// applySchema runs the embedded migration without a version table so the
// schema holds exactly the application's tables.
func (r *Resetter) applySchema(ctx context.Context) error {
	goose.SetBaseFS(migrations.Schema)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, r.db, ".", goose.WithNoVersioning())
}

// Ping checks the database accepts connections.
func (r *Resetter) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListTables returns the names of the tables in the public schema.
func (r *Resetter) ListTables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return tables, nil
}

// RowCounts returns the number of rows in each schema table that exists.
// Before the first reset there may be none.
func (r *Resetter) RowCounts(ctx context.Context) (map[string]int64, error) {
	present, err := r.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	exists := make(map[string]bool, len(present))
	for _, t := range present {
		exists[t] = true
	}

	counts := make(map[string]int64, len(Tables))
	for _, table := range Tables {
		if !exists[table] {
			continue
		}
		var n int64
		// table names come from the fixed list above
		q := fmt.Sprintf(`SELECT COUNT(*) FROM %q`, table)
		if err := r.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// Close releases the underlying pool.
func (r *Resetter) Close() error {
	return r.db.Close()
}

type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	logging.Debug("DBReset", format, v...)
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	logging.Error("DBReset", nil, format, v...)
}
