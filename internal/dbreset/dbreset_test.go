package dbreset

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todoe2e/internal/dbreset/migrations"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// stubGoose replaces the goose seam and records how it was called.
func stubGoose(t *testing.T, err error) *int {
	t.Helper()
	calls := 0
	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		calls++
		assert.Equal(t, ".", dir)
		assert.Len(t, opts, 1, "versioning must be disabled")
		return err
	}
	t.Cleanup(func() { gooseUpContext = orig })
	return &calls
}

func TestReset_DropsThenAppliesSchema(t *testing.T) {
	db, mock := newMock(t)
	calls := stubGoose(t, nil)

	mock.ExpectExec(`FROM pg_tables WHERE schemaname = 'public'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`FROM information_schema.sequences`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := New(db).Reset(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReset_IsRepeatable(t *testing.T) {
	db, mock := newMock(t)
	calls := stubGoose(t, nil)
	r := New(db)

	for i := 0; i < 2; i++ {
		mock.ExpectExec(`DROP TABLE IF EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`DROP SEQUENCE IF EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
		require.NoError(t, r.Reset(context.Background()))
	}

	assert.Equal(t, 2, *calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReset_Errors(t *testing.T) {
	boom := errors.New("permission denied for schema public")

	tests := []struct {
		name     string
		setup    func(mock sqlmock.Sqlmock)
		gooseErr error
		errorMsg string
		calls    int
	}{
		{
			name: "drop tables fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DROP TABLE`).WillReturnError(boom)
			},
			errorMsg: "drop tables",
		},
		{
			name: "drop sequences fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DROP TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(`DROP SEQUENCE`).WillReturnError(boom)
			},
			errorMsg: "drop sequences",
		},
		{
			name: "schema fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DROP TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(`DROP SEQUENCE`).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			gooseErr: boom,
			errorMsg: "apply schema",
			calls:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			calls := stubGoose(t, tt.gooseErr)
			tt.setup(mock)

			err := New(db).Reset(context.Background())

			require.Error(t, err)
			assert.ErrorIs(t, err, boom)
			assert.Contains(t, err.Error(), tt.errorMsg)
			assert.Equal(t, tt.calls, *calls, "later steps must not run after a failure")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListTables(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT tablename FROM pg_tables`).
		WillReturnRows(sqlmock.NewRows([]string{"tablename"}).AddRow("Projects").AddRow("Todos").AddRow("Users"))

	tables, err := New(db).ListTables(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Tables, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowCounts(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT tablename FROM pg_tables`).
		WillReturnRows(sqlmock.NewRows([]string{"tablename"}).AddRow("Projects").AddRow("Todos").AddRow("Users"))
	for i, table := range Tables {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "` + table + `"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(i))
	}

	counts, err := New(db).RowCounts(context.Background())

	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Projects": 0, "Todos": 1, "Users": 2}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowCounts_SkipsMissingTables(t *testing.T) {
	tests := []struct {
		name    string
		present []string
		want    map[string]int64
	}{
		{"empty database", nil, map[string]int64{}},
		{"partial schema", []string{"Users", "goose_db_version"}, map[string]int64{"Users": 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			rows := sqlmock.NewRows([]string{"tablename"})
			for _, name := range tt.present {
				rows.AddRow(name)
			}
			mock.ExpectQuery(`SELECT tablename FROM pg_tables`).WillReturnRows(rows)
			for table, n := range tt.want {
				mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "` + table + `"`).
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
			}

			counts, err := New(db).RowCounts(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.want, counts)
			assert.NoError(t, mock.ExpectationsWereMet(), "no query against a missing table")
		})
	}
}

func TestPing(t *testing.T) {
	db, mock := newMock(t)

	assert.NoError(t, New(db).Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddedSchema(t *testing.T) {
	data, err := fs.ReadFile(migrations.Schema, "00001_schema.sql")
	require.NoError(t, err)
	sqlText := string(data)

	assert.True(t, strings.HasPrefix(sqlText, "-- +goose NO TRANSACTION"), "schema must autocommit")
	for _, table := range Tables {
		assert.Contains(t, sqlText, `CREATE TABLE IF NOT EXISTS "`+table+`"`)
	}
	for _, index := range []string{"IX_Users_Username", "IX_Users_Email", "IX_Projects_UserId", "IX_Todos_ProjectId"} {
		assert.Contains(t, sqlText, index)
	}
	assert.Equal(t, 2, strings.Count(sqlText, "ON DELETE CASCADE"))
}
