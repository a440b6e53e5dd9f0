package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := fs.Glob(PostgresFS, "postgres/*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"postgres/001_transactions.sql",
		"postgres/002_aggregates.sql",
		"postgres/003_stream_offsets.sql",
	}, pg)

	ch, err := fs.Glob(ClickhouseFS, "clickhouse/*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"clickhouse/001_apply_journal.sql"}, ch)
}

func TestSplitClickhouse(t *testing.T) {
	got, err := splitClickhouse("-- header\nCREATE TABLE a (x Int8);\n\nCREATE TABLE b (y Int8)\n;\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE TABLE a (x Int8)", "CREATE TABLE b (y Int8)"}, got)
}

func TestSplitClickhouse_Literals(t *testing.T) {
	got, err := splitClickhouse("SELECT 'it''s';")
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT 'it''s'"}, got)

	_, err = splitClickhouse("SELECT 'a;b';")
	assert.ErrorIs(t, err, errUnsplittable)

	_, err = splitClickhouse("SELECT 1 /* one; */;")
	assert.ErrorIs(t, err, errUnsplittable)
}

func TestClickhouseMigrationsSplittable(t *testing.T) {
	data, err := fs.ReadFile(ClickhouseFS, "clickhouse/001_apply_journal.sql")
	require.NoError(t, err)
	stmts, err := splitClickhouse(string(data))
	require.NoError(t, err)
	assert.Len(t, stmts, 1)
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://u:p@localhost:9000/indexer")
	require.NoError(t, err)
	assert.Equal(t, "indexer", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
