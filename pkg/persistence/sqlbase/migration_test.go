package sqlbase

import (
	"context"
	"log/slog"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations_AppliesPendingInOrder(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	migrations := map[int]string{
		3: "CREATE INDEX c",
		1: "CREATE TABLE a",
		2: "CREATE TABLE b",
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))

	for _, step := range []struct {
		version int
		sql     string
	}{{2, "CREATE TABLE b"}, {3, "CREATE INDEX c"}} {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(step.sql)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (version) VALUES ($1)")).
			WithArgs(step.version).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()
	}

	manager := NewMigrationManager(slog.Default(), db, migrations)
	assert.Equal(t, 3, manager.LatestVersion())

	require.NoError(t, manager.RunMigrations(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_UpToDate(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))

	manager := NewMigrationManager(slog.Default(), db, map[int]string{1: "CREATE TABLE a"})
	require.NoError(t, manager.RunMigrations(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
