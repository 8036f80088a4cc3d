package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/platewise-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "migration %s", suffix)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestImageRecordsMigration(t *testing.T) {
	content := readMigration(t, "create_image_records_table")

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS image_records",
		"CONSTRAINT ux_image_records_storage_key UNIQUE (storage_key)",
		"CHECK (is_meal = false OR is_food = true)",
		"CREATE INDEX IF NOT EXISTS idx_image_records_owner_created",
		"WHERE analysis_completed_at IS NULL",
		"DROP TABLE IF EXISTS image_records",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestActivityLogsMigration(t *testing.T) {
	content := readMigration(t, "create_activity_logs_table")

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS activity_logs",
		"CONSTRAINT ux_activity_logs_owner_date UNIQUE (owner_id, activity_date)",
		"activity_date date NOT NULL",
		"DROP TABLE IF EXISTS activity_logs",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()

	path, err := migrate.CreateSQLMigration(dir, "Add Meal Tags!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_meal_tags.sql"))
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "!!!")
	require.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "create_things.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	require.Error(t, migrate.ValidateDir(dir))
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, migrate.ValidateEmbedded())
}

func TestCreateSQLMigrationSortsAfterExisting(t *testing.T) {
	dir := t.TempDir()
	future := filepath.Join(dir, "20991231235959_future.sql")
	require.NoError(t, os.WriteFile(future, []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	first, err := migrate.CreateSQLMigration(dir, "first")
	require.NoError(t, err)
	require.Equal(t, "21000101000000_first.sql", filepath.Base(first))

	second, err := migrate.CreateSQLMigration(dir, "second")
	require.NoError(t, err)
	require.Equal(t, "21000101000001_second.sql", filepath.Base(second))
	require.NoError(t, migrate.ValidateDir(dir))
}

func TestValidateDirRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	body := []byte("-- +goose Up\n-- +goose Down\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101000000_a.sql"), body, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101000000_b.sql"), body, 0o644))

	err := migrate.ValidateDir(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate migration version")
}

func TestValidateDirRequiresDownSection(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101000000_a.sql"), []byte("-- +goose Up\n"), 0o644))

	require.Error(t, migrate.ValidateDir(dir))
}
