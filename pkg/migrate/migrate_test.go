package migrate

import (
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsValidate(t *testing.T) {
	require.NoError(t, Validate())
}

func readEmbedded(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := fs.Glob(Migrations, "migrations/*_"+suffix+".sql")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := fs.ReadFile(Migrations, matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestOrdersMigrationGuardsAmountsAndStates(t *testing.T) {
	content := readEmbedded(t, "create_orders")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CHECK (total_paise >= 0)",
		"CHECK (status IN ('pending', 'confirmed', 'cancelled'))",
		"CHECK (payment_status IN ('pending', 'pending_cod', 'paid', 'failed'))",
		"CHECK (quantity >= 1)",
		"CONSTRAINT payment_intents_provider_order_id_key UNIQUE (provider_order_id)",
		"DROP TABLE IF EXISTS orders",
	} {
		require.Contains(t, content, sub)
	}
}

func TestCustomersMigrationRequiresOneIdentity(t *testing.T) {
	content := readEmbedded(t, "create_customers")
	require.Contains(t, content, "CONSTRAINT customers_guest_session_id_key UNIQUE (guest_session_id)")
	require.Contains(t, content, "(user_id IS NULL) <> (guest_session_id IS NULL)")
}

func TestCreateSQLMigrationWritesValidFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	path, err := CreateSQLMigration(dir, "Add Gift Wrap!", now)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "20260301103000_add_gift_wrap.sql"))
	require.NoError(t, ValidateFS(os.DirFS(dir)))

	_, err = CreateSQLMigration(dir, "Add Gift Wrap!", now)
	require.Error(t, err)
}

func TestValidateFSRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/0001_bad.sql", []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, ValidateFS(os.DirFS(dir)))
}
