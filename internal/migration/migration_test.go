package migration

import (
	"fmt"
	"io/fs"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(embeddedMigrations, "sql/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(embeddedMigrations, "sql/*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))

	source, err := newSource()
	require.NoError(t, err)
	first, err := source.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)
}

func TestApplyAutoMigratesSQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Apply(db))
	require.NoError(t, Apply(db))

	for _, table := range []string{"service_requests", "service_request_artifacts", "wallets", "wallet_transactions", "ledger_entries", "audit_logs", "actor_roles"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}
