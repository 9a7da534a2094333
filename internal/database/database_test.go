package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/sidechain/feedengine/internal/models"
)

func TestMigrateSQLite(t *testing.T) {
	db, err := OpenSQLite("file::memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	// Idempotent.
	require.NoError(t, Migrate(db))

	for _, m := range models.All() {
		assert.True(t, db.Migrator().HasTable(m), "missing table for %T", m)
	}
	assert.True(t, db.Migrator().HasIndex(&models.Post{}, "idx_posts_feed_keyset"))
	assert.NoError(t, Health(context.Background(), db))
}

func TestMigrateNil(t *testing.T) {
	assert.Error(t, Migrate(nil))
	assert.Error(t, Health(context.Background(), nil))
}
