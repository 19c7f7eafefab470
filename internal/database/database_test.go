package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	db, err := OpenMemory(ctx, t.Name())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db))

	var n int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN
		 ('directories','records','record_values','cascading_configs','cascading_selections','record_cascading_values','activity_entries')`,
	).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestOpen_ForeignKeysEnabled(t *testing.T) {
	ctx := context.Background()
	db, err := OpenMemory(ctx, t.Name())
	require.NoError(t, err)
	defer db.Close()

	var on int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on))
	assert.Equal(t, 1, on)
}
