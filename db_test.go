package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDBEnforcesForeignKeysOnEveryConnection(t *testing.T) {
	db, err := openDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	// hold several pool connections open at once so each check hits a
	// distinct physical connection
	var conns []*sql.Conn
	for i := 0; i < 4; i++ {
		c, err := db.Conn(ctx)
		require.NoError(t, err)
		conns = append(conns, c)
	}
	for i, c := range conns {
		var fk int
		require.NoError(t, c.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk))
		assert.Equal(t, 1, fk, "connection %d has foreign keys off", i)
		_ = c.Close()
	}
}

func TestDeleteCascadesAcrossPooledConnections(t *testing.T) {
	db, err := openDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, migrate(db))

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `
		INSERT INTO rooms (id, code, host_identity, target_rounds, language, created_at)
		VALUES ('r1', 'ABCDEF', 'host', 3, 'en', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO players (id, room_id, identity, display_name, joined_at)
		VALUES ('p1', 'r1', 'host', 'Host', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)

	// delete from a fresh connection, not the one that did the inserts
	c, err := db.Conn(ctx)
	require.NoError(t, err)
	_, err = c.ExecContext(ctx, `DELETE FROM rooms WHERE id='r1'`)
	require.NoError(t, err)
	_ = c.Close()

	var orphans int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players WHERE room_id='r1'`).Scan(&orphans))
	assert.Zero(t, orphans, "player rows must cascade with their room")
}
