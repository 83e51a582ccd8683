package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAndMigrate(t *testing.T) {
	path := t.TempDir() + "/test.db"

	database, err := Open(path)
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, database.MigrateUp(Migrations()))

	version, dirty, err := database.MigrateVersion(Migrations())
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)

	_, err = database.Write.Exec(`INSERT INTO species (common_name, scientific_name) VALUES (?, ?)`, "Robin", "Erithacus rubecula")
	require.NoError(t, err)

	var count int
	require.NoError(t, database.Read.QueryRow(`SELECT COUNT(*) FROM species`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestOpenAppliesPragmas(t *testing.T) {
	path := t.TempDir() + "/pragma.db"

	database, err := Open(path)
	require.NoError(t, err)
	defer database.Close()

	var mode string
	require.NoError(t, database.Write.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	require.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, database.Write.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	require.Equal(t, 1, fk)
}

func TestWriteMaxOpenConnsIsOne(t *testing.T) {
	path := t.TempDir() + "/single.db"

	database, err := Open(path)
	require.NoError(t, err)
	defer database.Close()

	require.Equal(t, 1, database.Write.Stats().MaxOpenConnections)
}
