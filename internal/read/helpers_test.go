package read_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redgrouse/backend/internal/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(t.TempDir() + "/read.db")
	require.NoError(t, err)
	require.NoError(t, d.MigrateUp(db.Migrations()))
	t.Cleanup(func() { d.Close() })
	return d
}
