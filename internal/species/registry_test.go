package species_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redgrouse/backend/internal/db"
	"github.com/redgrouse/backend/internal/species"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(t.TempDir() + "/species.db")
	require.NoError(t, err)
	require.NoError(t, d.MigrateUp(db.Migrations()))
	t.Cleanup(func() { d.Close() })
	return d
}

func TestResolveInsertsNewSpecies(t *testing.T) {
	d := openTestDB(t)
	reg := species.New(d.Write)

	ids, err := reg.Resolve(context.Background(), []species.Key{
		{Common: "Robin", Scientific: "Erithacus rubecula"},
		{Common: "Magpie", Scientific: "Pica pica"},
	})

	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.NotZero(t, ids[species.Key{Common: "Robin", Scientific: "Erithacus rubecula"}])
	require.NotEqual(t,
		ids[species.Key{Common: "Robin", Scientific: "Erithacus rubecula"}],
		ids[species.Key{Common: "Magpie", Scientific: "Pica pica"}])
}

func TestResolveReusesExistingSpeciesAcrossCalls(t *testing.T) {
	d := openTestDB(t)
	reg := species.New(d.Write)
	ctx := context.Background()
	key := species.Key{Common: "Robin", Scientific: "Erithacus rubecula"}

	first, err := reg.Resolve(ctx, []species.Key{key})
	require.NoError(t, err)

	// New registry instance (no shared in-memory cache) resolving the same
	// key must see the persisted row, not insert a duplicate.
	second := species.New(d.Write)
	ids, err := second.Resolve(ctx, []species.Key{key})
	require.NoError(t, err)
	require.Equal(t, first[key], ids[key])
}

func TestResolveDedupesDuplicateKeysInOneCall(t *testing.T) {
	d := openTestDB(t)
	reg := species.New(d.Write)
	key := species.Key{Common: "Robin", Scientific: "Erithacus rubecula"}

	ids, err := reg.Resolve(context.Background(), []species.Key{key, key, key})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	var count int
	require.NoError(t, d.Read.QueryRow(`SELECT COUNT(*) FROM species`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestResolveCachesWithinRegistryInstance(t *testing.T) {
	d := openTestDB(t)
	reg := species.New(d.Write)
	key := species.Key{Common: "Robin", Scientific: "Erithacus rubecula"}

	_, err := reg.Resolve(context.Background(), []species.Key{key})
	require.NoError(t, err)

	ids, err := reg.Resolve(context.Background(), []species.Key{key})
	require.NoError(t, err)
	require.Len(t, ids, 1)
}
