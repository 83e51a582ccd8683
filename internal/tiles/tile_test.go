package tiles_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redgrouse/backend/internal/blocking"
	"github.com/redgrouse/backend/internal/db"
	"github.com/redgrouse/backend/internal/ingest"
	"github.com/redgrouse/backend/internal/models"
	"github.com/redgrouse/backend/internal/species"
	"github.com/redgrouse/backend/internal/tiles"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(t.TempDir() + "/tiles.db")
	require.NoError(t, err)
	require.NoError(t, d.MigrateUp(db.Migrations()))
	t.Cleanup(func() { d.Close() })
	return d
}

func seedLondonSighting(t *testing.T, d *db.DB) []byte {
	t.Helper()
	_, uploadID := models.NewUUID()
	_, err := d.Write.Exec(
		`INSERT INTO uploads (id, filename, display_name, edit_token_hash) VALUES (?, ?, ?, ?)`,
		uploadID, "sightings.csv", "sightings", "deadbeef")
	require.NoError(t, err)

	reg := species.New(d.Write)
	sink := ingest.NewSink(d.Write, reg, uploadID)
	ctx := context.Background()
	u, _ := models.NewUUID()
	require.NoError(t, sink.Add(ctx, models.ProcessedSighting{
		ParsedSighting: models.ParsedSighting{
			SightingUUID:   u,
			ObservedAt:     "2024-01-01T08:00:00Z",
			Longitude:      -0.1278,
			Latitude:       51.5074,
			CommonName:     "Robin",
			ScientificName: "Erithacus rubecula",
			Count:          1,
		},
		CountryCode: "GB",
		Year:        2024,
	}))
	require.NoError(t, sink.Flush(ctx))
	require.NoError(t, ingest.BuildDerivedIndices(ctx, d.Write, uploadID))

	return uploadID
}

func TestServeTileAtZ0ReturnsCachedBytesOnSecondCall(t *testing.T) {
	d := openTestDB(t)
	uploadID := seedLondonSighting(t, d)
	pool := blocking.New(2)
	cache := tiles.NewCache()
	ctx := context.Background()

	req := tiles.Request{
		UploadID:     uploadID,
		UploadIDText: "upload-1",
		Z:            0, X: 0, Y: 0,
	}

	first, err := tiles.Serve(ctx, d.Read, pool, cache, req)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := tiles.Serve(ctx, d.Read, pool, cache, req)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestServeTileOutOfRangeCoordinatesErrors(t *testing.T) {
	d := openTestDB(t)
	uploadID := seedLondonSighting(t, d)
	pool := blocking.New(2)
	cache := tiles.NewCache()

	_, err := tiles.Serve(context.Background(), d.Read, pool, cache, tiles.Request{
		UploadID: uploadID, UploadIDText: "upload-1", Z: 2, X: 99, Y: 0,
	})
	require.Error(t, err)
}

func TestFilterHashDiffersByFilterContent(t *testing.T) {
	h1 := tiles.FilterHash([]byte(`{"a":1}`), false, nil, nil)
	h2 := tiles.FilterHash([]byte(`{"a":2}`), false, nil, nil)
	require.NotEqual(t, h1, h2)
}

func TestInvalidateUploadRemovesPrefixedKeys(t *testing.T) {
	cache := tiles.NewCache()
	cache.Put(tiles.Key("upload-1", 0, 0, 0, "h"), []byte("a"))
	cache.Put(tiles.Key("upload-2", 0, 0, 0, "h"), []byte("b"))

	cache.InvalidateUpload("upload-1")

	_, ok := cache.Get(tiles.Key("upload-1", 0, 0, 0, "h"))
	require.False(t, ok)
	_, ok = cache.Get(tiles.Key("upload-2", 0, 0, 0, "h"))
	require.True(t, ok)
}
