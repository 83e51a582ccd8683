package ingest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redgrouse/backend/internal/db"
	"github.com/redgrouse/backend/internal/ingest"
	"github.com/redgrouse/backend/internal/models"
	"github.com/redgrouse/backend/internal/species"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(t.TempDir() + "/ingest.db")
	require.NoError(t, err)
	require.NoError(t, d.MigrateUp(db.Migrations()))
	t.Cleanup(func() { d.Close() })
	return d
}

func insertUpload(t *testing.T, d *db.DB) []byte {
	t.Helper()
	_, blob := models.NewUUID()
	_, err := d.Write.Exec(
		`INSERT INTO uploads (id, filename, display_name, edit_token_hash) VALUES (?, ?, ?, ?)`,
		blob, "sightings.csv", "sightings", "deadbeef")
	require.NoError(t, err)
	return blob
}

func TestSinkDerivesLiferOnFirstOccurrence(t *testing.T) {
	d := openTestDB(t)
	uploadID := insertUpload(t, d)
	reg := species.New(d.Write)
	sink := ingest.NewSink(d.Write, reg, uploadID)
	ctx := context.Background()

	robinUUID1, _ := models.NewUUID()
	robinUUID2, _ := models.NewUUID()

	require.NoError(t, sink.Add(ctx, processedRow(robinUUID1, "Robin", "Erithacus rubecula", "GB", 2024)))
	require.NoError(t, sink.Add(ctx, processedRow(robinUUID2, "Robin", "Erithacus rubecula", "FR", 2024)))
	require.NoError(t, sink.Flush(ctx))

	rows, err := d.Read.Query(`SELECT lifer, country_tick FROM sightings WHERE upload_id = ? ORDER BY id`, uploadID)
	require.NoError(t, err)
	defer rows.Close()

	var lifers []bool
	var countryTicks []bool
	for rows.Next() {
		var lifer, countryTick bool
		require.NoError(t, rows.Scan(&lifer, &countryTick))
		lifers = append(lifers, lifer)
		countryTicks = append(countryTicks, countryTick)
	}
	require.Equal(t, []bool{true, false}, lifers)
	require.Equal(t, []bool{true, true}, countryTicks) // first GB, first FR
}

func TestSinkVisRankZeroWhenAnyTick(t *testing.T) {
	d := openTestDB(t)
	uploadID := insertUpload(t, d)
	reg := species.New(d.Write)
	sink := ingest.NewSink(d.Write, reg, uploadID)
	ctx := context.Background()

	u, _ := models.NewUUID()
	require.NoError(t, sink.Add(ctx, processedRow(u, "Robin", "Erithacus rubecula", "GB", 2024)))
	require.NoError(t, sink.Flush(ctx))

	var visRank int
	require.NoError(t, d.Read.QueryRow(`SELECT vis_rank FROM sightings WHERE upload_id = ?`, uploadID).Scan(&visRank))
	require.Equal(t, 0, visRank)
}

func TestSinkEnforcesRowCap(t *testing.T) {
	d := openTestDB(t)
	uploadID := insertUpload(t, d)
	reg := species.New(d.Write)
	sink := ingest.NewSinkWithLimit(d.Write, reg, uploadID, 2)
	ctx := context.Background()

	u1, _ := models.NewUUID()
	u2, _ := models.NewUUID()
	u3, _ := models.NewUUID()
	require.NoError(t, sink.Add(ctx, processedRow(u1, "Robin", "Erithacus rubecula", "GB", 2024)))
	require.NoError(t, sink.Add(ctx, processedRow(u2, "Magpie", "Pica pica", "GB", 2024)))
	require.Error(t, sink.Add(ctx, processedRow(u3, "Wren", "Troglodytes troglodytes", "GB", 2024)))
}

func TestBuildDerivedIndicesMaterialisesBitmaps(t *testing.T) {
	d := openTestDB(t)
	uploadID := insertUpload(t, d)
	reg := species.New(d.Write)
	sink := ingest.NewSink(d.Write, reg, uploadID)
	ctx := context.Background()

	u, _ := models.NewUUID()
	require.NoError(t, sink.Add(ctx, processedRow(u, "Robin", "Erithacus rubecula", "GB", 2024)))
	require.NoError(t, sink.Flush(ctx))

	require.NoError(t, ingest.BuildDerivedIndices(ctx, d.Write, uploadID))

	var count int
	require.NoError(t, d.Read.QueryRow(`SELECT COUNT(*) FROM tick_bitmaps WHERE upload_id = ?`, uploadID).Scan(&count))
	require.Equal(t, 3, count) // lifer, year_tick(2024), country_tick(GB)
}

func processedRow(sightingUUID, common, scientific, country string, year int) models.ProcessedSighting {
	return models.ProcessedSighting{
		ParsedSighting: models.ParsedSighting{
			SightingUUID:   sightingUUID,
			ObservedAt:     "2024-01-01T00:00:00Z",
			Longitude:      -0.1278,
			Latitude:       51.5074,
			CommonName:     common,
			ScientificName: scientific,
			Count:          1,
		},
		CountryCode: country,
		Year:        year,
	}
}
