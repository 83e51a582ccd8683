package ingest_test

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redgrouse/backend/internal/blocking"
	"github.com/redgrouse/backend/internal/geocoder"
	"github.com/redgrouse/backend/internal/ingest"
	"github.com/redgrouse/backend/internal/models"
)

func TestPipelineIngestEndToEnd(t *testing.T) {
	d := openTestDB(t)
	uploadID := insertUpload(t, d)

	geo, err := geocoder.New()
	require.NoError(t, err)
	pool := blocking.New(2)

	pipeline := ingest.NewPipeline(d.Write, geo, pool, nil)

	csv := "sightingId,date,longitude,latitude,commonName\n" +
		genRow("London", -0.1278, 51.5074, "Robin") +
		genRow("Paris", 2.3522, 48.8566, "Robin") +
		genRow("London2", -0.1278, 51.5074, "Magpie")

	result, err := pipeline.Ingest(context.Background(), uploadID, strings.NewReader(csv))
	require.NoError(t, err)
	require.Equal(t, 3, result.RowCount)

	var rowCount int
	require.NoError(t, d.Read.QueryRow(`SELECT row_count FROM uploads WHERE id = ?`, uploadID).Scan(&rowCount))
	require.Equal(t, 3, rowCount)

	var bitmapCount int
	require.NoError(t, d.Read.QueryRow(`SELECT COUNT(*) FROM tick_bitmaps WHERE upload_id = ?`, uploadID).Scan(&bitmapCount))
	require.Greater(t, bitmapCount, 0)
}

func genRow(label string, lon, lat float64, common string) string {
	id, _ := models.NewUUID()
	return id + ",2024-01-01," + strconv.FormatFloat(lon, 'f', -1, 64) + "," +
		strconv.FormatFloat(lat, 'f', -1, 64) + "," + common + "\n"
}
