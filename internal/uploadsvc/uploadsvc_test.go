package uploadsvc_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redgrouse/backend/internal/apperror"
	"github.com/redgrouse/backend/internal/blocking"
	"github.com/redgrouse/backend/internal/db"
	"github.com/redgrouse/backend/internal/geocoder"
	"github.com/redgrouse/backend/internal/uploadsvc"
)

const threeRowCSV = "sightingId,date,longitude,latitude,commonName\n" +
	"11111111-1111-1111-1111-111111111111,2024-01-01,-0.1278,51.5074,Robin\n" +
	"22222222-2222-2222-2222-222222222222,2024-01-02,2.3522,48.8566,Robin\n" +
	"33333333-3333-3333-3333-333333333333,2024-02-01,-0.1278,51.5074,Magpie\n"

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(t.TempDir() + "/uploadsvc.db")
	require.NoError(t, err)
	require.NoError(t, d.MigrateUp(db.Migrations()))
	t.Cleanup(func() { d.Close() })
	return d
}

func newService(t *testing.T) *uploadsvc.Service {
	t.Helper()
	d := openTestDB(t)
	geo, err := geocoder.New()
	require.NoError(t, err)
	pool := blocking.New(2)
	return uploadsvc.New(d.Write, geo, pool, nil, nil, slog.Default())
}

func TestCreateIngestsAndMintsEditToken(t *testing.T) {
	svc := newService(t)
	result, err := svc.Create(context.Background(), "sightings.csv", strings.NewReader(threeRowCSV))
	require.NoError(t, err)
	require.Equal(t, 3, result.RowCount)
	require.NotEmpty(t, result.UploadID)
	require.NotEmpty(t, result.EditToken)
}

func TestReplaceRequiresMatchingEditToken(t *testing.T) {
	svc := newService(t)
	created, err := svc.Create(context.Background(), "sightings.csv", strings.NewReader(threeRowCSV))
	require.NoError(t, err)

	_, err = svc.Replace(context.Background(), created.UploadID, "wrong-token", "sightings.csv", strings.NewReader(threeRowCSV))
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeForbidden, appErr.Code)
}

func TestReplaceBumpsDataVersion(t *testing.T) {
	svc := newService(t)
	created, err := svc.Create(context.Background(), "sightings.csv", strings.NewReader(threeRowCSV))
	require.NoError(t, err)

	meta, err := svc.Metadata(context.Background(), created.UploadID)
	require.NoError(t, err)
	require.Equal(t, int64(1), meta.DataVersion)

	oneRowCSV := "sightingId,date,longitude,latitude,commonName\n" +
		"44444444-4444-4444-4444-444444444444,2024-03-01,0,0,Wren\n"
	_, err = svc.Replace(context.Background(), created.UploadID, created.EditToken, "sightings.csv", strings.NewReader(oneRowCSV))
	require.NoError(t, err)

	meta, err = svc.Metadata(context.Background(), created.UploadID)
	require.NoError(t, err)
	require.Equal(t, int64(2), meta.DataVersion)
	require.Equal(t, 1, meta.RowCount)
}

func TestRenameUpdatesDisplayNameAndBumpsVersion(t *testing.T) {
	svc := newService(t)
	created, err := svc.Create(context.Background(), "sightings.csv", strings.NewReader(threeRowCSV))
	require.NoError(t, err)

	require.NoError(t, svc.Rename(context.Background(), created.UploadID, created.EditToken, "My Trip"))

	meta, err := svc.Metadata(context.Background(), created.UploadID)
	require.NoError(t, err)
	require.Equal(t, "My Trip", meta.DisplayName)
	require.Equal(t, int64(2), meta.DataVersion)
}

func TestDeleteRemovesUpload(t *testing.T) {
	svc := newService(t)
	created, err := svc.Create(context.Background(), "sightings.csv", strings.NewReader(threeRowCSV))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.UploadID, created.EditToken))

	_, err = svc.Metadata(context.Background(), created.UploadID)
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeNotFound, appErr.Code)
}

func TestCreateRollsBackOnStructuralFailure(t *testing.T) {
	d := openTestDB(t)
	geo, err := geocoder.New()
	require.NoError(t, err)
	svc := uploadsvc.New(d.Write, geo, blocking.New(2), nil, nil, slog.Default())
	// Missing a mandatory column (commonName) is a structural failure.
	badCSV := "sightingId,date,longitude,latitude\n11111111-1111-1111-1111-111111111111,2024-01-01,0,0\n"

	_, err = svc.Create(context.Background(), "bad.csv", strings.NewReader(badCSV))
	require.Error(t, err)

	var uploads int
	require.NoError(t, d.Write.QueryRow(`SELECT COUNT(*) FROM uploads`).Scan(&uploads))
	require.Zero(t, uploads)
}
