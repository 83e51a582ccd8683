package csvingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redgrouse/backend/internal/apperror"
	"github.com/redgrouse/backend/internal/models"
)

func TestParseAcceptsWellFormedRows(t *testing.T) {
	csv := "sightingId,date,longitude,latitude,commonName\n" +
		"a1,2024-01-01,-0.1278,51.5074,Robin\n" +
		"a2,2024-01-02,2.3522,48.8566,Robin\n" +
		"a3,2024-02-01,-0.1278,51.5074,Magpie\n"

	var got []models.ParsedSighting
	stats, err := Parse(strings.NewReader(csv), nil, func(s models.ParsedSighting) error {
		got = append(got, s)
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, stats.RowsAccepted)
	require.Equal(t, 0, stats.RowsSkipped)
	require.Len(t, got, 3)
	require.Equal(t, "Robin", got[0].CommonName)
	require.Equal(t, 1, got[0].Count)
}

func TestParseSkipsRowsWithEmptyMandatoryField(t *testing.T) {
	csv := "sightingId,date,longitude,latitude,commonName\n" +
		"a1,2024-01-01,-0.1278,51.5074,Robin\n" +
		"a2,,2.3522,48.8566,Robin\n"

	stats, err := Parse(strings.NewReader(csv), nil, func(s models.ParsedSighting) error { return nil })

	require.NoError(t, err)
	require.Equal(t, 1, stats.RowsAccepted)
	require.Equal(t, 1, stats.RowsSkipped)
}

func TestParseSkipsUnparsableCoordinates(t *testing.T) {
	csv := "sightingId,date,longitude,latitude,commonName\n" +
		"a1,2024-01-01,notalon,51.5074,Robin\n"

	stats, err := Parse(strings.NewReader(csv), nil, func(s models.ParsedSighting) error { return nil })

	require.NoError(t, err)
	require.Equal(t, 0, stats.RowsAccepted)
	require.Equal(t, 1, stats.RowsSkipped)
}

func TestParseDefaultsMissingCountToOne(t *testing.T) {
	csv := "sightingId,date,longitude,latitude,commonName,count\n" +
		"a1,2024-01-01,-0.1278,51.5074,Robin,\n"

	var got models.ParsedSighting
	_, err := Parse(strings.NewReader(csv), nil, func(s models.ParsedSighting) error {
		got = s
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 1, got.Count)
}

func TestParseRejectsMissingMandatoryColumn(t *testing.T) {
	csv := "sightingId,date,longitude,commonName\n" +
		"a1,2024-01-01,-0.1278,Robin\n"

	_, err := Parse(strings.NewReader(csv), nil, func(s models.ParsedSighting) error { return nil })

	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	require.Equal(t, apperror.CodeBadRequest, appErr.Code)
}

func TestParseRejectsTooManyColumns(t *testing.T) {
	header := make([]string, 0, MaxColumns+1)
	header = append(header, "sightingId", "date", "longitude", "latitude", "commonName")
	for len(header) <= MaxColumns {
		header = append(header, "extra")
	}
	csv := strings.Join(header, ",") + "\n"

	_, err := Parse(strings.NewReader(csv), nil, func(s models.ParsedSighting) error { return nil })

	require.Error(t, err)
}

func TestExtractYearParsesPrefix(t *testing.T) {
	require.Equal(t, 2024, ExtractYear("2024-01-01", 1, nil))
}

func TestExtractYearFallsBackToZero(t *testing.T) {
	require.Equal(t, 0, ExtractYear("not-a-date", 1, nil))
	require.Equal(t, 0, ExtractYear("2", 1, nil))
}
