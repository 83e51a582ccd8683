package read_test

import (
	"context"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/redgrouse/backend/internal/db"
	"github.com/redgrouse/backend/internal/filter"
	"github.com/redgrouse/backend/internal/ingest"
	"github.com/redgrouse/backend/internal/models"
	"github.com/redgrouse/backend/internal/read"
	"github.com/redgrouse/backend/internal/species"
)

func insertUpload(t *testing.T, d *db.DB) []byte {
	t.Helper()
	_, blob := models.NewUUID()
	_, err := d.Write.Exec(
		`INSERT INTO uploads (id, filename, display_name, edit_token_hash) VALUES (?, ?, ?, ?)`,
		blob, "sightings.csv", "sightings", "deadbeef")
	require.NoError(t, err)
	return blob
}

func seedThreeSightings(t *testing.T, d *db.DB, uploadID []byte) {
	t.Helper()
	reg := species.New(d.Write)
	sink := ingest.NewSink(d.Write, reg, uploadID)
	ctx := context.Background()

	row := func(uuidStr, common, scientific, country, date string) models.ProcessedSighting {
		return models.ProcessedSighting{
			ParsedSighting: models.ParsedSighting{
				SightingUUID:   uuidStr,
				ObservedAt:     date,
				Longitude:      -0.1278,
				Latitude:       51.5074,
				CommonName:     common,
				ScientificName: scientific,
				Count:          1,
			},
			CountryCode: country,
			Year:        2024,
		}
	}

	u1, _ := models.NewUUID()
	u2, _ := models.NewUUID()
	u3, _ := models.NewUUID()

	require.NoError(t, sink.Add(ctx, row(u1, "Robin", "Erithacus rubecula", "GB", "2024-01-01T00:00:00Z")))
	require.NoError(t, sink.Add(ctx, row(u2, "Robin", "Erithacus rubecula", "FR", "2024-01-02T00:00:00Z")))
	require.NoError(t, sink.Add(ctx, row(u3, "Magpie", "Pica pica", "GB", "2024-02-01T00:00:00Z")))
	require.NoError(t, sink.Flush(ctx))
}

func TestCountWithFilter(t *testing.T) {
	d := openTestDB(t)
	uploadID := insertUpload(t, d)
	seedThreeSightings(t, d, uploadID)
	ctx := context.Background()

	total, err := read.Count(ctx, d.Read, uploadID, filter.SQL{}, filter.TickVisibility{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)

	compiled, err := filter.Compile([]byte(`{"combinator":"and","rules":[{"field":"common_name","operator":"eq","value":"Robin"}]}`))
	require.NoError(t, err)
	robins, err := read.Count(ctx, d.Read, uploadID, compiled, filter.TickVisibility{})
	require.NoError(t, err)
	require.EqualValues(t, 2, robins)
}

func TestGroupedRollup(t *testing.T) {
	d := openTestDB(t)
	uploadID := insertUpload(t, d)
	seedThreeSightings(t, d, uploadID)
	ctx := context.Background()

	groups, err := read.Grouped(ctx, d.Read, uploadID, filter.SQL{}, filter.TickVisibility{}, []string{"common_name"})
	require.NoError(t, err)
	require.Len(t, groups, 2)

	byKey := make(map[string]read.GroupResult)
	for _, g := range groups {
		byKey[g.Key] = g
	}
	require.EqualValues(t, 2, byKey["Robin"].Count)
	require.EqualValues(t, 1, byKey["Magpie"].Count)

	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	want := []read.GroupResult{
		{Key: "Magpie", Count: 1, SpeciesCount: 1},
		{Key: "Robin", Count: 2, SpeciesCount: 1},
	}
	if diff := cmp.Diff(want, groups); diff != "" {
		t.Errorf("grouped rollup mismatch (-want +got):\n%s", diff)
	}
}

func TestListKeysetPaginationCoversAllRowsWithoutDuplicates(t *testing.T) {
	d := openTestDB(t)
	uploadID := insertUpload(t, d)
	seedThreeSightings(t, d, uploadID)
	ctx := context.Background()

	nameIndex, err := read.BuildNameIndex(ctx, d.Read, uploadID)
	require.NoError(t, err)

	seen := map[int64]bool{}
	var cursor *read.Cursor
	for {
		result, err := read.List(ctx, d.Read, uploadID, nameIndex, read.ListParams{
			SortBy:   read.SortObservedAt,
			SortDir:  read.Asc,
			PageSize: 1,
			Cursor:   cursor,
		})
		require.NoError(t, err)
		require.LessOrEqual(t, len(result.Rows), 1)
		if len(result.Rows) == 0 {
			break
		}
		for _, row := range result.Rows {
			require.False(t, seen[row.ID], "duplicate row across pages")
			seen[row.ID] = true
		}
		if result.NextCursor == "" {
			break
		}
		cursor, err = read.DecodeCursor(result.NextCursor)
		require.NoError(t, err)
	}
	require.Len(t, seen, 3)
}
