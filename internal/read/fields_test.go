package read_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redgrouse/backend/internal/read"
)

func TestFieldCatalogueCoversWhitelist(t *testing.T) {
	catalogue := read.FieldCatalogue()
	require.NotEmpty(t, catalogue)

	byName := make(map[string]string)
	for _, f := range catalogue {
		byName[f.Name] = f.Type
	}

	require.Equal(t, "date", byName["observed_at"])
	require.Equal(t, "year_tick", byName["year_tick"])
	require.Equal(t, "number", byName["count"])
	require.Equal(t, "boolean", byName["lifer"])
	require.Equal(t, "string", byName["common_name"])
}

func TestDistinctValuesOfUnknownFieldIsEmpty(t *testing.T) {
	d := openTestDB(t)
	values, err := read.DistinctValues(context.Background(), d.Read, []byte("upload"), "not_a_real_field")
	require.NoError(t, err)
	require.Empty(t, values)
}
