package filter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redgrouse/backend/internal/filter"
)

func TestCompileSimpleCondition(t *testing.T) {
	raw := []byte(`{"combinator":"and","rules":[{"field":"common_name","operator":"eq","value":"Robin"}]}`)

	sql, err := filter.Compile(raw)
	require.NoError(t, err)
	require.Contains(t, sql.Clause, "sp.common_name = ?")
	require.Equal(t, []any{"Robin"}, sql.Args)
	require.True(t, sql.SpeciesJoin)
}

func TestCompileIgnoresUnknownField(t *testing.T) {
	raw := []byte(`{"combinator":"and","rules":[{"field":"not_a_real_field","operator":"eq","value":"x"}]}`)

	sql, err := filter.Compile(raw)
	require.NoError(t, err)
	require.Empty(t, sql.Clause)
	require.Empty(t, sql.Args)
}

func TestCompileIgnoresTypeMismatch(t *testing.T) {
	raw := []byte(`{"combinator":"and","rules":[{"field":"count","operator":"eq","value":"not-a-number"}]}`)

	sql, err := filter.Compile(raw)
	require.NoError(t, err)
	require.Empty(t, sql.Clause)
}

func TestCompileNestedGroupsWithOr(t *testing.T) {
	raw := []byte(`{
		"combinator":"and",
		"rules":[
			{"field":"country_code","operator":"eq","value":"GB"},
			{"combinator":"or","rules":[
				{"field":"common_name","operator":"contains","value":"Robin"},
				{"field":"common_name","operator":"contains","value":"Magpie"}
			]}
		]
	}`)

	sql, err := filter.Compile(raw)
	require.NoError(t, err)
	require.Contains(t, sql.Clause, "OR")
	require.Len(t, sql.Args, 3)
}

func TestCompileInOperator(t *testing.T) {
	raw := []byte(`{"combinator":"and","rules":[{"field":"country_code","operator":"in","value":["GB","FR"]}]}`)

	sql, err := filter.Compile(raw)
	require.NoError(t, err)
	require.Contains(t, sql.Clause, "IN (?,?)")
	require.Equal(t, []any{"GB", "FR"}, sql.Args)
}

func TestCompileYearTickInRewritesToYearMembership(t *testing.T) {
	raw := []byte(`{"combinator":"and","rules":[{"field":"year_tick","operator":"in","value":["2023","2024"]}]}`)

	sql, err := filter.Compile(raw)
	require.NoError(t, err)
	require.Contains(t, sql.Clause, "s.year_tick = 1 AND s.year IN (?,?)")
	require.Equal(t, []any{"2023", "2024"}, sql.Args)
}

func TestCompileYearTickNotInStaysLiteral(t *testing.T) {
	raw := []byte(`{"combinator":"and","rules":[{"field":"year_tick","operator":"not_in","value":["2023"]}]}`)

	sql, err := filter.Compile(raw)
	require.NoError(t, err)
	require.Contains(t, sql.Clause, "s.year_tick NOT IN (?)")
}

func TestCompileNeverEmbedsUserStringsLiterally(t *testing.T) {
	raw := []byte(`{"combinator":"and","rules":[{"field":"common_name","operator":"eq","value":"Robin'); DROP TABLE sightings;--"}]}`)

	sql, err := filter.Compile(raw)
	require.NoError(t, err)
	require.NotContains(t, sql.Clause, "DROP TABLE")
	require.NotContains(t, sql.Clause, "Robin")
}

func TestCompileEmptyGroupProducesNoClause(t *testing.T) {
	raw := []byte(`{"combinator":"and","rules":[]}`)

	sql, err := filter.Compile(raw)
	require.NoError(t, err)
	require.Empty(t, sql.Clause)
}

func TestTickVisibilityComposesLifersAndYearTick(t *testing.T) {
	year := 2024
	tv := filter.TickVisibility{LifersOnly: true, YearTickYear: &year}

	clause, args := tv.Compile()
	require.Contains(t, clause, "s.lifer = 1")
	require.Contains(t, clause, "s.year_tick = 1 AND s.year = ?")
	require.Equal(t, []any{2024}, args)
}
