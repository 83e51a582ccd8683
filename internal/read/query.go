package read

import (
	"fmt"

	"github.com/redgrouse/backend/internal/apperror"
)

// SortField whitelists the columns sightings may be ordered by.
type SortField string

const (
	SortCommonName     SortField = "common_name"
	SortScientificName SortField = "scientific_name"
	SortCount          SortField = "count"
	SortSpeciesCount   SortField = "species_count"
	SortCountryCode    SortField = "country_code"
	SortObservedAt     SortField = "observed_at"
)

// sortColumn maps a whitelisted sort field to its SQL column expression and
// whether it requires the species join.
var sortColumn = map[SortField]struct {
	expr        string
	speciesJoin bool
	nullable    bool
}{
	SortCommonName:     {expr: "sp.common_name", speciesJoin: true},
	SortScientificName: {expr: "sp.scientific_name", speciesJoin: true},
	SortCount:          {expr: "s.count"},
	SortSpeciesCount:   {expr: "COUNT(DISTINCT sp.scientific_name)", speciesJoin: true},
	SortCountryCode:    {expr: "s.country_code", nullable: true},
	SortObservedAt:     {expr: "s.observed_at"},
}

// groupByColumn whitelists the fields sightings may be grouped on.
var groupByColumn = map[string]struct {
	expr        string
	speciesJoin bool
}{
	"common_name":     {expr: "sp.common_name", speciesJoin: true},
	"scientific_name": {expr: "sp.scientific_name", speciesJoin: true},
	"country_code":    {expr: "s.country_code"},
	"observed_at":     {expr: "DATE(s.observed_at)"},
}

// ValidateSortField checks a sort field against the whitelist.
func ValidateSortField(f string) (SortField, error) {
	sf := SortField(f)
	if _, ok := sortColumn[sf]; !ok {
		return "", apperror.BadRequest(fmt.Sprintf("unknown sort field %q", f))
	}
	return sf, nil
}

// ValidateGroupBy checks a list of group-by field names against the
// whitelist. An empty list is itself a BadRequest per the contract.
func ValidateGroupBy(fields []string) error {
	if len(fields) == 0 {
		return apperror.BadRequest("group_by must name at least one field")
	}
	for _, f := range fields {
		if _, ok := groupByColumn[f]; !ok {
			return apperror.BadRequest(fmt.Sprintf("unknown group-by field %q", f))
		}
	}
	return nil
}

// sortExpr returns the ORDER BY expression for a sort field, wrapping
// nullable columns in COALESCE so cursor comparisons stay total.
func sortExpr(f SortField) string {
	info := sortColumn[f]
	if info.nullable {
		return "COALESCE(" + info.expr + ", '')"
	}
	return info.expr
}

func sortRequiresSpeciesJoin(f SortField) bool {
	return sortColumn[f].speciesJoin
}
