package read

import (
	"context"
	"database/sql"

	"github.com/redgrouse/backend/internal/filter"
	"github.com/redgrouse/backend/internal/models"
)

// fieldLabels gives the field-metadata catalogue a human label per field;
// anything absent falls back to the raw field name.
var fieldLabels = map[string]string{
	"common_name":     "Common name",
	"scientific_name": "Scientific name",
	"country_code":    "Country",
	"count":           "Count",
	"observed_at":     "Observed at",
	"year":            "Year",
	"notes":           "Notes",
	"trip_name":       "Trip",
	"lifer":           "Lifer",
	"year_tick":       "Year tick",
}

// fieldTypeOverrides distinguishes display types the bare SQL binding-kind
// doesn't capture: observed_at reads as a date, year_tick as its own
// boolean-tick flavour rather than plain boolean.
var fieldTypeOverrides = map[string]string{
	"observed_at": "date",
	"year_tick":   "year_tick",
}

// FieldCatalogue returns the static (name, label, type) metadata for every
// whitelisted, filterable field.
func FieldCatalogue() []models.FieldMeta {
	names := filter.FieldNames()
	out := make([]models.FieldMeta, 0, len(names))
	for _, name := range names {
		kind, ok := filter.FieldKindName(name)
		if !ok {
			continue
		}
		if override, ok := fieldTypeOverrides[name]; ok {
			kind = override
		}
		label := fieldLabels[name]
		if label == "" {
			label = name
		}
		out = append(out, models.FieldMeta{Name: name, Label: label, Type: kind})
	}
	return out
}

const maxDistinctValues = 500

// DistinctValues returns up to 500 distinct CAST(field AS TEXT) values for an
// upload. A field that fails the whitelist returns an empty, non-error list.
func DistinctValues(ctx context.Context, db *sql.DB, uploadID []byte, field string) ([]string, error) {
	column, ok := fieldColumn(field)
	if !ok {
		return nil, nil
	}

	table := "sightings s"
	if filter.FieldRequiresSpeciesJoin(field) {
		table += " JOIN species sp ON s.species_id = sp.id"
	}

	query := "SELECT DISTINCT CAST(" + column + " AS TEXT) FROM " + table +
		" WHERE s.upload_id = ? AND " + column + " IS NOT NULL ORDER BY 1 LIMIT ?"

	rows, err := db.QueryContext(ctx, query, uploadID, maxDistinctValues)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// fieldColumn maps a whitelisted field name to its qualified SQL column,
// reusing the same whitelist the filter compiler binds against.
func fieldColumn(field string) (string, bool) {
	if _, ok := filter.FieldKindName(field); !ok {
		return "", false
	}
	if filter.FieldRequiresSpeciesJoin(field) {
		return "sp." + field, true
	}
	return "s." + field, true
}
