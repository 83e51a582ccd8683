package tiles

import (
	"context"
	"database/sql"
	"strings"

	"github.com/redgrouse/backend/internal/filter"
)

// Feature is one projected sighting ready for MVT encoding.
type Feature struct {
	ID             int64
	Latitude       float64
	Longitude      float64
	CommonName     string
	ScientificName string
	Count          int
	ObservedAt     string
	Lifer          bool
	YearTick       bool
	CountryTick    bool
}

// FetchFeatures selects the candidate sightings for one tile, applying the
// zoom-adaptive vis_rank threshold (or, at high zoom, a geo-index-bounded
// candidate set) plus the caller's filter and tick-visibility composition.
func FetchFeatures(ctx context.Context, db *sql.DB, uploadID []byte, z int, box BBox, f filter.SQL, tick filter.TickVisibility) ([]Feature, error) {
	visThreshold, maxPoints := SamplingFor(z)

	// The species table is always joined here (name/scientific_name tags
	// are projected on every feature), independent of f.SpeciesJoin.
	var sb strings.Builder
	sb.WriteString(`SELECT s.id, s.latitude, s.longitude, sp.common_name, sp.scientific_name, s.count, s.observed_at, s.lifer, s.year_tick, s.country_tick
		FROM sightings s
		JOIN sightings_geo g ON g.id = s.id
		JOIN species sp ON s.species_id = sp.id
		WHERE s.upload_id = ?
		  AND g.min_lat <= ? AND g.max_lat >= ?
		  AND g.min_lon <= ? AND g.max_lon >= ?`)
	args := []any{uploadID, box.MaxLat, box.MinLat, box.MaxLon, box.MinLon}

	if !HighZoom(z) {
		sb.WriteString(" AND s.vis_rank < ?")
		args = append(args, visThreshold)
	}

	sb.WriteString(f.Clause)
	args = append(args, f.Args...)
	tickClause, tickArgs := tick.Compile()
	sb.WriteString(tickClause)
	args = append(args, tickArgs...)

	limit := maxPoints
	if HighZoom(z) {
		limit = CandidateCap(maxPoints)
	}
	sb.WriteString(" ORDER BY s.vis_rank ASC, s.id ASC LIMIT ?")
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Feature
	for rows.Next() {
		var feat Feature
		if err := rows.Scan(&feat.ID, &feat.Latitude, &feat.Longitude, &feat.CommonName,
			&feat.ScientificName, &feat.Count, &feat.ObservedAt, &feat.Lifer, &feat.YearTick, &feat.CountryTick); err != nil {
			return nil, err
		}
		out = append(out, feat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if HighZoom(z) && len(out) > maxPoints {
		out = out[:maxPoints]
	}
	return out, nil
}
