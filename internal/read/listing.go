// Package read implements the query side: counts, paginated/sorted
// sightings, grouped rollups, field metadata, distinct values, and the
// per-upload stats compound read.
package read

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/redgrouse/backend/internal/filter"
	"github.com/redgrouse/backend/internal/models"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 500
)

// SortDir is asc or desc.
type SortDir string

const (
	Asc  SortDir = "asc"
	Desc SortDir = "desc"
)

// ListParams bundles the query parameters for a sightings listing.
type ListParams struct {
	Filter   filter.SQL
	Tick     filter.TickVisibility
	SortBy   SortField
	SortDir  SortDir
	PageSize int
	Cursor   *Cursor
}

// Row is one projected sighting row.
type Row struct {
	ID             int64
	SpeciesIndex   int
	Count          int
	Latitude       float64
	Longitude      float64
	CountryCode    string
	RegionCode     *string
	ObservedAt     string
}

// ListResult is the non-grouped listing response.
type ListResult struct {
	Total      int64
	Rows       []Row
	NextCursor string
}

// List runs a keyset-paginated, sorted, filtered sightings query.
func List(ctx context.Context, db *sql.DB, uploadID []byte, nameIndex *models.NameIndex, p ListParams) (ListResult, error) {
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	if p.SortDir != Asc {
		p.SortDir = Desc
	}

	needsJoin := p.Filter.SpeciesJoin || sortRequiresSpeciesJoin(p.SortBy)

	var sb strings.Builder
	sb.WriteString(`SELECT s.id, s.species_id, s.count, s.latitude, s.longitude, s.country_code, s.region_code, s.observed_at FROM sightings s`)
	if needsJoin {
		sb.WriteString(` JOIN species sp ON s.species_id = sp.id`)
	}
	sb.WriteString(` WHERE s.upload_id = ?`)

	args := []any{uploadID}
	sb.WriteString(p.Filter.Clause)
	args = append(args, p.Filter.Args...)

	tickClause, tickArgs := p.Tick.Compile()
	sb.WriteString(tickClause)
	args = append(args, tickArgs...)

	order := sortExpr(p.SortBy)
	if p.Cursor != nil {
		cmp := ">"
		if p.SortDir == Desc {
			cmp = "<"
		}
		sb.WriteString(fmt.Sprintf(" AND (%s, s.id) %s (?, ?)", order, cmp))
		args = append(args, p.Cursor.SortValue, p.Cursor.ID)
	}

	sb.WriteString(fmt.Sprintf(" ORDER BY %s %s, s.id %s", order, strings.ToUpper(string(p.SortDir)), strings.ToUpper(string(p.SortDir))))
	sb.WriteString(" LIMIT ?")
	args = append(args, p.PageSize)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return ListResult{}, err
	}
	defer rows.Close()

	var out []Row
	var lastSortValue any
	var lastID int64
	for rows.Next() {
		var r Row
		var speciesID int64
		var region sql.NullString
		if err := rows.Scan(&r.ID, &speciesID, &r.Count, &r.Latitude, &r.Longitude, &r.CountryCode, &region, &r.ObservedAt); err != nil {
			return ListResult{}, err
		}
		if region.Valid {
			v := region.String
			r.RegionCode = &v
		}
		r.SpeciesIndex = IndexFor(nameIndex, speciesID)
		out = append(out, r)
		lastID = r.ID
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, err
	}

	total, err := Count(ctx, db, uploadID, p.Filter, p.Tick)
	if err != nil {
		return ListResult{}, err
	}

	result := ListResult{Total: total, Rows: out}
	if len(out) == int(p.PageSize) {
		cursorValue, cerr := lastSortValueFor(ctx, db, uploadID, needsJoin, order, lastID)
		if cerr == nil && cursorValue != nil {
			lastSortValue = cursorValue
			token, err := EncodeCursor(Cursor{SortValue: lastSortValue, ID: lastID})
			if err == nil {
				result.NextCursor = token
			}
		}
	}
	return result, nil
}

// lastSortValueFor re-reads the sort column's value for the last row so the
// cursor can be built without threading an `any` scan target through the
// main projection (sqlite driver types vary by expression).
func lastSortValueFor(ctx context.Context, db *sql.DB, uploadID []byte, needsJoin bool, orderExpr string, id int64) (any, error) {
	q := "SELECT " + orderExpr + " FROM sightings s"
	if needsJoin {
		q += " JOIN species sp ON s.species_id = sp.id"
	}
	q += " WHERE s.upload_id = ? AND s.id = ?"

	var value any
	if err := db.QueryRowContext(ctx, q, uploadID, id).Scan(&value); err != nil {
		return nil, err
	}
	return value, nil
}

// Count returns COUNT(*) for the given filter/tick composition.
func Count(ctx context.Context, db *sql.DB, uploadID []byte, f filter.SQL, tick filter.TickVisibility) (int64, error) {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM sightings s")
	if f.SpeciesJoin {
		sb.WriteString(" JOIN species sp ON s.species_id = sp.id")
	}
	sb.WriteString(" WHERE s.upload_id = ?")

	args := []any{uploadID}
	sb.WriteString(f.Clause)
	args = append(args, f.Args...)

	tickClause, tickArgs := tick.Compile()
	sb.WriteString(tickClause)
	args = append(args, tickArgs...)

	var count int64
	err := db.QueryRowContext(ctx, sb.String(), args...).Scan(&count)
	return count, err
}

// GroupResult is one row of a grouped rollup.
type GroupResult struct {
	Key          string
	Count        int64
	SpeciesCount int64
}

// Grouped runs a GROUP BY rollup over the whitelisted group-by fields.
func Grouped(ctx context.Context, db *sql.DB, uploadID []byte, f filter.SQL, tick filter.TickVisibility, fields []string) ([]GroupResult, error) {
	if err := ValidateGroupBy(fields); err != nil {
		return nil, err
	}

	exprs := make([]string, 0, len(fields))
	for _, field := range fields {
		exprs = append(exprs, groupByColumn[field].expr)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(exprs, " || '' || "))
	// species_count always requires the join, regardless of which fields
	// are grouped on.
	sb.WriteString(" AS group_key, COUNT(*) AS cnt, COUNT(DISTINCT sp.scientific_name) AS species_cnt FROM sightings s JOIN species sp ON s.species_id = sp.id")
	sb.WriteString(" WHERE s.upload_id = ?")

	args := []any{uploadID}
	sb.WriteString(f.Clause)
	args = append(args, f.Args...)
	tickClause, tickArgs := tick.Compile()
	sb.WriteString(tickClause)
	args = append(args, tickArgs...)

	sb.WriteString(" GROUP BY group_key ORDER BY cnt DESC")

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GroupResult
	for rows.Next() {
		var g GroupResult
		if err := rows.Scan(&g.Key, &g.Count, &g.SpeciesCount); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
