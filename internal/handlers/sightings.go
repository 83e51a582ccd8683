package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/redgrouse/backend/internal/apperror"
	"github.com/redgrouse/backend/internal/filter"
	"github.com/redgrouse/backend/internal/models"
	"github.com/redgrouse/backend/internal/read"
)

// resolveUpload loads the upload id blob and data_version, and the name
// index current for that version — the shared setup every sightings-query
// handler needs.
func (h *Handlers) resolveUpload(ctx context.Context, idText string) ([]byte, *models.NameIndex, error) {
	idBlob, dataVersion, err := h.uploads.Resolve(ctx, idText)
	if err != nil {
		return nil, nil, err
	}
	idx, err := h.nameIndex.Get(ctx, idText, dataVersion, func(ctx context.Context) (*models.NameIndex, error) {
		return read.BuildNameIndex(ctx, h.db.Read, idBlob)
	})
	if err != nil {
		return nil, nil, apperror.Internalf(err, "failed to build name index")
	}
	return idBlob, idx, nil
}

func parseTickVisibility(q url.Values) (filter.TickVisibility, error) {
	var tick filter.TickVisibility
	tick.LifersOnly = q.Get("lifers_only") == "true" || q.Get("lifers_only") == "1"

	if raw := q.Get("year_tick_year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return tick, apperror.BadRequest("year_tick_year must be an integer")
		}
		tick.YearTickYear = &year
	}
	if raw := q.Get("country_tick_country"); raw != "" {
		tick.CountryTickCountry = &raw
	}
	return tick, nil
}

func compileFilter(q url.Values) (filter.SQL, error) {
	raw := q.Get("filter")
	if raw == "" {
		return filter.SQL{}, nil
	}
	sql, err := filter.Compile([]byte(raw))
	if err != nil {
		return filter.SQL{}, apperror.BadRequest("malformed filter")
	}
	return sql, nil
}

type sightingView struct {
	ID          int64   `json:"id"`
	CommonName  string  `json:"common_name,omitempty"`
	Scientific  string  `json:"scientific_name,omitempty"`
	Count       int     `json:"count"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	CountryCode string  `json:"country_code"`
	RegionCode  *string `json:"region_code,omitempty"`
	ObservedAt  string  `json:"observed_at"`
}

type listResponse struct {
	Total      int64          `json:"total"`
	Rows       []sightingView `json:"rows"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type groupResponse struct {
	Groups []read.GroupResult `json:"groups"`
}

// Count returns the number of sightings matching a filter.
//
//	@Summary	Count sightings
//	@Tags		Sightings
//	@Produce	json
//	@Param		id		path		string	true	"Upload ID"
//	@Param		filter	query		string	false	"Filter expression"
//	@Success	200		{object}	map[string]int64
//	@Router		/api/uploads/{id}/count [get]
func (h *Handlers) Count(w http.ResponseWriter, r *http.Request) {
	idText := chi.URLParam(r, "id")
	idBlob, _, err := h.uploads.Resolve(r.Context(), idText)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	f, err := compileFilter(r.URL.Query())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	tick, err := parseTickVisibility(r.URL.Query())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	ctx, cancel := h.withDBTimeout(r.Context())
	defer cancel()
	total, err := read.Count(ctx, h.db.Read, idBlob, f, tick)
	if err != nil {
		respondError(w, h.logger, apperror.Internalf(err, "failed to count sightings"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": total})
}

// Sightings returns a keyset-paginated sightings listing, or a grouped
// rollup when group_by is present.
//
//	@Summary	List or group sightings
//	@Tags		Sightings
//	@Produce	json
//	@Param		id			path		string		true	"Upload ID"
//	@Param		filter		query		string		false	"Filter expression"
//	@Param		sort_by		query		string		false	"Sort field"
//	@Param		sort_dir	query		string		false	"asc or desc"
//	@Param		page_size	query		int			false	"Page size"
//	@Param		cursor		query		string		false	"Pagination cursor"
//	@Param		group_by	query		[]string	false	"Group-by fields"
//	@Success	200			{object}	listResponse
//	@Router		/api/uploads/{id}/sightings [get]
func (h *Handlers) Sightings(w http.ResponseWriter, r *http.Request) {
	idText := chi.URLParam(r, "id")
	q := r.URL.Query()

	f, err := compileFilter(q)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	tick, err := parseTickVisibility(q)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	if groupBy := q["group_by"]; len(groupBy) > 0 {
		idBlob, _, err := h.uploads.Resolve(r.Context(), idText)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		ctx, cancel := h.withDBTimeout(r.Context())
		defer cancel()
		groups, err := read.Grouped(ctx, h.db.Read, idBlob, f, tick, groupBy)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, groupResponse{Groups: groups})
		return
	}

	idBlob, idx, err := h.resolveUpload(r.Context(), idText)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	params := read.ListParams{Filter: f, Tick: tick}
	if sortBy := q.Get("sort_by"); sortBy != "" {
		sf, err := read.ValidateSortField(sortBy)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		params.SortBy = sf
	} else {
		params.SortBy = read.SortObservedAt
	}
	if q.Get("sort_dir") == "asc" {
		params.SortDir = read.Asc
	} else {
		params.SortDir = read.Desc
	}
	if raw := q.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, h.logger, apperror.BadRequest("page_size must be an integer"))
			return
		}
		params.PageSize = size
	}
	cursor, err := read.DecodeCursor(q.Get("cursor"))
	if err != nil {
		respondError(w, h.logger, apperror.BadRequest("malformed cursor"))
		return
	}
	params.Cursor = cursor

	ctx, cancel := h.withDBTimeout(r.Context())
	defer cancel()
	result, err := read.List(ctx, h.db.Read, idBlob, idx, params)
	if err != nil {
		respondError(w, h.logger, apperror.Internalf(err, "failed to list sightings"))
		return
	}

	rows := make([]sightingView, 0, len(result.Rows))
	for _, row := range result.Rows {
		view := sightingView{
			ID:          row.ID,
			Count:       row.Count,
			Latitude:    row.Latitude,
			Longitude:   row.Longitude,
			CountryCode: row.CountryCode,
			RegionCode:  row.RegionCode,
			ObservedAt:  row.ObservedAt,
		}
		if row.SpeciesIndex >= 0 && row.SpeciesIndex < len(idx.Entries) {
			entry := idx.Entries[row.SpeciesIndex]
			view.CommonName = entry.Common
			view.Scientific = entry.Scientific
		}
		rows = append(rows, view)
	}

	writeJSON(w, http.StatusOK, listResponse{Total: result.Total, Rows: rows, NextCursor: result.NextCursor})
}

// Stats returns summary statistics for an upload, restricted to the same
// filtered, tick-visible subset of rows as /count and /sightings.
//
//	@Summary	Upload summary statistics
//	@Tags		Sightings
//	@Produce	json
//	@Param		id						path		string	true	"Upload ID"
//	@Param		filter					query		string	false	"Filter expression"
//	@Param		lifers_only				query		bool	false	"Restrict to lifers"
//	@Param		year_tick_year			query		int		false	"Restrict to year ticks for this year"
//	@Param		country_tick_country	query		string	false	"Restrict to country ticks for this country"
//	@Success	200						{object}	read.StatsResult
//	@Router		/api/uploads/{id}/stats [get]
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	idText := chi.URLParam(r, "id")
	idBlob, _, err := h.uploads.Resolve(r.Context(), idText)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	f, err := compileFilter(r.URL.Query())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	tick, err := parseTickVisibility(r.URL.Query())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	ctx, cancel := h.withDBTimeout(r.Context())
	defer cancel()
	result, err := read.Stats(ctx, h.db.Read, idBlob, f, tick)
	if err != nil {
		respondError(w, h.logger, apperror.Internalf(err, "failed to compute stats"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}
