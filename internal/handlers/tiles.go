package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/redgrouse/backend/internal/apperror"
	"github.com/redgrouse/backend/internal/tiles"
)

// Tile serves one Mapbox Vector Tile of sightings for an upload.
//
//	@Summary	Get a vector tile of sightings
//	@Tags		Tiles
//	@Produce	application/x-protobuf
//	@Param		id		path	string	true	"Upload ID"
//	@Param		z		path	int		true	"Zoom level"
//	@Param		x		path	int		true	"Tile X"
//	@Param		y		path	string	true	"Tile Y (with .pbf suffix)"
//	@Param		filter	query	string	false	"Filter expression"
//	@Success	200
//	@Router		/api/tiles/{id}/{z}/{x}/{y} [get]
func (h *Handlers) Tile(w http.ResponseWriter, r *http.Request) {
	idText := chi.URLParam(r, "id")
	idBlob, _, err := h.uploads.Resolve(r.Context(), idText)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	z, err := strconv.Atoi(chi.URLParam(r, "z"))
	if err != nil {
		respondError(w, h.logger, apperror.BadRequest("invalid zoom"))
		return
	}
	x, err := strconv.Atoi(chi.URLParam(r, "x"))
	if err != nil {
		respondError(w, h.logger, apperror.BadRequest("invalid tile x"))
		return
	}
	yParam := strings.TrimSuffix(chi.URLParam(r, "y"), ".pbf")
	y, err := strconv.Atoi(yParam)
	if err != nil {
		respondError(w, h.logger, apperror.BadRequest("invalid tile y"))
		return
	}

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

	req := tiles.Request{
		UploadID:           idBlob,
		UploadIDText:       idText,
		Z:                  z,
		X:                  x,
		Y:                  y,
		Filter:             f,
		RawFilter:          []byte(q.Get("filter")),
		Tick:               tick,
		LifersOnly:         tick.LifersOnly,
		YearTickYear:       tick.YearTickYear,
		CountryTickCountry: tick.CountryTickCountry,
	}

	ctx, cancel := h.withDBTimeout(r.Context())
	defer cancel()
	body, err := tiles.Serve(ctx, h.db.Read, h.pool, h.tileCache, req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-protobuf")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
