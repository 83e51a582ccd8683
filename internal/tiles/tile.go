package tiles

import (
	"context"
	"database/sql"

	"github.com/redgrouse/backend/internal/apperror"
	"github.com/redgrouse/backend/internal/blocking"
	"github.com/redgrouse/backend/internal/filter"
)

// Request bundles the parameters that identify one tile render.
type Request struct {
	UploadID           []byte
	UploadIDText       string
	Z, X, Y            int
	Filter             filter.SQL
	RawFilter          []byte
	Tick               filter.TickVisibility
	LifersOnly         bool
	YearTickYear       *int
	CountryTickCountry *string
}

// Serve returns the encoded MVT bytes for req, consulting cache first.
// Coordinates out of range for the zoom are a BadRequest; an upload with no
// matching sightings in the tile yields an empty (but valid) tile.
func Serve(ctx context.Context, db *sql.DB, pool *blocking.Pool, cache *Cache, req Request) ([]byte, error) {
	if !ValidTile(req.Z, req.X, req.Y) {
		return nil, apperror.BadRequest("tile coordinates out of range for zoom")
	}

	hash := FilterHash(req.RawFilter, req.LifersOnly, req.YearTickYear, req.CountryTickCountry)
	key := Key(req.UploadIDText, req.Z, req.X, req.Y, hash)

	if body, ok := cache.Get(key); ok {
		return body, nil
	}

	box := TileBBox(req.Z, req.X, req.Y)
	features, err := FetchFeatures(ctx, db, req.UploadID, req.Z, box, req.Filter, req.Tick)
	if err != nil {
		return nil, apperror.Internalf(err, "failed to fetch tile candidates")
	}

	body, err := Encode(ctx, pool, req.Z, req.X, req.Y, features)
	if err != nil {
		return nil, apperror.Internalf(err, "failed to encode tile")
	}

	cache.Put(key, body)
	return body, nil
}
