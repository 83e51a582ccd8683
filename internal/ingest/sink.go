// Package ingest turns geocoded, species-resolved sightings into persisted
// rows: tick-flag derivation against per-upload seen-sets, vis_rank
// computation, and batched transactional inserts.
package ingest

import (
	"context"
	"database/sql"
	"hash/fnv"

	"github.com/redgrouse/backend/internal/apperror"
	"github.com/redgrouse/backend/internal/models"
	"github.com/redgrouse/backend/internal/species"
)

// BatchSize is the flush threshold described in the ingestion contract.
const BatchSize = 1000

// MaxRowsPerUpload is the hard cap enforced before any row is committed.
const MaxRowsPerUpload = 250_000

// insertColumns is the column count per row bound in a single INSERT
// statement; rowsPerStatement keeps total bound vars under the engine's 999
// ceiling (999/16 = 62).
const insertColumns = 16
const rowsPerStatement = 999 / insertColumns

type yearKey struct {
	speciesID int64
	year      int
}

type countryKey struct {
	speciesID int64
	country   string
}

// Sink accumulates rows for a single upload's ingest and flushes them in
// batches. It is not safe for concurrent use — ingestion of one upload is
// single-threaded by contract (ordering determines tick derivation).
type Sink struct {
	db       *sql.DB
	registry *species.Registry
	uploadID []byte

	liferSeen   map[int64]struct{}
	yearSeen    map[yearKey]struct{}
	countrySeen map[countryKey]struct{}

	pending  []models.ProcessedSighting
	rowCount int
	maxRows  int
}

// NewSink returns a Sink for uploadID (16-byte blob), writing through db and
// resolving species ids via registry.
func NewSink(db *sql.DB, registry *species.Registry, uploadID []byte) *Sink {
	return NewSinkWithLimit(db, registry, uploadID, MaxRowsPerUpload)
}

// NewSinkWithLimit is NewSink with an overridable row cap, primarily for
// tests; production callers should use NewSink.
func NewSinkWithLimit(db *sql.DB, registry *species.Registry, uploadID []byte, maxRows int) *Sink {
	return &Sink{
		db:          db,
		registry:    registry,
		uploadID:    uploadID,
		liferSeen:   make(map[int64]struct{}),
		yearSeen:    make(map[yearKey]struct{}),
		countrySeen: make(map[countryKey]struct{}),
		maxRows:     maxRows,
	}
}

// Add appends one row to the pending batch, flushing automatically once
// BatchSize is reached.
func (s *Sink) Add(ctx context.Context, row models.ProcessedSighting) error {
	if s.rowCount+len(s.pending)+1 > s.maxRows {
		return apperror.BadRequest("upload exceeds maximum of 250000 rows")
	}
	s.pending = append(s.pending, row)
	if len(s.pending) >= BatchSize {
		return s.Flush(ctx)
	}
	return nil
}

// Flush resolves species ids, derives tick flags and vis_rank, and inserts
// the pending batch in one transaction. A no-op if nothing is pending.
func (s *Sink) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	batch := s.pending
	s.pending = nil

	keys := make([]species.Key, len(batch))
	for i, row := range batch {
		keys[i] = species.Key{Common: row.CommonName, Scientific: row.ScientificName}
	}
	ids, err := s.registry.Resolve(ctx, keys)
	if err != nil {
		return err
	}

	rows := make([]models.Sighting, 0, len(batch))
	for _, row := range batch {
		sightingUUID, err := models.ParseUUID(row.SightingUUID)
		if err != nil {
			continue // malformed source id: skip, not a structural failure
		}
		speciesID := ids[species.Key{Common: row.CommonName, Scientific: row.ScientificName}]

		lifer := s.markLifer(speciesID)
		yearTick := s.markYearTick(speciesID, row.Year)
		countryTick := s.markCountryTick(speciesID, row.CountryCode)

		visRank := 0
		if !lifer && !yearTick && !countryTick {
			visRank = int(hashUUID(sightingUUID) % 10001)
		}

		rows = append(rows, models.Sighting{
			UploadID:     s.uploadID,
			SightingUUID: sightingUUID,
			SpeciesID:    speciesID,
			Count:        row.Count,
			Latitude:     row.Latitude,
			Longitude:    row.Longitude,
			CountryCode:  row.CountryCode,
			RegionCode:   row.RegionCode,
			ObservedAt:   row.ObservedAt,
			Year:         row.Year,
			Lifer:        lifer,
			YearTick:     yearTick,
			CountryTick:  countryTick,
			VisRank:      visRank,
			Notes:        row.Notes,
			TripName:     row.TripName,
		})
	}

	if err := s.insertBatch(ctx, rows); err != nil {
		return apperror.Internalf(err, "failed to insert sighting batch")
	}
	s.rowCount += len(rows)
	return nil
}

// RowCount returns the number of rows committed so far (across all flushes).
func (s *Sink) RowCount() int { return s.rowCount }

func (s *Sink) markLifer(speciesID int64) bool {
	if _, seen := s.liferSeen[speciesID]; seen {
		return false
	}
	s.liferSeen[speciesID] = struct{}{}
	return true
}

func (s *Sink) markYearTick(speciesID int64, year int) bool {
	k := yearKey{speciesID: speciesID, year: year}
	if _, seen := s.yearSeen[k]; seen {
		return false
	}
	s.yearSeen[k] = struct{}{}
	return true
}

func (s *Sink) markCountryTick(speciesID int64, country string) bool {
	if country == "" || country == "XX" {
		return false
	}
	k := countryKey{speciesID: speciesID, country: country}
	if _, seen := s.countrySeen[k]; seen {
		return false
	}
	s.countrySeen[k] = struct{}{}
	return true
}

func hashUUID(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}

func (s *Sink) insertBatch(ctx context.Context, rows []models.Sighting) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for start := 0; start < len(rows); start += rowsPerStatement {
		end := start + rowsPerStatement
		if end > len(rows) {
			end = len(rows)
		}
		if err := insertChunk(ctx, tx, rows[start:end]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertChunk(ctx context.Context, tx *sql.Tx, rows []models.Sighting) error {
	query := buildInsertSQL(len(rows))
	args := make([]any, 0, len(rows)*insertColumns)
	for _, row := range rows {
		args = append(args,
			row.UploadID, row.SightingUUID, row.SpeciesID, row.Count,
			row.Latitude, row.Longitude, row.CountryCode, row.RegionCode,
			row.ObservedAt, row.Year, boolToInt(row.Lifer), boolToInt(row.YearTick),
			boolToInt(row.CountryTick), row.VisRank, row.Notes, row.TripName,
		)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return insertGeoIndex(ctx, tx, rows)
}

// insertGeoIndex populates the degenerate point boxes for a just-inserted
// chunk. SQLite assigns AUTOINCREMENT ids sequentially and contiguously
// within a single multi-row INSERT, so the chunk's ids run from
// last_insert_rowid()-len(rows)+1 through last_insert_rowid().
func insertGeoIndex(ctx context.Context, tx *sql.Tx, rows []models.Sighting) error {
	var lastID int64
	if err := tx.QueryRowContext(ctx, `SELECT last_insert_rowid()`).Scan(&lastID); err != nil {
		return err
	}
	firstID := lastID - int64(len(rows)) + 1

	const placeholder = "(?,?,?,?,?)"
	query := "INSERT INTO sightings_geo (id, min_lat, max_lat, min_lon, max_lon) VALUES "
	args := make([]any, 0, len(rows)*5)
	for i, row := range rows {
		if i > 0 {
			query += ","
		}
		query += placeholder
		id := firstID + int64(i)
		args = append(args, id, row.Latitude, row.Latitude, row.Longitude, row.Longitude)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func buildInsertSQL(rowCount int) string {
	const placeholder = "(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)"
	query := "INSERT INTO sightings (upload_id, sighting_uuid, species_id, count, latitude, longitude, country_code, region_code, observed_at, year, lifer, year_tick, country_tick, vis_rank, notes, trip_name) VALUES "
	for i := 0; i < rowCount; i++ {
		if i > 0 {
			query += ","
		}
		query += placeholder
	}
	return query
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
