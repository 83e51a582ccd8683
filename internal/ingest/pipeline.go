package ingest

import (
	"context"
	"database/sql"
	"io"
	"log/slog"

	"github.com/redgrouse/backend/internal/blocking"
	"github.com/redgrouse/backend/internal/csvingest"
	"github.com/redgrouse/backend/internal/geocoder"
	"github.com/redgrouse/backend/internal/models"
	"github.com/redgrouse/backend/internal/species"
)

// Pipeline wires the CSV parser, geocoder, species registry and Sink
// together for a single upload's ingest.
type Pipeline struct {
	db       *sql.DB
	geo      *geocoder.Geocoder
	pool     *blocking.Pool
	registry *species.Registry
	logger   *slog.Logger
}

// NewPipeline constructs a Pipeline. db is the write pool; geo and pool are
// shared process-wide singletons.
func NewPipeline(db *sql.DB, geo *geocoder.Geocoder, pool *blocking.Pool, logger *slog.Logger) *Pipeline {
	return &Pipeline{db: db, geo: geo, pool: pool, logger: logger}
}

// Result summarises a completed ingest.
type Result struct {
	RowCount    int
	RowsSkipped int
}

// Ingest streams r through the parser, geocodes and resolves species for
// each row, and commits it via a fresh Sink (with its own species registry)
// bound to uploadID. Callers are responsible for rolling back (deleting) the
// upload row on error.
func (p *Pipeline) Ingest(ctx context.Context, uploadID []byte, r io.Reader) (Result, error) {
	sink := NewSink(p.db, species.New(p.db), uploadID)

	var parseStats struct{ skipped int }

	geocodeBatch := make([]models.ParsedSighting, 0, BatchSize)

	flushGeocode := func() error {
		if len(geocodeBatch) == 0 {
			return nil
		}
		points := make([][2]float64, len(geocodeBatch))
		for i, row := range geocodeBatch {
			points[i] = [2]float64{row.Latitude, row.Longitude}
		}

		var results []geocoder.Result
		err := p.pool.Do(ctx, func() error {
			results = p.geo.LookupBatch(points)
			return nil
		})
		if err != nil {
			return err
		}

		for i, row := range geocodeBatch {
			res := results[i]
			processed := models.ProcessedSighting{
				ParsedSighting: row,
				CountryCode:    res.CountryCode,
				RegionCode:     res.RegionCode,
				Year:           csvingest.ExtractYear(row.ObservedAt, row.RowNumber, p.logger),
			}
			if err := sink.Add(ctx, processed); err != nil {
				return err
			}
		}
		geocodeBatch = geocodeBatch[:0]
		return nil
	}

	stats, err := csvingest.Parse(r, p.logger, func(row models.ParsedSighting) error {
		geocodeBatch = append(geocodeBatch, row)
		if len(geocodeBatch) >= BatchSize {
			return flushGeocode()
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if err := flushGeocode(); err != nil {
		return Result{}, err
	}
	if err := sink.Flush(ctx); err != nil {
		return Result{}, err
	}

	if err := finalizeRowCount(ctx, p.db, uploadID, sink.RowCount()); err != nil {
		return Result{}, err
	}
	if err := BuildDerivedIndices(ctx, p.db, uploadID); err != nil {
		return Result{}, err
	}

	parseStats.skipped = stats.RowsSkipped
	return Result{RowCount: sink.RowCount(), RowsSkipped: parseStats.skipped}, nil
}

func finalizeRowCount(ctx context.Context, db *sql.DB, uploadID []byte, rowCount int) error {
	_, err := db.ExecContext(ctx, `UPDATE uploads SET row_count = ? WHERE id = ?`, rowCount, uploadID)
	return err
}
