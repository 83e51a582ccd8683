package ingest

import (
	"context"
	"database/sql"
	"math"
	"strconv"

	"github.com/RoaringBitmap/roaring"

	"github.com/redgrouse/backend/internal/apperror"
	"github.com/redgrouse/backend/internal/models"
)

type gridCell struct {
	latCell int
	lonCell int
}

// BuildDerivedIndices runs after the last ingest batch commits: it applies
// the grid-cell visibility boost (same transaction as the row-count update,
// here folded into its own transaction immediately after) and then
// materialises the three tick bitmaps in a second transaction, blowing away
// any prior bitmaps for the upload first.
func BuildDerivedIndices(ctx context.Context, db *sql.DB, uploadID []byte) error {
	if err := applyGridVisibilityBoost(ctx, db, uploadID); err != nil {
		return apperror.Internalf(err, "failed to compute grid visibility")
	}
	if err := materialiseBitmaps(ctx, db, uploadID); err != nil {
		return apperror.Internalf(err, "failed to materialise tick bitmaps")
	}
	return nil
}

func applyGridVisibilityBoost(ctx context.Context, db *sql.DB, uploadID []byte) error {
	rows, err := db.QueryContext(ctx,
		`SELECT id, latitude, longitude, vis_rank FROM sightings WHERE upload_id = ?`, uploadID)
	if err != nil {
		return err
	}

	type point struct {
		id      int64
		visRank int
	}
	best := make(map[gridCell]point)

	for rows.Next() {
		var id int64
		var lat, lon float64
		var visRank int
		if err := rows.Scan(&id, &lat, &lon, &visRank); err != nil {
			rows.Close()
			return err
		}
		cell := gridCell{latCell: int(math.Floor(lat)), lonCell: int(math.Floor(lon))}
		cur, ok := best[cell]
		if !ok || visRank < cur.visRank || (visRank == cur.visRank && id < cur.id) {
			best[cell] = point{id: id, visRank: visRank}
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	if len(best) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE sightings SET vis_rank = 0 WHERE id = ? AND vis_rank != 0`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range best {
		if p.visRank == 0 {
			continue
		}
		if _, err := stmt.ExecContext(ctx, p.id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func materialiseBitmaps(ctx context.Context, db *sql.DB, uploadID []byte) error {
	rows, err := db.QueryContext(ctx,
		`SELECT id, species_id, year, country_code, lifer, year_tick, country_tick
		 FROM sightings WHERE upload_id = ?`, uploadID)
	if err != nil {
		return err
	}

	lifer := roaring.New()
	byYear := make(map[string]*roaring.Bitmap)
	byCountry := make(map[string]*roaring.Bitmap)

	for rows.Next() {
		var id, speciesID int64
		var year int
		var country string
		var isLifer, isYearTick, isCountryTick bool
		if err := rows.Scan(&id, &speciesID, &year, &country, &isLifer, &isYearTick, &isCountryTick); err != nil {
			rows.Close()
			return err
		}
		if isLifer {
			lifer.Add(uint32(id))
		}
		if isYearTick {
			key := yearBitmapKey(year)
			bm, ok := byYear[key]
			if !ok {
				bm = roaring.New()
				byYear[key] = bm
			}
			bm.Add(uint32(id))
		}
		if isCountryTick {
			bm, ok := byCountry[country]
			if !ok {
				bm = roaring.New()
				byCountry[country] = bm
			}
			bm.Add(uint32(id))
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tick_bitmaps WHERE upload_id = ?`, uploadID); err != nil {
		return err
	}

	insert := func(bitmapType, key string, bm *roaring.Bitmap) error {
		data, err := bm.ToBytes()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tick_bitmaps (upload_id, bitmap_type, bitmap_key, bitmap) VALUES (?, ?, ?, ?)`,
			uploadID, bitmapType, key, data)
		return err
	}

	if !lifer.IsEmpty() {
		if err := insert(string(models.BitmapLifer), "", lifer); err != nil {
			return err
		}
	}
	for key, bm := range byYear {
		if err := insert(string(models.BitmapYear), key, bm); err != nil {
			return err
		}
	}
	for key, bm := range byCountry {
		if err := insert(string(models.BitmapCountry), key, bm); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func yearBitmapKey(year int) string {
	return strconv.Itoa(year)
}
