package tiles

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/redgrouse/backend/internal/blocking"
)

const layerName = "sightings"

// Encode projects features into tile-local coordinates and marshals them as
// an MVT layer, on the blocking pool — this is measurably CPU-bound and must
// not run on the request-handling goroutine's fast path.
func Encode(ctx context.Context, pool *blocking.Pool, z, x, y int, features []Feature) ([]byte, error) {
	var out []byte
	err := pool.Do(ctx, func() error {
		fc := geojson.NewFeatureCollection()
		for _, feat := range features {
			gf := geojson.NewFeature(orb.Point{feat.Longitude, feat.Latitude})
			gf.ID = feat.ID
			gf.Properties = geojson.Properties{
				"name":            feat.CommonName,
				"scientific_name": feat.ScientificName,
				"count":           feat.Count,
				"observed_at":     feat.ObservedAt,
				"lifer":           feat.Lifer,
				"year_tick":       feat.YearTick,
				"country_tick":    feat.CountryTick,
			}
			fc.Append(gf)
		}

		layers := mvt.NewLayers(map[string]*geojson.FeatureCollection{layerName: fc})
		layers.ProjectToTile(maptile.New(uint32(x), uint32(y), maptile.Zoom(z)))
		for _, l := range layers {
			l.Extent = TileExtent
			l.Version = 2
		}

		encoded, err := mvt.Marshal(layers)
		if err != nil {
			return err
		}
		out = encoded
		return nil
	})
	return out, err
}
