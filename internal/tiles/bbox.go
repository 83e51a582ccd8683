// Package tiles serves zoom-adaptive vector tiles over a sighting upload:
// bounding-box + visibility-rank range scans, projected into Mapbox Vector
// Tile features and cached by (upload, tile, filter-hash).
package tiles

import "math"

// BBox is a geographic bounding box in degrees.
type BBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// TileBBox computes the Web-Mercator tile extent for (z, x, y) per the
// standard XYZ tiling scheme.
func TileBBox(z, x, y int) BBox {
	n := math.Pow(2, float64(z))
	lonMin := float64(x)/n*360 - 180
	lonMax := float64(x+1)/n*360 - 180
	latMax := mercatorLat(1 - 2*float64(y)/n)
	latMin := mercatorLat(1 - 2*float64(y+1)/n)
	return BBox{MinLat: latMin, MaxLat: latMax, MinLon: lonMin, MaxLon: lonMax}
}

func mercatorLat(v float64) float64 {
	return math.Atan(math.Sinh(math.Pi*v)) * 180 / math.Pi
}

// ValidTile reports whether x, y are within range for zoom z (0 <= x,y < 2^z)
// and z itself is non-negative; Serve rejects anything else as BadRequest
// before querying or encoding.
func ValidTile(z, x, y int) bool {
	if z < 0 {
		return false
	}
	n := 1 << uint(z)
	return x >= 0 && x < n && y >= 0 && y < n
}
