// Package geocoder resolves (latitude, longitude) pairs to a country code
// and optional region code using a preloaded polygon dataset. Lookups are
// pure and CPU-bound; callers are responsible for running them off the I/O
// reactor (see internal/blocking).
package geocoder

import (
	_ "embed"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

//go:embed dataset.geojson
var datasetBytes []byte

const gridCellDegrees = 10

type entry struct {
	id      string
	polygon orb.Polygon
	bound   orb.Bound
}

// Geocoder answers point lookups against a polygon dataset loaded once at
// construction. A Geocoder is safe for concurrent use by multiple goroutines.
type Geocoder struct {
	entries []entry
	grid    map[gridKey][]int
}

type gridKey struct{ x, y int }

// New parses the embedded dataset. Failure is fatal at startup per the
// ingestion contract: geocoding must never silently run with an empty index.
func New() (*Geocoder, error) {
	return newFromBytes(datasetBytes)
}

func newFromBytes(raw []byte) (*Geocoder, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("parse geocoder dataset: %w", err)
	}

	g := &Geocoder{grid: make(map[gridKey][]int)}
	for _, f := range fc.Features {
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok {
			continue
		}
		id, _ := f.Properties["id"].(string)
		if id == "" {
			continue
		}
		idx := len(g.entries)
		g.entries = append(g.entries, entry{id: id, polygon: poly, bound: poly.Bound()})
		g.indexCells(idx, poly.Bound())
	}
	if len(g.entries) == 0 {
		return nil, fmt.Errorf("geocoder dataset contains no usable polygons")
	}
	return g, nil
}

func (g *Geocoder) indexCells(idx int, b orb.Bound) {
	minX := cellIndex(b.Min[0])
	maxX := cellIndex(b.Max[0])
	minY := cellIndex(b.Min[1])
	maxY := cellIndex(b.Max[1])
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			k := gridKey{x, y}
			g.grid[k] = append(g.grid[k], idx)
		}
	}
}

func cellIndex(coord float64) int {
	return int(math.Floor(coord / gridCellDegrees))
}

// Result is the resolved country/region pair for one point.
type Result struct {
	CountryCode string
	RegionCode  *string
}

// invalidResult is returned for out-of-range coordinates.
func invalidResult() Result { return Result{CountryCode: "XX"} }

// Lookup resolves a single point. Invalid coordinates return ("XX", nil).
func (g *Geocoder) Lookup(lat, lng float64) Result {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return invalidResult()
	}

	point := orb.Point{lng, lat}
	ids := g.candidateIDs(point)
	if len(ids) == 0 {
		return invalidResult()
	}
	return resolve(ids)
}

// LookupBatch resolves points in order, matching the contract's
// [(lat,lng)] -> [(country,region)] signature.
func (g *Geocoder) LookupBatch(points [][2]float64) []Result {
	out := make([]Result, len(points))
	for i, p := range points {
		out[i] = g.Lookup(p[0], p[1])
	}
	return out
}

func (g *Geocoder) candidateIDs(point orb.Point) []string {
	k := gridKey{cellIndex(point[0]), cellIndex(point[1])}
	var ids []string
	for _, idx := range g.grid[k] {
		e := g.entries[idx]
		if !e.bound.Contains(point) {
			continue
		}
		if planar.PolygonContains(e.polygon, point) {
			ids = append(ids, e.id)
		}
	}
	return ids
}

// resolve picks country (shortest id without a hyphen, else the first id)
// and region (first id containing a hyphen).
func resolve(ids []string) Result {
	var country string
	var region *string

	for _, id := range ids {
		if strings.Contains(id, "-") {
			if region == nil {
				r := id
				region = &r
			}
			continue
		}
		if country == "" || len(id) < len(country) {
			country = id
		}
	}
	if country == "" {
		country = ids[0]
	}
	return Result{CountryCode: country, RegionCode: region}
}
