package csvingest

import "strings"

// ColumnMap names the indices of the columns this ingester understands,
// located from the header row. Absence is represented as -1.
type ColumnMap struct {
	SightingID     int
	Date           int
	Longitude      int
	Latitude       int
	CommonName     int
	ScientificName int
	Count          int
	Notes          int
	TripName       int
}

var headerAliases = map[string]string{
	"sightingid":      "sightingId",
	"sighting_id":     "sightingId",
	"date":            "date",
	"observed_at":     "date",
	"longitude":       "longitude",
	"lng":             "longitude",
	"lon":             "longitude",
	"latitude":        "latitude",
	"lat":             "latitude",
	"commonname":      "commonName",
	"common_name":     "commonName",
	"scientificname":  "scientificName",
	"scientific_name": "scientificName",
	"count":           "count",
	"notes":           "notes",
	"comments":        "notes",
	"tripname":        "tripName",
	"trip_name":       "tripName",
	"trip":            "tripName",
}

const (
	colSightingID     = "sightingId"
	colDate           = "date"
	colLongitude      = "longitude"
	colLatitude       = "latitude"
	colCommonName     = "commonName"
	colScientificName = "scientificName"
	colCount          = "count"
	colNotes          = "notes"
	colTripName       = "tripName"
)

// mandatoryColumns lists the header names that MUST be present for an
// upload to proceed.
var mandatoryColumns = []string{colSightingID, colDate, colLongitude, colLatitude, colCommonName}

// NewColumnMap builds a ColumnMap from a header row, normalising known
// aliases. Returns the list of missing mandatory column names (empty if the
// header is complete).
func NewColumnMap(header []string) (ColumnMap, []string) {
	cm := ColumnMap{-1, -1, -1, -1, -1, -1, -1, -1, -1}
	indices := make(map[string]int, len(header))

	for i, raw := range header {
		key := strings.ToLower(strings.TrimSpace(raw))
		canonical, ok := headerAliases[key]
		if !ok {
			continue
		}
		if _, exists := indices[canonical]; exists {
			continue // keep first occurrence
		}
		indices[canonical] = i
	}

	assign := func(name string) int {
		if idx, ok := indices[name]; ok {
			return idx
		}
		return -1
	}

	cm.SightingID = assign(colSightingID)
	cm.Date = assign(colDate)
	cm.Longitude = assign(colLongitude)
	cm.Latitude = assign(colLatitude)
	cm.CommonName = assign(colCommonName)
	cm.ScientificName = assign(colScientificName)
	cm.Count = assign(colCount)
	cm.Notes = assign(colNotes)
	cm.TripName = assign(colTripName)

	var missing []string
	for _, name := range mandatoryColumns {
		if _, ok := indices[name]; !ok {
			missing = append(missing, name)
		}
	}

	return cm, missing
}
