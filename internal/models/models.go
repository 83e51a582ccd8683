// Package models holds the data-model types shared across the ingestion and
// read paths: uploads, species, sightings, and the derived artifacts built on
// top of them.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Upload is one ingested CSV dataset.
type Upload struct {
	ID             string    `json:"upload_id"`
	Filename       string    `json:"filename"`
	DisplayName    string    `json:"title"`
	RowCount       int       `json:"row_count"`
	EditTokenHash  string    `json:"-"`
	DataVersion    int64     `json:"data_version"`
	LastAccessedAt time.Time `json:"-"`
}

// Species is a stable (common, scientific) name pair, shared across uploads.
type Species struct {
	ID             int64  `json:"id"`
	CommonName     string `json:"common_name"`
	ScientificName string `json:"scientific_name"`
}

// ParsedSighting is what the CSV parser emits: raw fields, not yet geocoded
// or assigned a species id.
type ParsedSighting struct {
	SightingUUID   string
	ObservedAt     string
	Longitude      float64
	Latitude       float64
	CommonName     string
	ScientificName string
	Count          int
	Notes          *string
	TripName       *string
	RowNumber      int
}

// ProcessedSighting is a ParsedSighting after geocoding, ready for species
// resolution and tick-flag derivation.
type ProcessedSighting struct {
	ParsedSighting
	CountryCode string
	RegionCode  *string
	Year        int
}

// Sighting is a fully derived, persisted row.
type Sighting struct {
	ID            int64
	UploadID      []byte
	SightingUUID  []byte
	SpeciesID     int64
	Count         int
	Latitude      float64
	Longitude     float64
	CountryCode   string
	RegionCode    *string
	ObservedAt    string
	Year          int
	Lifer         bool
	YearTick      bool
	CountryTick   bool
	VisRank       int
	Notes         *string
	TripName      *string
}

// BitmapType enumerates the three kinds of tick bitmap the spec defines.
type BitmapType string

const (
	BitmapLifer   BitmapType = "lifer"
	BitmapYear    BitmapType = "year_tick"
	BitmapCountry BitmapType = "country_tick"
)

// MaxVisRank is the sentinel "always visible regardless of zoom" threshold.
const MaxVisRank = 10000

// NameIndexEntry is one row of the per-upload species name index returned
// alongside every sightings response.
type NameIndexEntry struct {
	Common     string `json:"common_name"`
	Scientific string `json:"scientific_name"`
}

// NameIndex is the full per-(upload, data_version) species name catalogue.
type NameIndex struct {
	Entries  []NameIndexEntry
	BySpecID map[int64]int
}

// FieldMeta describes one queryable/filterable field for the field-metadata
// catalogue endpoint.
type FieldMeta struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// ParseUUID decodes a canonical UUID string into the 16-byte form the row
// store persists. The upload service reports a malformed upload id as
// apperror.BadRequest; the ingest sink skips a CSV row whose sighting id is
// malformed.
func ParseUUID(s string) ([]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid uuid %q: %w", s, err)
	}
	b := id
	return b[:], nil
}

// FormatUUID renders a 16-byte blob back into its canonical string form.
func FormatUUID(b []byte) (string, error) {
	id, err := uuid.FromBytes(b)
	if err != nil {
		return "", fmt.Errorf("invalid uuid blob: %w", err)
	}
	return id.String(), nil
}

// NewUUID mints a fresh random UUID, both as a string and as its 16-byte
// form, for server-minted ids (uploads, edit tokens).
func NewUUID() (text string, blob []byte) {
	id := uuid.New()
	return id.String(), id[:]
}
