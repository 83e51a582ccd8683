package read

import (
	"context"
	"database/sql"
	"sync"

	"github.com/redgrouse/backend/internal/models"
)

// IndexFor returns the position of speciesID in idx, or -1 if absent (never
// out of bounds — callers must treat -1 as "omit the field").
func IndexFor(idx *models.NameIndex, speciesID int64) int {
	if idx == nil {
		return -1
	}
	if pos, ok := idx.BySpecID[speciesID]; ok {
		return pos
	}
	return -1
}

type nameIndexKey struct {
	uploadID    string
	dataVersion int64
}

// NameIndexCache is a concurrent map keyed by (upload_id, data_version),
// implementing the "insert-or-get-if-raced" idiom: concurrent misses for the
// same key converge on a single built index rather than duplicating work.
type NameIndexCache struct {
	mu      sync.Mutex
	entries map[nameIndexKey]*nameIndexEntry
}

type nameIndexEntry struct {
	once  sync.Once
	index *models.NameIndex
	err   error
}

// NewNameIndexCache returns an empty cache.
func NewNameIndexCache() *NameIndexCache {
	return &NameIndexCache{entries: make(map[nameIndexKey]*nameIndexEntry)}
}

// Get returns the NameIndex for (uploadID, dataVersion), building it via
// build on a cache miss. Concurrent callers racing the same key block on the
// same build rather than each issuing their own query.
func (c *NameIndexCache) Get(ctx context.Context, uploadID string, dataVersion int64, build func(context.Context) (*models.NameIndex, error)) (*models.NameIndex, error) {
	key := nameIndexKey{uploadID: uploadID, dataVersion: dataVersion}

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &nameIndexEntry{}
		c.entries[key] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.index, entry.err = build(ctx)
	})
	return entry.index, entry.err
}

// InvalidateUpload drops every cached index for uploadID, regardless of
// data_version — called whenever an upload mutation is about to bump the
// version.
func (c *NameIndexCache) InvalidateUpload(uploadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.uploadID == uploadID {
			delete(c.entries, key)
		}
	}
}

// BuildNameIndex scans the distinct species referenced by an upload's
// sightings, in id order, and returns the ordered catalogue.
func BuildNameIndex(ctx context.Context, db *sql.DB, uploadID []byte) (*models.NameIndex, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT sp.id, sp.common_name, sp.scientific_name
		FROM species sp
		WHERE sp.id IN (SELECT DISTINCT species_id FROM sightings WHERE upload_id = ?)
		ORDER BY sp.id`, uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	idx := &models.NameIndex{BySpecID: make(map[int64]int)}
	for rows.Next() {
		var id int64
		var entry models.NameIndexEntry
		if err := rows.Scan(&id, &entry.Common, &entry.Scientific); err != nil {
			return nil, err
		}
		idx.BySpecID[id] = len(idx.Entries)
		idx.Entries = append(idx.Entries, entry)
	}
	return idx, rows.Err()
}
