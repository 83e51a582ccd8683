// Package species resolves (common_name, scientific_name) pairs to stable
// integer ids, deduplicating across uploads. Concurrent ingests resolving
// the same new species converge on a single id via the database's unique
// constraint rather than any in-process locking.
package species

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/redgrouse/backend/internal/apperror"
)

// Key identifies a species by its name pair.
type Key struct {
	Common     string
	Scientific string
}

// maxBoundVars is the engine's bound-parameter ceiling; batches are sized to
// stay comfortably under it (2 columns per pair in the SELECT/INSERT lists).
const maxBoundVars = 999
const colsPerPair = 2
const maxPairsPerBatch = maxBoundVars / colsPerPair // 499

// Registry resolves species keys to ids against a row store, caching
// resolutions for the lifetime of a single ingest.
type Registry struct {
	db    *sql.DB
	cache map[Key]int64
}

// New returns a Registry backed by db, with an empty per-ingest cache.
func New(db *sql.DB) *Registry {
	return &Registry{db: db, cache: make(map[Key]int64)}
}

// Resolve returns species ids for every key, batching database round trips
// by maxPairsPerBatch and performing the three-phase
// SELECT / INSERT-ON-CONFLICT-DO-NOTHING-RETURNING / SELECT protocol for any
// keys not already known.
func (r *Registry) Resolve(ctx context.Context, keys []Key) (map[Key]int64, error) {
	out := make(map[Key]int64, len(keys))
	var unresolved []Key

	for _, k := range dedupe(keys) {
		if id, ok := r.cache[k]; ok {
			out[k] = id
			continue
		}
		unresolved = append(unresolved, k)
	}
	if len(unresolved) == 0 {
		return out, nil
	}

	for start := 0; start < len(unresolved); start += maxPairsPerBatch {
		end := start + maxPairsPerBatch
		if end > len(unresolved) {
			end = len(unresolved)
		}
		batch := unresolved[start:end]

		resolved, err := r.resolveBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		for k, id := range resolved {
			r.cache[k] = id
			out[k] = id
		}
	}

	for _, k := range unresolved {
		if _, ok := out[k]; !ok {
			return nil, apperror.Internal(fmt.Errorf("species key %+v unresolved after three phases", k))
		}
	}

	return out, nil
}

func (r *Registry) resolveBatch(ctx context.Context, batch []Key) (map[Key]int64, error) {
	result := make(map[Key]int64, len(batch))

	// Phase 1: SELECT existing ids.
	if err := r.selectExisting(ctx, batch, result); err != nil {
		return nil, apperror.Internalf(err, "failed to resolve species")
	}

	missing := missingKeys(batch, result)
	if len(missing) == 0 {
		return result, nil
	}

	// Phase 2: INSERT ON CONFLICT DO NOTHING RETURNING.
	if err := r.insertNew(ctx, missing, result); err != nil {
		return nil, apperror.Internalf(err, "failed to insert new species")
	}

	missing = missingKeys(batch, result)
	if len(missing) == 0 {
		return result, nil
	}

	// Phase 3: final SELECT sweep to pick up ids inserted concurrently by a
	// racing ingest that won the conflict.
	if err := r.selectExisting(ctx, missing, result); err != nil {
		return nil, apperror.Internalf(err, "failed final species sweep")
	}

	return result, nil
}

func (r *Registry) selectExisting(ctx context.Context, keys []Key, into map[Key]int64) error {
	if len(keys) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, common_name, scientific_name FROM species WHERE ")
	args := make([]any, 0, len(keys)*2)
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("(common_name = ? AND scientific_name = ?)")
		args = append(args, k.Common, k.Scientific)
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var common, scientific string
		if err := rows.Scan(&id, &common, &scientific); err != nil {
			return err
		}
		into[Key{Common: common, Scientific: scientific}] = id
	}
	return rows.Err()
}

func (r *Registry) insertNew(ctx context.Context, keys []Key, into map[Key]int64) error {
	for _, k := range keys {
		row := r.db.QueryRowContext(ctx,
			`INSERT INTO species (common_name, scientific_name) VALUES (?, ?)
			 ON CONFLICT (common_name, scientific_name) DO NOTHING
			 RETURNING id`,
			k.Common, k.Scientific)

		var id int64
		switch err := row.Scan(&id); err {
		case nil:
			into[k] = id
		case sql.ErrNoRows:
			// Another ingest won the conflict; phase 3 picks it up.
		default:
			return err
		}
	}
	return nil
}

func dedupe(keys []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func missingKeys(all []Key, resolved map[Key]int64) []Key {
	var missing []Key
	for _, k := range all {
		if _, ok := resolved[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}
