// Package uploadsvc is the upload coordinator: it owns the upload lifecycle
// (ingest, replace, rename, delete), mints and verifies edit tokens, bumps
// data_version on every mutation, and fans out cache invalidation to the
// name-index and tile caches.
package uploadsvc

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"io"
	"log/slog"

	"github.com/redgrouse/backend/internal/apperror"
	"github.com/redgrouse/backend/internal/blocking"
	"github.com/redgrouse/backend/internal/csvingest"
	"github.com/redgrouse/backend/internal/geocoder"
	"github.com/redgrouse/backend/internal/ingest"
	"github.com/redgrouse/backend/internal/models"
	"github.com/redgrouse/backend/internal/read"
	"github.com/redgrouse/backend/internal/tiles"
)

// Invalidator groups the derived caches a mutation must flush; both are
// prefix-keyed on the upload id so a single call drops every entry.
type Invalidator interface {
	InvalidateUpload(uploadID string)
}

// Service coordinates the upload lifecycle over a write pool.
type Service struct {
	db        *sql.DB
	pipeline  *ingest.Pipeline
	nameIndex *read.NameIndexCache
	tileCache *tiles.Cache
	logger    *slog.Logger
}

// New constructs a Service. db is the write pool; nameIndex and tileCache may
// be nil if the caller has none to invalidate (e.g. isolated tests).
func New(db *sql.DB, geo *geocoder.Geocoder, pool *blocking.Pool, nameIndex *read.NameIndexCache, tileCache *tiles.Cache, logger *slog.Logger) *Service {
	return &Service{
		db:        db,
		pipeline:  ingest.NewPipeline(db, geo, pool, logger),
		nameIndex: nameIndex,
		tileCache: tileCache,
		logger:    logger,
	}
}

// IngestResult is returned from a successful create or replace.
type IngestResult struct {
	UploadID  string
	EditToken string
	RowCount  int
}

// Create ingests a brand-new upload: mints an id and edit token, inserts the
// upload row, runs the pipeline, and rolls the row back entirely on any
// ingest failure (structural limits, species resolution, DB errors).
func (s *Service) Create(ctx context.Context, filename string, r io.Reader) (IngestResult, error) {
	idText, idBlob := models.NewUUID()
	tokenText, tokenHash := mintEditToken()
	displayName := defaultDisplayName(filename)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (id, filename, display_name, edit_token_hash) VALUES (?, ?, ?, ?)`,
		idBlob, filename, displayName, tokenHash)
	if err != nil {
		return IngestResult{}, apperror.Internalf(err, "failed to create upload")
	}

	result, err := s.pipeline.Ingest(ctx, idBlob, r)
	if err != nil {
		s.rollbackUpload(ctx, idBlob)
		return IngestResult{}, err
	}

	return IngestResult{UploadID: idText, EditToken: tokenText, RowCount: result.RowCount}, nil
}

// Replace re-ingests uploadID from r under a verified edit token: the old
// sightings are dropped (cascade via the FK), data_version bumps, and both
// caches are invalidated for the id. On ingest failure the upload still
// exists but with zero rows — callers should surface this as a failed
// replace, not a missing upload.
func (s *Service) Replace(ctx context.Context, uploadIDText string, editToken string, filename string, r io.Reader) (IngestResult, error) {
	idBlob, err := s.authorize(ctx, uploadIDText, editToken)
	if err != nil {
		return IngestResult{}, err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM sightings WHERE upload_id = ?`, idBlob); err != nil {
		return IngestResult{}, apperror.Internalf(err, "failed to clear prior sightings")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tick_bitmaps WHERE upload_id = ?`, idBlob); err != nil {
		return IngestResult{}, apperror.Internalf(err, "failed to clear prior bitmaps")
	}

	result, err := s.pipeline.Ingest(ctx, idBlob, r)
	if err != nil {
		return IngestResult{}, err
	}

	if filename != "" {
		if _, err := s.db.ExecContext(ctx, `UPDATE uploads SET filename = ? WHERE id = ?`, filename, idBlob); err != nil {
			return IngestResult{}, apperror.Internalf(err, "failed to update filename")
		}
	}
	if err := s.bumpVersion(ctx, idBlob); err != nil {
		return IngestResult{}, err
	}

	s.invalidate(uploadIDText)
	return IngestResult{UploadID: uploadIDText, RowCount: result.RowCount}, nil
}

// Rename updates an upload's display name under a verified edit token and
// bumps data_version (metadata mutations count, per the replace-invalidation
// contract).
func (s *Service) Rename(ctx context.Context, uploadIDText, editToken, displayName string) error {
	idBlob, err := s.authorize(ctx, uploadIDText, editToken)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE uploads SET display_name = ? WHERE id = ?`, displayName, idBlob); err != nil {
		return apperror.Internalf(err, "failed to rename upload")
	}
	if err := s.bumpVersion(ctx, idBlob); err != nil {
		return err
	}
	s.invalidate(uploadIDText)
	return nil
}

// Delete cascade-deletes an upload (sightings, geo index rows and bitmaps go
// with it via FK cascade / explicit cleanup) under a verified edit token.
func (s *Service) Delete(ctx context.Context, uploadIDText, editToken string) error {
	idBlob, err := s.authorize(ctx, uploadIDText, editToken)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, idBlob); err != nil {
		return apperror.Internalf(err, "failed to delete upload")
	}
	s.invalidate(uploadIDText)
	return nil
}

// Metadata returns the public metadata for an upload, bumping
// last_accessed_at (retention-sweep bookkeeping, not a mutation for
// data_version purposes).
func (s *Service) Metadata(ctx context.Context, uploadIDText string) (models.Upload, error) {
	idBlob, err := models.ParseUUID(uploadIDText)
	if err != nil {
		return models.Upload{}, apperror.BadRequest("invalid upload id")
	}

	var u models.Upload
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, display_name, row_count, edit_token_hash, data_version FROM uploads WHERE id = ?`, idBlob)
	var idScan []byte
	if err := row.Scan(&idScan, &u.Filename, &u.DisplayName, &u.RowCount, &u.EditTokenHash, &u.DataVersion); err != nil {
		if err == sql.ErrNoRows {
			return models.Upload{}, apperror.NotFound("unknown upload")
		}
		return models.Upload{}, apperror.Internalf(err, "failed to load upload")
	}
	u.ID = uploadIDText

	_, _ = s.db.ExecContext(ctx, `UPDATE uploads SET last_accessed_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE id = ?`, idBlob)

	return u, nil
}

// Resolve parses uploadIDText and returns its id blob and current
// data_version without touching last_accessed_at — the lightweight lookup
// query-side handlers use to key the name-index cache.
func (s *Service) Resolve(ctx context.Context, uploadIDText string) (idBlob []byte, dataVersion int64, err error) {
	idBlob, err = models.ParseUUID(uploadIDText)
	if err != nil {
		return nil, 0, apperror.BadRequest("invalid upload id")
	}
	err = s.db.QueryRowContext(ctx, `SELECT data_version FROM uploads WHERE id = ?`, idBlob).Scan(&dataVersion)
	if err == sql.ErrNoRows {
		return nil, 0, apperror.NotFound("unknown upload")
	}
	if err != nil {
		return nil, 0, apperror.Internalf(err, "failed to load upload")
	}
	return idBlob, dataVersion, nil
}

// authorize resolves uploadIDText, verifies editToken against its stored
// hash in constant time, and returns the id blob. NotFound for an unknown
// id, Unauthorised for a missing token, Forbidden for a wrong one.
func (s *Service) authorize(ctx context.Context, uploadIDText, editToken string) ([]byte, error) {
	idBlob, err := models.ParseUUID(uploadIDText)
	if err != nil {
		return nil, apperror.BadRequest("invalid upload id")
	}
	if editToken == "" {
		return nil, apperror.Unauthorised("missing edit token")
	}

	var storedHash string
	err = s.db.QueryRowContext(ctx, `SELECT edit_token_hash FROM uploads WHERE id = ?`, idBlob).Scan(&storedHash)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("unknown upload")
	}
	if err != nil {
		return nil, apperror.Internalf(err, "failed to load upload")
	}

	if !tokenMatches(editToken, storedHash) {
		return nil, apperror.Forbidden("edit token does not match")
	}
	return idBlob, nil
}

func (s *Service) bumpVersion(ctx context.Context, idBlob []byte) error {
	_, err := s.db.ExecContext(ctx, `UPDATE uploads SET data_version = data_version + 1 WHERE id = ?`, idBlob)
	if err != nil {
		return apperror.Internalf(err, "failed to bump data version")
	}
	return nil
}

func (s *Service) rollbackUpload(ctx context.Context, idBlob []byte) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, idBlob); err != nil {
		s.logger.Error("failed to roll back partial upload", "error", err)
	}
}

func (s *Service) invalidate(uploadIDText string) {
	if s.nameIndex != nil {
		s.nameIndex.InvalidateUpload(uploadIDText)
	}
	if s.tileCache != nil {
		s.tileCache.InvalidateUpload(uploadIDText)
	}
}

func mintEditToken() (text string, hash string) {
	text, _ = models.NewUUID()
	return text, hashToken(text)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// tokenMatches compares token's hash against storedHash in constant time to
// avoid leaking the correct hash through response-time side channels.
func tokenMatches(token, storedHash string) bool {
	got := hashToken(token)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}

func defaultDisplayName(filename string) string {
	const suffix = ".csv"
	if len(filename) > len(suffix) && filename[len(filename)-len(suffix):] == suffix {
		return filename[:len(filename)-len(suffix)]
	}
	return filename
}

// ExtractUpload wraps a multipart/ZIP upload stream into a plain CSV reader,
// applying the 30s ZIP-decompression timeout at the call site via ctx.
func ExtractUpload(ctx context.Context, r io.ReaderAt, size int64, isZip bool) (io.ReadCloser, error) {
	if !isZip {
		return io.NopCloser(io.NewSectionReader(r, 0, size)), nil
	}
	type result struct {
		rc  io.ReadCloser
		err error
	}
	ch := make(chan result, 1)
	go func() {
		rc, err := csvingest.ExtractCSV(r, size)
		ch <- result{rc, err}
	}()
	select {
	case <-ctx.Done():
		return nil, apperror.Timeout("zip extraction timed out")
	case res := <-ch:
		return res.rc, res.err
	}
}
