package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/redgrouse/backend/internal/apperror"
	"github.com/redgrouse/backend/internal/uploadsvc"
)

type uploadResponse struct {
	UploadID  string `json:"upload_id"`
	EditToken string `json:"edit_token,omitempty"`
	RowCount  int    `json:"row_count"`
}

type metadataResponse struct {
	UploadID    string `json:"upload_id"`
	Filename    string `json:"filename"`
	RowCount    int    `json:"row_count"`
	Title       string `json:"title"`
	DataVersion int64  `json:"data_version"`
}

// Upload ingests a new CSV or ZIP-wrapped CSV of sightings.
//
//	@Summary	Upload a sightings CSV
//	@Tags		Uploads
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		file	formData	file	true	"CSV or ZIP file"
//	@Success	200		{object}	uploadResponse
//	@Failure	400		{object}	errorBody
//	@Router		/upload [post]
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, h.logger, apperror.BadRequest("failed to parse multipart upload"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, h.logger, apperror.BadRequest("missing \"file\" field"))
		return
	}
	defer file.Close()

	reader, err := h.openUploadReader(r, file, header)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	defer reader.Close()

	var ticketEnd func()
	if h.limiter != nil {
		ticket, err := h.limiter.Begin(clientKey(r), time.Now())
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		started := time.Now()
		ticketEnd = func() { ticket.End(time.Since(started)) }
		defer ticketEnd()
	}

	result, err := h.uploads.Create(ctx, header.Filename, reader)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		UploadID:  result.UploadID,
		EditToken: result.EditToken,
		RowCount:  result.RowCount,
	})
}

// openUploadReader wraps file as a plain CSV stream, or extracts a single
// CSV member if the upload is a ZIP, bounded by the configured ZIP timeout.
// The caller already owns file and closes it separately; this only wraps a
// second reader in the ZIP case.
func (h *Handlers) openUploadReader(r *http.Request, file multipart.File, header *multipart.FileHeader) (io.ReadCloser, error) {
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		return io.NopCloser(file), nil
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.zipTimeout)
	defer cancel()
	return uploadsvc.ExtractUpload(ctx, file, header.Size, true)
}

// GetMetadata returns an upload's metadata.
//
//	@Summary	Get upload metadata
//	@Tags		Uploads
//	@Produce	json
//	@Param		id	path		string	true	"Upload ID"
//	@Success	200	{object}	metadataResponse
//	@Failure	404	{object}	errorBody
//	@Router		/api/uploads/{id} [get]
func (h *Handlers) GetMetadata(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta, err := h.uploads.Metadata(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, metadataResponse{
		UploadID:    meta.ID,
		Filename:    meta.Filename,
		RowCount:    meta.RowCount,
		Title:       meta.DisplayName,
		DataVersion: meta.DataVersion,
	})
}

// Replace swaps an upload's underlying CSV under a verified edit token,
// bumping its data_version.
//
//	@Summary	Replace an upload's data
//	@Tags		Uploads
//	@Security	BearerAuth
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		id		path		string	true	"Upload ID"
//	@Param		file	formData	file	true	"CSV or ZIP file"
//	@Success	200		{object}	uploadResponse
//	@Failure	401		{object}	errorBody
//	@Router		/api/uploads/{id} [put]
func (h *Handlers) Replace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	token := bearerToken(r)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, h.logger, apperror.BadRequest("failed to parse multipart upload"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, h.logger, apperror.BadRequest("missing \"file\" field"))
		return
	}
	defer file.Close()

	reader, err := h.openUploadReader(r, file, header)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	defer reader.Close()

	result, err := h.uploads.Replace(r.Context(), id, token, header.Filename, reader)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{UploadID: result.UploadID, RowCount: result.RowCount})
}

type renameRequest struct {
	Title string `json:"title"`
}

// Rename changes an upload's display title under a verified edit token.
//
//	@Summary	Rename an upload
//	@Tags		Uploads
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string			true	"Upload ID"
//	@Param		body	body		renameRequest	true	"New title"
//	@Success	200		{object}	map[string]string
//	@Failure	401		{object}	errorBody
//	@Router		/api/uploads/{id} [patch]
func (h *Handlers) Rename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	token := bearerToken(r)

	var body renameRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, h.logger, apperror.BadRequest("malformed JSON body"))
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		respondError(w, h.logger, apperror.BadRequest("title must not be empty"))
		return
	}

	if err := h.uploads.Rename(r.Context(), id, token, body.Title); err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"title": body.Title})
}

// Delete cascade-deletes an upload and its sightings under a verified edit
// token.
//
//	@Summary	Delete an upload
//	@Tags		Uploads
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Upload ID"
//	@Success	204
//	@Failure	401	{object}	errorBody
//	@Router		/api/uploads/{id} [delete]
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	token := bearerToken(r)

	if err := h.uploads.Delete(r.Context(), id, token); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// clientKey identifies the caller for the optional ingest limiter. RealIP
// middleware is expected to run first so this reflects the real client, not
// a proxy hop.
func clientKey(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return host
}
