package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/redgrouse/backend/internal/apperror"
	"github.com/redgrouse/backend/internal/read"
)

// Fields returns the static filterable/sortable field catalogue.
//
//	@Summary	List filterable fields
//	@Tags		Fields
//	@Produce	json
//	@Success	200	{object}	map[string][]models.FieldMeta
//	@Router		/api/fields [get]
func (h *Handlers) Fields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"fields": read.FieldCatalogue()})
}

// FieldValues returns up to 500 distinct values for a whitelisted field.
//
//	@Summary	List distinct values for a field
//	@Tags		Fields
//	@Produce	json
//	@Param		id		path		string	true	"Upload ID"
//	@Param		field	path		string	true	"Field name"
//	@Success	200		{object}	map[string][]string
//	@Router		/api/uploads/{id}/fields/{field} [get]
func (h *Handlers) FieldValues(w http.ResponseWriter, r *http.Request) {
	idText := chi.URLParam(r, "id")
	field := chi.URLParam(r, "field")

	idBlob, _, err := h.uploads.Resolve(r.Context(), idText)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	ctx, cancel := h.withDBTimeout(r.Context())
	defer cancel()
	values, err := read.DistinctValues(ctx, h.db.Read, idBlob, field)
	if err != nil {
		respondError(w, h.logger, apperror.Internalf(err, "failed to load distinct values"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": values})
}
