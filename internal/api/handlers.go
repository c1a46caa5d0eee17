package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/models"
	"github.com/starford/mnemo/internal/noteservice"
	"github.com/starford/mnemo/internal/transfer"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody(verr.Msg))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
	case errors.Is(err, apperr.ErrRemoteUnavailable):
		writeJSON(w, http.StatusBadGateway, errorBody("remote unavailable"))
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List cached notes, newest first
//	@Tags			notes
//	@Produce		json
//	@Param			tag	query		string	false	"Filter by exact tag name"
//	@Success		200	{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes := h.svc.ListNotes(r.Context(), session(r), r.URL.Query().Get("tag"))
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: len(notes)})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	models.Note
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.GetNote(r.Context(), session(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a note (local-first, synced in background)
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NoteRequest	true	"Note to create"
//	@Success		201		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json body"))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), session(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/{id}.
//
//	@Summary		Update a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Note id"
//	@Param			body	body		NoteRequest	true	"New note content"
//	@Success		200		{object}	models.Note
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json body"))
		return
	}
	note, err := h.svc.UpdateNote(r.Context(), session(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteNote(r.Context(), session(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RateNote handles PUT /api/notes/{id}/rating.
//
//	@Summary		Rate a note (ratings outside 0..5 are clamped)
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Note id"
//	@Param			body	body		RateRequest	true	"Rating"
//	@Success		200		{object}	models.Note
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/rating [put]
func (h *Handler) RateNote(w http.ResponseWriter, r *http.Request) {
	var req RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json body"))
		return
	}
	note, err := h.svc.RateNote(r.Context(), session(r), chi.URLParam(r, "id"), ratingValue(req.Rating))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// ratingValue coerces the decoded rating field: JSON numbers are
// truncated, numeric strings parsed, anything else counts as 0.
func ratingValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

// ListTags handles GET /api/tags.
//
//	@Summary		List tags sorted by name
//	@Tags			tags
//	@Produce		json
//	@Success		200	{object}	TagListResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags := h.svc.Tags(r.Context(), session(r))
	writeJSON(w, http.StatusOK, TagListResponse{Tags: tags, Total: len(tags)})
}

// CreateTag handles POST /api/tags.
//
//	@Summary		Create a tag (names unique per user, case-insensitive)
//	@Tags			tags
//	@Accept			json
//	@Produce		json
//	@Param			body	body		TagRequest	true	"Tag to create"
//	@Success		201		{object}	models.Tag
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags [post]
func (h *Handler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json body"))
		return
	}
	tag, err := h.svc.CreateTag(r.Context(), session(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

// DeleteTag handles DELETE /api/tags/{id}.
//
//	@Summary		Delete a tag
//	@Tags			tags
//	@Param			id	path	string	true	"Tag id"
//	@Success		204
//	@Security		BearerAuth
//	@Router			/tags/{id} [delete]
func (h *Handler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTag(r.Context(), session(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sync handles POST /api/sync.
//
//	@Summary		Replay queued writes, then rebuild the cache from remote
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	sess := session(r)
	if err := h.svc.SyncNow(r.Context(), sess); err != nil {
		writeError(w, err)
		return
	}
	resp := SyncResponse{Status: "ok"}
	if t, ok := h.svc.LastSync(sess); ok {
		resp.LastSync = t
	}
	writeJSON(w, http.StatusOK, resp)
}

// Import handles POST /api/import.
//
//	@Summary		Import a JSON array of notes
//	@Tags			transfer
//	@Accept			json
//	@Produce		json
//	@Param			overwrite	query		bool	false	"Replace notes with matching ids"
//	@Success		200			{object}	transfer.Report
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	items, err := transfer.ParseImport(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	overwrite, _ := strconv.ParseBool(r.URL.Query().Get("overwrite"))
	report := transfer.Import(r.Context(), session(r), h.svc, items, transfer.ImportOptions{Overwrite: overwrite})
	writeJSON(w, http.StatusOK, report)
}

// Export handles POST /api/export.
//
//	@Summary		Export notes (and optionally tags) as JSON
//	@Tags			transfer
//	@Produce		json
//	@Param			tags		query	bool	false	"Include tags and export metadata"
//	@Param			timestamps	query	bool	false	"Keep createdAt/updatedAt"
//	@Param			minified	query	bool	false	"Skip indentation"
//	@Success		200
//	@Security		BearerAuth
//	@Router			/export [post]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := transfer.ExportOptions{}
	opts.WithTags, _ = strconv.ParseBool(q.Get("tags"))
	opts.WithTimestamps, _ = strconv.ParseBool(q.Get("timestamps"))
	opts.Minified, _ = strconv.ParseBool(q.Get("minified"))

	sess := session(r)
	notes := h.svc.ListNotes(r.Context(), sess, "")
	tags := h.svc.Tags(r.Context(), sess)
	out, err := transfer.Export(notes, tags, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="mnemo-export.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// GetSettings handles GET /api/settings.
//
//	@Summary		Get user settings (defaults when the remote has none)
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	models.Settings
//	@Security		BearerAuth
//	@Router			/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Settings(r.Context(), session(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// PutSettings handles PUT /api/settings.
//
//	@Summary		Update user settings
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SettingsRequest	true	"New settings"
//	@Success		200		{object}	models.Settings
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings [put]
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json body"))
		return
	}
	sess := session(r)
	settings, err := h.svc.Settings(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.CardsPerSession > 0 {
		settings.CardsPerSession = req.CardsPerSession
	} else {
		settings.CardsPerSession = models.DefaultCardsPerSession
	}
	if err := h.svc.SaveSettings(r.Context(), sess, settings); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
