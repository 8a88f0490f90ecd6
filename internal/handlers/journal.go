package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"sanctuary/internal/apperr"
	"sanctuary/internal/auth"
	mw "sanctuary/internal/middleware"
	"sanctuary/internal/models"
	"sanctuary/internal/services"
)

// JournalRepository stores entries scoped to their owner.
type JournalRepository interface {
	Create(ctx context.Context, ownerID string, f models.EntryFields) (*models.JournalEntry, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]models.JournalEntry, error)
	Get(ctx context.Context, ownerID, id string) (*models.JournalEntry, error)
	Update(ctx context.Context, ownerID, id string, f models.EntryFields) error
	Delete(ctx context.Context, ownerID, id string) error
}

type JournalHandler struct {
	entries   JournalRepository
	sanitizer *services.EntrySanitizer
	logger    *zap.Logger
}

func NewJournalHandler(entries JournalRepository, sanitizer *services.EntrySanitizer, logger *zap.Logger) *JournalHandler {
	return &JournalHandler{entries: entries, sanitizer: sanitizer, logger: logger}
}

// Create godoc
// @Summary Create a journal entry
// @Tags journal
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param entry body entryRequest true "Entry"
// @Success 201 {object} map[string]string "message and entry_id"
// @Failure 400 {object} mw.ErrorResponse
// @Router /journal/entries [post]
func (h *JournalHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner := mustCaller(r)
	fields, err := h.readEntry(w, r)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}

	entry, err := h.entries.Create(r.Context(), owner.ID, fields)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	mw.WriteJSON(w, http.StatusCreated, map[string]string{
		"message":  "Journal entry created successfully",
		"entry_id": entry.ID,
	})
}

// List godoc
// @Summary List the caller's journal entries, newest first
// @Tags journal
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Entries to skip"
// @Success 200 {array} EntryDTO
// @Router /journal/entries [get]
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := mustCaller(r)
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	offset, err := queryInt(q.Get("offset"), "offset")
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}

	entries, err := h.entries.List(r.Context(), owner.ID, limit, offset)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	out := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, ToEntryDTO(e))
	}
	mw.WriteJSON(w, http.StatusOK, out)
}

// Get godoc
// @Summary Get one journal entry
// @Tags journal
// @Produce json
// @Security BearerAuth
// @Param entryID path string true "Entry id"
// @Success 200 {object} EntryDTO
// @Failure 404 {object} mw.ErrorResponse "Journal entry not found"
// @Router /journal/entries/{entryID} [get]
func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner := mustCaller(r)
	entry, err := h.entries.Get(r.Context(), owner.ID, chi.URLParam(r, "entryID"))
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	mw.WriteJSON(w, http.StatusOK, ToEntryDTO(*entry))
}

// Update godoc
// @Summary Replace a journal entry's fields
// @Tags journal
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param entryID path string true "Entry id"
// @Param entry body entryRequest true "Entry"
// @Success 200 {object} messageResponse
// @Failure 404 {object} mw.ErrorResponse "Journal entry not found"
// @Router /journal/entries/{entryID} [put]
func (h *JournalHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner := mustCaller(r)
	fields, err := h.readEntry(w, r)
	if err != nil {
		fail(h.logger, w, r, err)
		return
	}
	if err := h.entries.Update(r.Context(), owner.ID, chi.URLParam(r, "entryID"), fields); err != nil {
		fail(h.logger, w, r, err)
		return
	}
	mw.WriteJSON(w, http.StatusOK, messageResponse{Message: "Journal entry updated successfully"})
}

// Delete godoc
// @Summary Delete a journal entry
// @Tags journal
// @Produce json
// @Security BearerAuth
// @Param entryID path string true "Entry id"
// @Success 200 {object} messageResponse
// @Failure 404 {object} mw.ErrorResponse "Journal entry not found"
// @Router /journal/entries/{entryID} [delete]
func (h *JournalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner := mustCaller(r)
	if err := h.entries.Delete(r.Context(), owner.ID, chi.URLParam(r, "entryID")); err != nil {
		fail(h.logger, w, r, err)
		return
	}
	mw.WriteJSON(w, http.StatusOK, messageResponse{Message: "Journal entry deleted successfully"})
}

func (h *JournalHandler) readEntry(w http.ResponseWriter, r *http.Request) (models.EntryFields, error) {
	var req entryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return models.EntryFields{}, err
	}
	fields := h.sanitizer.Sanitize(req.fields())
	if fields.Title == "" {
		return models.EntryFields{}, apperr.Validation("title is required")
	}
	return fields, nil
}

// mustCaller returns the user RequireAuth attached to the request.
func mustCaller(r *http.Request) *models.User {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		panic("journal handler mounted without RequireAuth")
	}
	return u
}

func queryInt(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.Validation(name + " must be a non-negative integer")
	}
	return n, nil
}
