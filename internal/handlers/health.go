package handlers

import (
	"context"
	"net/http"
	"time"

	mw "sanctuary/internal/middleware"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db  Pinger
	now func() time.Time
}

// NewHealthHandler reports unhealthy while db does not answer. db may be nil.
func NewHealthHandler(db Pinger, now func() time.Time) *HealthHandler {
	if now == nil {
		now = time.Now
	}
	return &HealthHandler{db: db, now: now}
}

func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	mw.WriteJSON(w, http.StatusOK, messageResponse{Message: "Cosmic Sanctuary API is running"})
}

func (h *HealthHandler) APIRoot(w http.ResponseWriter, r *http.Request) {
	mw.WriteJSON(w, http.StatusOK, messageResponse{Message: "Welcome to the Cosmic Sanctuary API"})
}

// Health godoc
// @Summary Liveness and database reachability
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "healthy", "timestamp": h.now().UTC()}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			body["status"] = "unhealthy"
			mw.WriteJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	mw.WriteJSON(w, http.StatusOK, body)
}
