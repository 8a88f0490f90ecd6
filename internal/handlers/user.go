package handlers

import (
	"net/http"

	"sanctuary/internal/auth"
	mw "sanctuary/internal/middleware"
)

type UserHandler struct{}

func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// GetMe godoc
// @Summary Current user's profile
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserDTO
// @Failure 401 {object} mw.ErrorResponse
// @Router /auth/me [get]
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		mw.WriteError(w, auth.ErrCredentials)
		return
	}
	mw.WriteJSON(w, http.StatusOK, ToUserDTO(*u))
}
