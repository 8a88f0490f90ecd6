package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"sanctuary/internal/apperr"
	"sanctuary/internal/auth"
	"sanctuary/internal/metrics"
	"sanctuary/internal/models"
	mw "sanctuary/internal/middleware"
)

// ErrBadCredentials covers both an unknown email and a wrong password.
var ErrBadCredentials = apperr.Authentication("Incorrect email or password")

// Passwords hashes new passwords and checks login attempts.
type Passwords interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hashed string) bool
	VerifyMissing(plaintext string) bool
}

type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type AuthHandler struct {
	users   UserRepository
	hasher  Passwords
	tokens  *auth.TokenAuthority
	metrics metrics.Recorder
	logger  *zap.Logger
}

func NewAuthHandler(users UserRepository, hasher Passwords, tokens *auth.TokenAuthority, rec metrics.Recorder, logger *zap.Logger) *AuthHandler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &AuthHandler{users: users, hasher: hasher, tokens: tokens, metrics: rec, logger: logger}
}

// Register godoc
// @Summary Register a new account
// @Tags auth
// @Accept json
// @Produce json
// @Param user body registerRequest true "Account details"
// @Success 201 {object} map[string]string "message and user_id"
// @Failure 400 {object} mw.ErrorResponse
// @Failure 409 {object} mw.ErrorResponse "Email already registered"
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.metrics.RecordAuthAttempt("register", "invalid")
		fail(h.logger, w, r, err)
		return
	}

	hashed, err := h.hasher.Hash(req.Password)
	if err != nil {
		h.metrics.RecordAuthAttempt("register", "invalid")
		fail(h.logger, w, r, err)
		return
	}

	u := &models.User{
		Email:        req.Email,
		PasswordHash: hashed,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	}
	if err := h.users.Create(r.Context(), u); err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			h.metrics.RecordAuthAttempt("register", "conflict")
		}
		fail(h.logger, w, r, err)
		return
	}

	h.metrics.RecordAuthAttempt("register", "success")
	h.logger.Info("user registered", zap.String("user_id", u.ID))
	mw.WriteJSON(w, http.StatusCreated, map[string]string{
		"message": "User created successfully",
		"user_id": u.ID,
	})
}

// Login godoc
// @Summary Exchange credentials for a bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body loginRequest true "Email and password"
// @Success 200 {object} loginResponse
// @Failure 401 {object} mw.ErrorResponse "Incorrect email or password"
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.metrics.RecordAuthAttempt("login", "invalid")
		fail(h.logger, w, r, err)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			h.hasher.VerifyMissing(req.Password)
			h.metrics.RecordAuthAttempt("login", "invalid_credentials")
			fail(h.logger, w, r, ErrBadCredentials)
			return
		}
		fail(h.logger, w, r, err)
		return
	}
	if !h.hasher.Verify(req.Password, user.PasswordHash) {
		h.metrics.RecordAuthAttempt("login", "invalid_credentials")
		fail(h.logger, w, r, ErrBadCredentials)
		return
	}

	token, _, err := h.tokens.Issue(user.Email, 0)
	if err != nil {
		fail(h.logger, w, r, apperr.Internal("could not issue token", err))
		return
	}

	h.metrics.RecordAuthAttempt("login", "success")
	mw.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        ToUserDTO(*user),
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
