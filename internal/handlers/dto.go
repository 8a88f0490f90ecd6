package handlers

import (
	"strings"
	"time"

	"sanctuary/internal/models"
)

// UserDTO is the public view of an account.
type UserDTO struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  *string `json:"last_name"`
	IsPremium bool    `json:"is_premium"`
	CreatedAt string  `json:"created_at,omitempty"`
}

func ToUserDTO(u models.User) UserDTO {
	dto := UserDTO{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsPremium: u.IsPremium,
	}
	if !u.CreatedAt.IsZero() {
		dto.CreatedAt = u.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

// EntryDTO is a journal entry as its owner sees it.
type EntryDTO struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Mood      *string   `json:"mood"`
	PromptID  *int      `json:"prompt_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func ToEntryDTO(e models.JournalEntry) EntryDTO {
	return EntryDTO{
		ID:        e.ID,
		Title:     e.Title,
		Content:   e.Content,
		Mood:      e.Mood,
		PromptID:  e.PromptID,
		CreatedAt: e.CreatedAt.UTC(),
		UpdatedAt: e.UpdatedAt.UTC(),
	}
}

type registerRequest struct {
	Email     string  `json:"email" validate:"required,email,max=254"`
	Password  string  `json:"password" validate:"required,max=72"`
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
}

func (r *registerRequest) normalize() {
	r.Email = normalizeEmail(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *loginRequest) normalize() { r.Email = normalizeEmail(r.Email) }

type loginResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	User        UserDTO `json:"user"`
}

type entryRequest struct {
	Title    string  `json:"title" validate:"required,max=200"`
	Content  string  `json:"content" validate:"max=50000"`
	Mood     *string `json:"mood" validate:"omitempty,max=50"`
	PromptID *int    `json:"prompt_id" validate:"omitempty,min=0"`
}

func (r entryRequest) fields() models.EntryFields {
	return models.EntryFields{Title: r.Title, Content: r.Content, Mood: r.Mood, PromptID: r.PromptID}
}

type messageResponse struct {
	Message string `json:"message"`
}
