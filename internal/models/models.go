package models

import "time"

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     *string   `db:"last_name" json:"last_name,omitempty"`
	IsPremium    bool      `db:"is_premium" json:"is_premium"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// JournalEntry belongs to exactly one user. Title and Content may hold
// ciphertext while in the store.
type JournalEntry struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Content   string    `db:"content" json:"content"`
	Mood      *string   `db:"mood" json:"mood,omitempty"`
	PromptID  *int      `db:"prompt_id" json:"prompt_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EntryFields are the mutable fields of a journal entry.
type EntryFields struct {
	Title    string
	Content  string
	Mood     *string
	PromptID *int
}

type Product struct {
	ID             string  `db:"id" json:"id"`
	Name           string  `db:"name" json:"name"`
	Description    string  `db:"description" json:"description"`
	Price          float64 `db:"price" json:"price"`
	Category       string  `db:"category" json:"category"`
	PreviewContent *string `db:"preview_content" json:"preview_content,omitempty"`
	FeaturedImage  string  `db:"featured_image" json:"featured_image"`
}

// Fulfillment records a checkout session whose side effects were applied.
type Fulfillment struct {
	SessionID   string    `db:"session_id" json:"session_id"`
	UserID      *string   `db:"user_id" json:"user_id,omitempty"`
	ProductIDs  string    `db:"product_ids" json:"product_ids"`
	AmountTotal int64     `db:"amount_total" json:"amount_total"`
	Currency    string    `db:"currency" json:"currency"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Bind sets the identity columns the scoped store owns.
func (e *JournalEntry) Bind(id, ownerID string) {
	e.ID = id
	e.UserID = ownerID
}

func (e *JournalEntry) Touch(created, updated time.Time) {
	if !created.IsZero() {
		e.CreatedAt = created
	}
	e.UpdatedAt = updated
}

// MutableValues lists the values of JournalEntryMutable in order.
func (e *JournalEntry) MutableValues() []any {
	return []any{e.Title, e.Content, e.Mood, e.PromptID}
}

// JournalEntryMutable are the columns replaced by an update.
var JournalEntryMutable = []string{"title", "content", "mood", "prompt_id"}

// Apply copies f onto the entry.
func (e *JournalEntry) Apply(f EntryFields) {
	e.Title = f.Title
	e.Content = f.Content
	e.Mood = f.Mood
	e.PromptID = f.PromptID
}
