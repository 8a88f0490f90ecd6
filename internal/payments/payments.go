// Package payments drives hosted checkout sessions and reconciles the
// provider's signed webhook callbacks against local state.
package payments

import (
	"context"
	"math"

	"sanctuary/internal/apperr"
	"sanctuary/internal/models"
)

var (
	ErrPaymentsUnavailable = apperr.Unavailable("Payment processing not configured")
	ErrNoProducts          = apperr.NotFound("No products found")
	ErrCreateSession       = apperr.Dependency("Unable to create checkout session", nil)
	ErrSessionNotFound     = apperr.NotFound("Session not found")
	ErrMissingSignature    = apperr.Validation("Missing signature")
	ErrInvalidSignature    = apperr.Validation("Invalid signature")
	ErrInvalidPayload      = apperr.Validation("Invalid payload")
)

// LineItem is one product in a session, always bought once.
type LineItem struct {
	Name        string
	Description string
	UnitAmount  int64
	Quantity    int64
}

// SessionRequest is everything the provider needs to host a checkout page.
type SessionRequest struct {
	LineItems         []LineItem
	Currency          string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
	ClientReferenceID string
	CustomerEmail     string
}

// Session is the provider's view of a checkout session.
type Session struct {
	ID            string
	URL           string
	PaymentStatus string
	Status        string
	AmountTotal   int64
	Currency      string
	Metadata      map[string]string
}

// Status is what callers polling a session get back.
type Status struct {
	PaymentStatus string `json:"payment_status"`
	Status        string `json:"status"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
}

// CheckoutProvider hosts checkout sessions.
type CheckoutProvider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
}

// SignatureVerifier authenticates a webhook body against its signature header.
type SignatureVerifier interface {
	Verify(payload []byte, header string) error
}

type Catalog interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Product, error)
}

// Ledger applies a fulfillment at most once per session id.
type Ledger interface {
	Apply(ctx context.Context, f *models.Fulfillment) (bool, error)
}

type Buyers interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// MinorUnits converts a price in major currency units to minor units,
// rounding to the nearest unit.
func MinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}
