package auth

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"sanctuary/internal/apperr"
)

var ErrPasswordTooLong = apperr.Validation("password must be at most 72 bytes")

// Hasher hashes and verifies passwords with bcrypt. The salt is generated per
// call and embedded in the output.
type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewHasher returns a Hasher using cost, or bcrypt.DefaultCost when cost is
// outside bcrypt's accepted range.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", apperr.Internal("could not hash password", err)
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches hashed. A malformed stored hash is
// a mismatch.
func (h *Hasher) Verify(plaintext, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)) == nil
}

// VerifyMissing does the work of a failed Verify for an account that does
// not exist, so lookups of unknown emails cost as much as wrong passwords.
// It always reports false.
func (h *Hasher) VerifyMissing(plaintext string) bool {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("no account has this password"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plaintext))
	return false
}
