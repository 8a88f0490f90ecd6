package services

import (
	"sanctuary/internal/crypto"
	"sanctuary/internal/models"
)

// EncryptionService seals journal text at rest. A nil *EncryptionService is
// valid and leaves entries untouched.
type EncryptionService struct {
	cipher *crypto.Cipher
}

// NewEncryptionService returns nil when key is empty.
func NewEncryptionService(key []byte) (*EncryptionService, error) {
	if len(key) == 0 {
		return nil, nil
	}
	c, err := crypto.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &EncryptionService{cipher: c}, nil
}

// EncryptEntry encrypts title and content, binding both to the owner.
func (s *EncryptionService) EncryptEntry(e *models.JournalEntry) error {
	if s == nil {
		return nil
	}
	title, err := s.cipher.Seal(e.Title, e.UserID)
	if err != nil {
		return err
	}
	content, err := s.cipher.Seal(e.Content, e.UserID)
	if err != nil {
		return err
	}
	e.Title, e.Content = title, content
	return nil
}

func (s *EncryptionService) DecryptEntry(e *models.JournalEntry) error {
	if s == nil {
		return nil
	}
	title, err := s.cipher.Open(e.Title, e.UserID)
	if err != nil {
		return err
	}
	content, err := s.cipher.Open(e.Content, e.UserID)
	if err != nil {
		return err
	}
	e.Title, e.Content = title, content
	return nil
}
