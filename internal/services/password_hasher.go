package services

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the fixed bcrypt work factor for stored credentials.
const PasswordCost = 10

// MaxPasswordBytes is bcrypt's input limit; longer passwords cannot be hashed.
const MaxPasswordBytes = 72

var (
	ErrEmptyPassword   = errors.New("password is required")
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
)

// CheckPassword reports whether password can be hashed at all.
func CheckPassword(password string) error {
	switch {
	case password == "":
		return ErrEmptyPassword
	case len(password) > MaxPasswordBytes:
		return ErrPasswordTooLong
	}
	return nil
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify reports whether password matches digest. A malformed digest is a mismatch.
	Verify(password, digest string) bool
}

type bcryptHasher struct {
	cost int
}

func NewPasswordHasher() PasswordHasher {
	return &bcryptHasher{cost: PasswordCost}
}

func (h *bcryptHasher) Hash(password string) (string, error) {
	if err := CheckPassword(password); err != nil {
		return "", err
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *bcryptHasher) Verify(password, digest string) bool {
	digest = strings.TrimSpace(digest)
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
