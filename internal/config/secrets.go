package config

import (
	"errors"
	"strings"
)

var (
	ErrMissingTokenSecret = errors.New("TOKEN_SECRET is required")
	ErrMissingCodeSecret  = errors.New("HMAC_VERIFICATION_CODE_SECRET is required")
)

// Secrets holds the token-signing key and the one-time-code HMAC key.
// The zero value is unusable; build it with NewSecrets.
type Secrets struct {
	token []byte
	code  []byte
}

func NewSecrets(tokenSecret, codeSecret string) (Secrets, error) {
	if strings.TrimSpace(tokenSecret) == "" {
		return Secrets{}, ErrMissingTokenSecret
	}
	if strings.TrimSpace(codeSecret) == "" {
		return Secrets{}, ErrMissingCodeSecret
	}
	return Secrets{
		token: []byte(tokenSecret),
		code:  []byte(codeSecret),
	}, nil
}

// TokenKey returns a copy of the session-token signing key.
func (s Secrets) TokenKey() []byte {
	return append([]byte(nil), s.token...)
}

// CodeKey returns a copy of the HMAC key used to fingerprint one-time codes.
func (s Secrets) CodeKey() []byte {
	return append([]byte(nil), s.code...)
}
