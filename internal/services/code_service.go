package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"time"

	"kahaf/internal/config"
	"kahaf/internal/utils"
)

// CodePurpose selects the validity window of a one-time code.
type CodePurpose int

const (
	PurposeEmailVerification CodePurpose = iota + 1
	PurposePasswordReset
)

const (
	VerificationCodeTTL  = 10 * time.Minute
	PasswordResetCodeTTL = 2 * time.Minute // короче: код меняет пароль
)

func (p CodePurpose) Window() time.Duration {
	if p == PurposePasswordReset {
		return PasswordResetCodeTTL
	}
	return VerificationCodeTTL
}

var (
	ErrCodeExpired = errors.New("code expired")
	ErrCodeInvalid = errors.New("code invalid")
)

// CodeService generates one-time codes and derives their keyed fingerprints.
// Plaintext codes are never stored; only Fingerprint output is.
type CodeService struct {
	key  []byte
	rand io.Reader
	now  func() time.Time
}

func NewCodeService(secrets config.Secrets) *CodeService {
	return &CodeService{
		key: secrets.CodeKey(),
		now: time.Now,
	}
}

// Generate returns a fresh 6-digit code from a crypto-secure source.
func (s *CodeService) Generate() (string, error) {
	return utils.GenerateNumericCode(s.rand)
}

// Fingerprint is hex(HMAC-SHA256(key, code)).
func (s *CodeService) Fingerprint(code string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Matches compares the fingerprint of candidate with storedHash in constant time.
func (s *CodeService) Matches(candidate, storedHash string) bool {
	provided, err := hex.DecodeString(s.Fingerprint(candidate))
	if err != nil {
		return false
	}
	stored, err := hex.DecodeString(storedHash)
	if err != nil {
		return false
	}
	if len(provided) != len(stored) {
		return false
	}
	return subtle.ConstantTimeCompare(provided, stored) == 1
}

// Check applies the expiry window before comparing, so an expired code
// never matches no matter what was submitted.
func (s *CodeService) Check(purpose CodePurpose, candidate, storedHash string, issuedAt time.Time) error {
	if s.now().Sub(issuedAt) > purpose.Window() {
		return ErrCodeExpired
	}
	if !s.Matches(candidate, storedHash) {
		return ErrCodeInvalid
	}
	return nil
}
