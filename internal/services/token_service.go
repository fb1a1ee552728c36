package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kahaf/internal/config"
	"kahaf/internal/models"
)

const SessionTTL = 8 * time.Hour

// ErrInvalidToken is the single outcome of any failed token check: bad
// signature, wrong algorithm, malformed payload or expiry.
var ErrInvalidToken = errors.New("invalid or expired token")

type Claims struct {
	UserID          string `json:"userId"`
	Email           string `json:"email"`
	Verified        bool   `json:"verified"`
	PasswordVersion int    `json:"pwv"`
	jwt.RegisteredClaims
}

// Session is the artifact the HTTP layer turns into a cookie/header.
// A zero Token with Cleared set means "remove the session cookie".
type Session struct {
	Token     string
	ExpiresAt time.Time
	Cleared   bool
}

type TokenService struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewTokenService(secrets config.Secrets) *TokenService {
	return &TokenService{
		key: secrets.TokenKey(),
		ttl: SessionTTL,
		now: time.Now,
	}
}

// Issue signs an HS256 token for the user, valid for SessionTTL.
func (s *TokenService) Issue(user *models.User) (*Session, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.ttl)

	claims := &Claims{
		UserID:          user.ID,
		Email:           user.Email,
		Verified:        user.Verified,
		PasswordVersion: user.PasswordVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return nil, err
	}
	return &Session{Token: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks signature and expiry. It performs no I/O.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		// защита: принимаем только HMAC
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.key, nil
	})
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
