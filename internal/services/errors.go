package services

import (
	"errors"

	"github.com/samber/oops"
)

// ErrDeliveryFailed marks failures where the mail relay did not take a code.
var ErrDeliveryFailed = errors.New("mail delivery failed")

// Kind classifies every failure the credential engine reports.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindConflict
	KindUnauthorized
	KindForbidden
	KindExpired
	KindInvalid
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindExpired:
		return "expired"
	case KindInvalid:
		return "invalid"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Error is the only error type the engine returns. Message is safe to
// show to the caller; Err keeps the downstream cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// failed wraps a downstream error with the operation that hit it.
func failed(code, op string, err error) *Error {
	return &Error{
		Kind:    KindFailed,
		Message: msgInternal,
		Err:     oops.Code(code).With("operation", op).Wrap(err),
	}
}

// KindOf reports the kind of err; anything that is not an *Error is a
// downstream failure.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFailed
}

// MessageOf returns the caller-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return msgInternal
}

// Messages shown to callers. Login and code checks stay generic.
const (
	msgInternal            = "Something went wrong!"
	msgEmailTaken          = "User already exists with this email"
	msgInvalidCredentials  = "Invalid email or password"
	msgUserNotFound        = "User does not exists!"
	msgAlreadyVerified     = "You are already verified!"
	msgCodeSendFailed      = "Code sent failed!"
	msgNoVerificationCode  = "No verification code found, please request again."
	msgCodeExpired         = "Verification code expired!"
	msgInvalidCode         = "Invalid verification code."
	msgNotVerified         = "You are not a verified user!"
	msgSessionStale        = "Session is no longer valid, please log in again"
	msgWrongOldPassword    = "Invalid credentials!"
	msgInvalidResetAttempt = "Invalid or expired code."
	msgPasswordUnusable    = "Password must be 1-72 bytes long"
)
