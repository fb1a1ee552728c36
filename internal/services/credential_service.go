package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"kahaf/internal/models"
	"kahaf/internal/repositories"
	"kahaf/internal/utils"
)

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// CredentialService drives registration, login and the verification/recovery
// code lifecycle of a user record. It holds no per-user state of its own:
// every operation reads the record, re-checks its preconditions and writes
// it back, so concurrent requests resolve as last-write-wins.
type CredentialService struct {
	users  repositories.UserRepository
	hasher PasswordHasher
	codes  *CodeService
	tokens *TokenService
	mailer Mailer
	logger *slog.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewCredentialService(
	users repositories.UserRepository,
	hasher PasswordHasher,
	codes *CodeService,
	tokens *TokenService,
	mailer Mailer,
	logger *slog.Logger,
) (*CredentialService, error) {
	switch {
	case users == nil:
		return nil, errors.New("user repository is required")
	case hasher == nil:
		return nil, errors.New("password hasher is required")
	case codes == nil:
		return nil, errors.New("code service is required")
	case tokens == nil:
		return nil, errors.New("token service is required")
	case mailer == nil:
		return nil, errors.New("mailer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		users:  users,
		hasher: hasher,
		codes:  codes,
		tokens: tokens,
		mailer: mailer,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (s *CredentialService) Register(ctx context.Context, in RegisterInput) (*models.User, *Session, error) {
	const op = "register"
	email := normalizeEmail(in.Email)

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, s.finish(ctx, op, "", failed("REGISTER_FAILED", "find user by email", err))
	}
	if existing != nil {
		return nil, nil, s.finish(ctx, op, existing.ID, newError(KindConflict, msgEmailTaken))
	}

	hash, err := s.hashPassword("REGISTER_FAILED", in.Password)
	if err != nil {
		return nil, nil, s.finish(ctx, op, "", err)
	}

	now := s.now()
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Save(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			return nil, nil, s.finish(ctx, op, "", newError(KindConflict, msgEmailTaken))
		}
		return nil, nil, s.finish(ctx, op, user.ID, failed("REGISTER_FAILED", "save user", err))
	}

	session, err := s.tokens.Issue(user)
	if err != nil {
		return nil, nil, s.finish(ctx, op, user.ID, failed("REGISTER_FAILED", "issue token", err))
	}
	return user, session, s.finish(ctx, op, user.ID, nil)
}

// Login answers unknown e-mails and wrong passwords identically, and runs a
// bcrypt comparison in both cases so timing does not reveal which it was.
func (s *CredentialService) Login(ctx context.Context, email, password string) (*models.User, *Session, error) {
	const op = "login"

	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, nil, s.finish(ctx, op, "", failed("LOGIN_FAILED", "find user by email", err))
	}

	target := s.dummyPasswordHash()
	if user != nil {
		target = user.PasswordHash
	}
	ok := s.hasher.Verify(password, target)
	if user == nil || !ok {
		uid := ""
		if user != nil {
			uid = user.ID
		}
		return nil, nil, s.finish(ctx, op, uid, newError(KindUnauthorized, msgInvalidCredentials))
	}

	session, err := s.tokens.Issue(user)
	if err != nil {
		return nil, nil, s.finish(ctx, op, user.ID, failed("LOGIN_FAILED", "issue token", err))
	}
	return user, session, s.finish(ctx, op, user.ID, nil)
}

// Logout is stateless: tokens are not tracked server side, so the only
// effect is telling the transport to drop the session cookie.
func (s *CredentialService) Logout(ctx context.Context, claims *Claims) *Session {
	uid := ""
	if claims != nil {
		uid = claims.UserID
	}
	_ = s.finish(ctx, "logout", uid, nil)
	return &Session{Cleared: true}
}

func (s *CredentialService) SendVerificationCode(ctx context.Context, email string) error {
	const op = "send_verification_code"

	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return s.finish(ctx, op, "", failed("SEND_CODE_FAILED", "find user by email", err))
	}
	if user == nil {
		return s.finish(ctx, op, "", newError(KindNotFound, msgUserNotFound))
	}
	if user.Verified {
		return s.finish(ctx, op, user.ID, newError(KindConflict, msgAlreadyVerified))
	}

	hash, err := s.deliverCode(ctx, user.Email, VerificationCodeSubject, VerificationCodeEmail)
	if err != nil {
		return s.finish(ctx, op, user.ID, err)
	}

	user.SetVerificationCode(hash, s.now())
	if err := s.users.Save(ctx, user); err != nil {
		return s.finish(ctx, op, user.ID, failed("SEND_CODE_FAILED", "save user", err))
	}
	return s.finish(ctx, op, user.ID, nil)
}

func (s *CredentialService) VerifyVerificationCode(ctx context.Context, email, code string) error {
	const op = "verify_verification_code"

	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return s.finish(ctx, op, "", failed("VERIFY_CODE_FAILED", "find user by email", err))
	}
	if user == nil {
		return s.finish(ctx, op, "", newError(KindNotFound, msgUserNotFound))
	}
	if user.Verified {
		return s.finish(ctx, op, user.ID, newError(KindConflict, msgAlreadyVerified))
	}
	if !user.HasVerificationCode() {
		return s.finish(ctx, op, user.ID, newError(KindNotFound, msgNoVerificationCode))
	}

	if err := s.codes.Check(PurposeEmailVerification, code, *user.VerificationCodeHash, *user.VerificationCodeIssuedAt); err != nil {
		return s.finish(ctx, op, user.ID, codeError(err))
	}

	user.Verified = true
	user.ClearVerificationCode()
	if err := s.users.Save(ctx, user); err != nil {
		return s.finish(ctx, op, user.ID, failed("VERIFY_CODE_FAILED", "save user", err))
	}
	return s.finish(ctx, op, user.ID, nil)
}

func (s *CredentialService) SendForgotPasswordCode(ctx context.Context, email string) error {
	const op = "send_forgot_password_code"

	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return s.finish(ctx, op, "", failed("SEND_CODE_FAILED", "find user by email", err))
	}
	if user == nil {
		return s.finish(ctx, op, "", newError(KindNotFound, msgUserNotFound))
	}

	hash, err := s.deliverCode(ctx, user.Email, PasswordResetCodeSubject, PasswordResetCodeEmail)
	if err != nil {
		return s.finish(ctx, op, user.ID, err)
	}

	user.SetForgotPasswordCode(hash, s.now())
	if err := s.users.Save(ctx, user); err != nil {
		return s.finish(ctx, op, user.ID, failed("SEND_CODE_FAILED", "save user", err))
	}
	return s.finish(ctx, op, user.ID, nil)
}

// ResetPassword does not distinguish an unknown e-mail, a missing code and a
// wrong code: all three are Invalid.
func (s *CredentialService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	const op = "reset_password"

	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return s.finish(ctx, op, "", failed("RESET_PASSWORD_FAILED", "find user by email", err))
	}
	if user == nil {
		return s.finish(ctx, op, "", newError(KindInvalid, msgInvalidResetAttempt))
	}
	if !user.HasForgotPasswordCode() {
		return s.finish(ctx, op, user.ID, newError(KindInvalid, msgInvalidResetAttempt))
	}
	// до проверки кода: неподходящий пароль не должен доходить до hash
	if err := CheckPassword(newPassword); err != nil {
		return s.finish(ctx, op, user.ID, newError(KindInvalid, msgPasswordUnusable))
	}

	if err := s.codes.Check(PurposePasswordReset, code, *user.ForgotPasswordCodeHash, *user.ForgotPasswordCodeIssuedAt); err != nil {
		return s.finish(ctx, op, user.ID, codeError(err))
	}

	hash, err := s.hashPassword("RESET_PASSWORD_FAILED", newPassword)
	if err != nil {
		return s.finish(ctx, op, user.ID, err)
	}
	user.PasswordHash = hash
	user.PasswordVersion++
	user.ClearForgotPasswordCode()
	if err := s.users.Save(ctx, user); err != nil {
		return s.finish(ctx, op, user.ID, failed("RESET_PASSWORD_FAILED", "save user", err))
	}
	return s.finish(ctx, op, user.ID, nil)
}

// ChangePassword returns a fresh session: the password version bump makes
// the caller's current token stale.
func (s *CredentialService) ChangePassword(ctx context.Context, claims *Claims, oldPassword, newPassword string) (*Session, error) {
	const op = "change_password"

	user, err := s.sessionUser(ctx, claims)
	if err != nil {
		return nil, s.finish(ctx, op, claimsUserID(claims), err)
	}
	if !user.Verified {
		return nil, s.finish(ctx, op, user.ID, newError(KindForbidden, msgNotVerified))
	}
	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		return nil, s.finish(ctx, op, user.ID, newError(KindUnauthorized, msgWrongOldPassword))
	}

	hash, err := s.hashPassword("CHANGE_PASSWORD_FAILED", newPassword)
	if err != nil {
		return nil, s.finish(ctx, op, user.ID, err)
	}
	user.PasswordHash = hash
	user.PasswordVersion++
	if err := s.users.Save(ctx, user); err != nil {
		return nil, s.finish(ctx, op, user.ID, failed("CHANGE_PASSWORD_FAILED", "save user", err))
	}

	session, err := s.tokens.Issue(user)
	if err != nil {
		return nil, s.finish(ctx, op, user.ID, failed("CHANGE_PASSWORD_FAILED", "issue token", err))
	}
	return session, s.finish(ctx, op, user.ID, nil)
}

func (s *CredentialService) CurrentUser(ctx context.Context, claims *Claims) (*models.User, error) {
	user, err := s.sessionUser(ctx, claims)
	if err != nil {
		return nil, s.finish(ctx, "current_user", claimsUserID(claims), err)
	}
	return user, nil
}

// ListUsers is open to any current session, not only verified accounts.
func (s *CredentialService) ListUsers(ctx context.Context, claims *Claims) ([]*models.User, error) {
	const op = "list_users"

	caller, err := s.sessionUser(ctx, claims)
	if err != nil {
		return nil, s.finish(ctx, op, claimsUserID(claims), err)
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, s.finish(ctx, op, caller.ID, failed("LIST_USERS_FAILED", "list users", err))
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, s.finish(ctx, op, caller.ID, nil)
}

// sessionUser loads the caller's record and rejects tokens minted before the
// last password change.
func (s *CredentialService) sessionUser(ctx context.Context, claims *Claims) (*models.User, error) {
	if claims == nil || claims.UserID == "" {
		return nil, newError(KindUnauthorized, msgSessionStale)
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, failed("SESSION_LOOKUP_FAILED", "find user by id", err)
	}
	if user == nil {
		return nil, newError(KindNotFound, msgUserNotFound)
	}
	if claims.PasswordVersion != user.PasswordVersion {
		return nil, newError(KindUnauthorized, msgSessionStale)
	}
	return user, nil
}

// deliverCode mails a fresh code and returns its fingerprint. Nothing is
// persisted here: a failed delivery leaves the record untouched.
func (s *CredentialService) deliverCode(ctx context.Context, to, subject string, render func(string) string) (string, error) {
	code, err := s.codes.Generate()
	if err != nil {
		return "", failed("SEND_CODE_FAILED", "generate code", err)
	}

	receipt, err := s.mailer.Send(ctx, to, subject, render(code))
	if err != nil {
		return "", &Error{
			Kind:    KindFailed,
			Message: msgCodeSendFailed,
			Err:     errors.Join(ErrDeliveryFailed, oops.Code("MAIL_DELIVERY_FAILED").With("operation", "send mail").Wrap(err)),
		}
	}
	if !receipt.AcceptedFor(to) {
		return "", &Error{
			Kind:    KindFailed,
			Message: msgCodeSendFailed,
			Err:     errors.Join(ErrDeliveryFailed, oops.Code("MAIL_DELIVERY_FAILED").Errorf("recipient not accepted")),
		}
	}
	return s.codes.Fingerprint(code), nil
}

// hashPassword reports an unhashable password as Invalid rather than as a
// downstream failure.
func (s *CredentialService) hashPassword(code, password string) (string, error) {
	if err := CheckPassword(password); err != nil {
		return "", newError(KindInvalid, msgPasswordUnusable)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", failed(code, "hash password", err)
	}
	return hash, nil
}

// fallbackDummyHash is a cost-10 bcrypt digest of "allmine", used
// when a random dummy hash cannot be produced.
const fallbackDummyHash = "$2a$10$XajjQvNhvvRt5GSeFk1xFeyqRrsxkhBkUiQeg0dt.wU1qD4aFDcga"

func (s *CredentialService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash = fallbackDummyHash
		pw, err := utils.RandomHex(16)
		if err != nil {
			return
		}
		if h, err := s.hasher.Hash(pw); err == nil && h != "" {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func (s *CredentialService) finish(ctx context.Context, op, userID string, err error) error {
	attrs := []slog.Attr{
		slog.String("operation", op),
		slog.String("user_id", userID),
	}
	if err == nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "credential operation", append(attrs, slog.String("outcome", "ok"))...)
		return nil
	}

	kind := KindOf(err)
	attrs = append(attrs, slog.String("outcome", kind.String()))
	if kind == KindFailed {
		s.logger.LogAttrs(ctx, slog.LevelError, "credential operation", append(attrs, slog.Any("error", err))...)
	} else {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "credential operation", attrs...)
	}
	return err
}

func codeError(err error) error {
	if errors.Is(err, ErrCodeExpired) {
		return newError(KindExpired, msgCodeExpired)
	}
	return newError(KindInvalid, msgInvalidCode)
}

func claimsUserID(c *Claims) string {
	if c == nil {
		return ""
	}
	return c.UserID
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
