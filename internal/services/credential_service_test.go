package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"kahaf/internal/repositories"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var codePattern = regexp.MustCompile(`>(\d{6})<`)

// capturingMailer accepts every message and remembers the codes it carried.
type capturingMailer struct {
	mu    sync.Mutex
	codes []string
}

func (m *capturingMailer) Send(_ context.Context, to, _, body string) (*DeliveryReceipt, error) {
	match := codePattern.FindStringSubmatch(body)
	m.mu.Lock()
	defer m.mu.Unlock()
	if match != nil {
		m.codes = append(m.codes, match[1])
	}
	return &DeliveryReceipt{Accepted: []string{to}}, nil
}

func (m *capturingMailer) last(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.codes, "no code was mailed")
	return m.codes[len(m.codes)-1]
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, to, subject, body string) (*DeliveryReceipt, error) {
	args := m.Called(ctx, to, subject, body)
	receipt, _ := args.Get(0).(*DeliveryReceipt)
	return receipt, args.Error(1)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type engineFixture struct {
	svc    *CredentialService
	users  *repositories.MemoryUserRepository
	mailer *capturingMailer
	clock  *testClock
	tokens *TokenService
	codes  *CodeService
}

func newEngine(t *testing.T, mailer Mailer) *engineFixture {
	t.Helper()
	secrets := testSecrets(t)
	clock := &testClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}

	codes := NewCodeService(secrets)
	codes.now = clock.Now
	tokens := NewTokenService(secrets)
	tokens.now = clock.Now

	f := &engineFixture{
		users:  repositories.NewMemoryUserRepository(),
		clock:  clock,
		tokens: tokens,
		codes:  codes,
	}
	if mailer == nil {
		f.mailer = &capturingMailer{}
		mailer = f.mailer
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewCredentialService(f.users, NewPasswordHasher(), codes, tokens, mailer, logger)
	require.NoError(t, err)
	svc.now = clock.Now
	f.svc = svc
	return f
}

func (f *engineFixture) register(t *testing.T, email, password string) *Session {
	t.Helper()
	_, session, err := f.svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: email, Password: password})
	require.NoError(t, err)
	return session
}

func (f *engineFixture) verifiedUser(t *testing.T, email, password string) *Claims {
	t.Helper()
	ctx := context.Background()
	f.register(t, email, password)
	require.NoError(t, f.svc.SendVerificationCode(ctx, email))
	require.NoError(t, f.svc.VerifyVerificationCode(ctx, email, f.mailer.last(t)))

	_, session, err := f.svc.Login(ctx, email, password)
	require.NoError(t, err)
	claims, err := f.tokens.Verify(session.Token)
	require.NoError(t, err)
	return claims
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, KindOf(err), "got %v", err)
}

func TestNewCredentialService_RequiresDependencies(t *testing.T) {
	secrets := testSecrets(t)
	_, err := NewCredentialService(nil, NewPasswordHasher(), NewCodeService(secrets), NewTokenService(secrets), &capturingMailer{}, nil)
	assert.Error(t, err)
	_, err = NewCredentialService(repositories.NewMemoryUserRepository(), NewPasswordHasher(), NewCodeService(secrets), NewTokenService(secrets), nil, nil)
	assert.Error(t, err)
}

func TestRegister_IssuesUnverifiedSession(t *testing.T) {
	f := newEngine(t, nil)

	user, session, err := f.svc.Register(context.Background(), RegisterInput{
		Name: "Alice", Email: "alice@example.com", Password: "Str0ng!Pass",
	})
	require.NoError(t, err)
	assert.False(t, user.Verified)
	assert.NotEqual(t, "Str0ng!Pass", user.PasswordHash)
	assert.Equal(t, f.clock.Now().Add(SessionTTL), session.ExpiresAt)

	claims, err := f.tokens.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.False(t, claims.Verified)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestRegister_NormalizesEmailAndRejectsDuplicate(t *testing.T) {
	f := newEngine(t, nil)
	f.register(t, "  Alice@Example.com ", "Str0ng!Pass")

	stored, err := f.users.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored)

	_, _, err = f.svc.Register(context.Background(), RegisterInput{Name: "Other", Email: "alice@example.com", Password: "Str0ng!Pass"})
	assertKind(t, err, KindConflict)
	assert.Equal(t, 1, f.users.Len())
}

func TestLogin(t *testing.T) {
	f := newEngine(t, nil)
	f.register(t, "alice@example.com", "Str0ng!Pass")
	ctx := context.Background()

	user, session, err := f.svc.Login(ctx, "ALICE@example.com", "Str0ng!Pass")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEmpty(t, session.Token)

	_, _, wrongPwd := f.svc.Login(ctx, "alice@example.com", "Wr0ng!Pass")
	_, _, noUser := f.svc.Login(ctx, "nobody@example.com", "Str0ng!Pass")
	assertKind(t, wrongPwd, KindUnauthorized)
	assertKind(t, noUser, KindUnauthorized)
	assert.Equal(t, MessageOf(wrongPwd), MessageOf(noUser))
	assert.Equal(t, wrongPwd.Error(), noUser.Error())
}

func TestLogout_ClearsSession(t *testing.T) {
	f := newEngine(t, nil)
	s := f.svc.Logout(context.Background(), &Claims{UserID: "u-1"})
	assert.True(t, s.Cleared)
	assert.Empty(t, s.Token)
	assert.True(t, f.svc.Logout(context.Background(), nil).Cleared)
}

func TestVerificationFlow(t *testing.T) {
	f := newEngine(t, nil)
	ctx := context.Background()
	f.register(t, "alice@example.com", "Str0ng!Pass")

	require.NoError(t, f.svc.SendVerificationCode(ctx, "alice@example.com"))
	code := f.mailer.last(t)

	stored, err := f.users.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.True(t, stored.HasVerificationCode())
	assert.NotEqual(t, code, *stored.VerificationCodeHash)
	assert.Equal(t, f.codes.Fingerprint(code), *stored.VerificationCodeHash)

	f.clock.Advance(5 * time.Minute)
	assertKind(t, f.svc.VerifyVerificationCode(ctx, "alice@example.com", "000000"), KindInvalid)
	require.NoError(t, f.svc.VerifyVerificationCode(ctx, "alice@example.com", code))

	stored, err = f.users.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	assert.Nil(t, stored.VerificationCodeHash)
	assert.Nil(t, stored.VerificationCodeIssuedAt)

	assertKind(t, f.svc.SendVerificationCode(ctx, "alice@example.com"), KindConflict)
	assertKind(t, f.svc.VerifyVerificationCode(ctx, "alice@example.com", code), KindConflict)
}

func TestVerifyVerificationCode_ExpiredLeavesUserUnverified(t *testing.T) {
	f := newEngine(t, nil)
	ctx := context.Background()
	f.register(t, "alice@example.com", "Str0ng!Pass")

	require.NoError(t, f.svc.SendVerificationCode(ctx, "alice@example.com"))
	code := f.mailer.last(t)

	f.clock.Advance(11 * time.Minute)
	assertKind(t, f.svc.VerifyVerificationCode(ctx, "alice@example.com", code), KindExpired)

	stored, err := f.users.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, stored.Verified)
}

func TestVerifyVerificationCode_Preconditions(t *testing.T) {
	f := newEngine(t, nil)
	ctx := context.Background()

	assertKind(t, f.svc.VerifyVerificationCode(ctx, "nobody@example.com", "123456"), KindNotFound)
	assertKind(t, f.svc.SendVerificationCode(ctx, "nobody@example.com"), KindNotFound)

	f.register(t, "alice@example.com", "Str0ng!Pass")
	assertKind(t, f.svc.VerifyVerificationCode(ctx, "alice@example.com", "123456"), KindNotFound)
}

func TestSendVerificationCode_DeliveryFailureKeepsRecord(t *testing.T) {
	tests := []struct {
		name    string
		receipt *DeliveryReceipt
		err     error
	}{
		{"transport error", nil, errors.New("dial tcp: connection refused")},
		{"recipient not accepted", &DeliveryReceipt{Accepted: []string{"someone@else.com"}}, nil},
		{"empty receipt", &DeliveryReceipt{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &mockMailer{}
			mailer.On("Send", mock.Anything, "alice@example.com", VerificationCodeSubject, mock.AnythingOfType("string")).
				Return(tt.receipt, tt.err).Once()

			f := newEngine(t, mailer)
			f.register(t, "alice@example.com", "Str0ng!Pass")

			err := f.svc.SendVerificationCode(context.Background(), "alice@example.com")
			assertKind(t, err, KindFailed)
			assert.Equal(t, msgCodeSendFailed, MessageOf(err))
			assert.ErrorIs(t, err, ErrDeliveryFailed)

			stored, ferr := f.users.FindByEmail(context.Background(), "alice@example.com")
			require.NoError(t, ferr)
			assert.False(t, stored.HasVerificationCode())
			mailer.AssertExpectations(t)
		})
	}
}

func TestForgotPasswordFlow(t *testing.T) {
	f := newEngine(t, nil)
	ctx := context.Background()
	f.register(t, "alice@example.com", "Str0ng!Pass")

	require.NoError(t, f.svc.SendForgotPasswordCode(ctx, "alice@example.com"))
	code := f.mailer.last(t)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.svc.ResetPassword(ctx, "alice@example.com", code, "N3w!Passw0rd"))

	_, _, err := f.svc.Login(ctx, "alice@example.com", "Str0ng!Pass")
	assertKind(t, err, KindUnauthorized)
	_, _, err = f.svc.Login(ctx, "alice@example.com", "N3w!Passw0rd")
	require.NoError(t, err)

	stored, err := f.users.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, stored.HasForgotPasswordCode())
	assert.Equal(t, 1, stored.PasswordVersion)

	// the code is single use
	assertKind(t, f.svc.ResetPassword(ctx, "alice@example.com", code, "An0ther!Pass"), KindInvalid)
}

func TestResetPassword_Failures(t *testing.T) {
	f := newEngine(t, nil)
	ctx := context.Background()

	assertKind(t, f.svc.SendForgotPasswordCode(ctx, "nobody@example.com"), KindNotFound)
	assertKind(t, f.svc.ResetPassword(ctx, "nobody@example.com", "123456", "N3w!Passw0rd"), KindInvalid)

	f.register(t, "alice@example.com", "Str0ng!Pass")
	assertKind(t, f.svc.ResetPassword(ctx, "alice@example.com", "123456", "N3w!Passw0rd"), KindInvalid)

	require.NoError(t, f.svc.SendForgotPasswordCode(ctx, "alice@example.com"))
	code := f.mailer.last(t)
	assertKind(t, f.svc.ResetPassword(ctx, "alice@example.com", "000000", "N3w!Passw0rd"), KindInvalid)

	f.clock.Advance(2*time.Minute + time.Second)
	assertKind(t, f.svc.ResetPassword(ctx, "alice@example.com", code, "N3w!Passw0rd"), KindExpired)

	_, _, err := f.svc.Login(ctx, "alice@example.com", "Str0ng!Pass")
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	f := newEngine(t, nil)
	ctx := context.Background()
	claims := f.verifiedUser(t, "alice@example.com", "Str0ng!Pass")

	_, err := f.svc.ChangePassword(ctx, claims, "Wr0ng!Pass", "N3w!Passw0rd")
	assertKind(t, err, KindUnauthorized)

	session, err := f.svc.ChangePassword(ctx, claims, "Str0ng!Pass", "N3w!Passw0rd")
	require.NoError(t, err)

	_, _, err = f.svc.Login(ctx, "alice@example.com", "N3w!Passw0rd")
	require.NoError(t, err)

	// tokens minted before the change no longer work
	_, err = f.svc.CurrentUser(ctx, claims)
	assertKind(t, err, KindUnauthorized)
	_, err = f.svc.ChangePassword(ctx, claims, "N3w!Passw0rd", "Str0ng!Pass")
	assertKind(t, err, KindUnauthorized)

	fresh, err := f.tokens.Verify(session.Token)
	require.NoError(t, err)
	user, err := f.svc.CurrentUser(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestChangePassword_RequiresVerifiedUser(t *testing.T) {
	f := newEngine(t, nil)
	ctx := context.Background()
	session := f.register(t, "alice@example.com", "Str0ng!Pass")
	claims, err := f.tokens.Verify(session.Token)
	require.NoError(t, err)

	_, err = f.svc.ChangePassword(ctx, claims, "Str0ng!Pass", "N3w!Passw0rd")
	assertKind(t, err, KindForbidden)

	_, err = f.svc.ChangePassword(ctx, &Claims{UserID: "missing"}, "a", "b")
	assertKind(t, err, KindNotFound)
}

func TestConcurrentSendVerificationCode_LastWriteWins(t *testing.T) {
	f := newEngine(t, nil)
	ctx := context.Background()
	f.register(t, "alice@example.com", "Str0ng!Pass")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.SendVerificationCode(ctx, "alice@example.com"))
		}()
	}
	wg.Wait()

	stored, err := f.users.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.True(t, stored.HasVerificationCode())

	f.mailer.mu.Lock()
	sent := append([]string(nil), f.mailer.codes...)
	f.mailer.mu.Unlock()
	require.Len(t, sent, 2)

	matched := 0
	for _, c := range sent {
		if f.codes.Matches(c, *stored.VerificationCodeHash) {
			matched++
		}
	}
	assert.GreaterOrEqual(t, matched, 1)
	assert.False(t, stored.Verified)
}

func TestKindOf_UntypedErrorIsFailed(t *testing.T) {
	assert.Equal(t, KindFailed, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(0), KindOf(nil))
	assert.Equal(t, msgInternal, MessageOf(errors.New("boom")))
}

// failingHasher cannot produce digests; Verify still goes through bcrypt.
type failingHasher struct {
	PasswordHasher
	verified []string
}

func (h *failingHasher) Hash(string) (string, error) {
	return "", errors.New("entropy exhausted")
}

func (h *failingHasher) Verify(password, digest string) bool {
	h.verified = append(h.verified, digest)
	return h.PasswordHasher.Verify(password, digest)
}

func TestLogin_UnknownEmailStillComparesWhenDummyHashFails(t *testing.T) {
	secrets := testSecrets(t)
	hasher := &failingHasher{PasswordHasher: NewPasswordHasher()}
	svc, err := NewCredentialService(repositories.NewMemoryUserRepository(), hasher,
		NewCodeService(secrets), NewTokenService(secrets), &capturingMailer{},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), "nobody@example.com", "Str0ng!Pass")
	assertKind(t, err, KindUnauthorized)

	require.Len(t, hasher.verified, 1)
	assert.Equal(t, fallbackDummyHash, hasher.verified[0])
	assert.True(t, NewPasswordHasher().Verify("allmine", fallbackDummyHash))
}

func TestPasswordOverBcryptLimitIsInvalid(t *testing.T) {
	tooLong := "Aa1!" + strings.Repeat("€", 28) // 32 runes, 88 bytes
	ctx := context.Background()

	t.Run("register", func(t *testing.T) {
		f := newEngine(t, nil)
		_, _, err := f.svc.Register(ctx, RegisterInput{Name: "Alice", Email: "alice@example.com", Password: tooLong})
		assertKind(t, err, KindInvalid)
		assert.Equal(t, 0, f.users.Len())
	})

	t.Run("reset keeps the code", func(t *testing.T) {
		f := newEngine(t, nil)
		f.register(t, "alice@example.com", "Str0ng!Pass")
		require.NoError(t, f.svc.SendForgotPasswordCode(ctx, "alice@example.com"))
		code := f.mailer.last(t)

		assertKind(t, f.svc.ResetPassword(ctx, "alice@example.com", code, tooLong), KindInvalid)
		require.NoError(t, f.svc.ResetPassword(ctx, "alice@example.com", code, "N3w!Passw0rd"))
	})

	t.Run("change", func(t *testing.T) {
		f := newEngine(t, nil)
		claims := f.verifiedUser(t, "alice@example.com", "Str0ng!Pass")

		_, err := f.svc.ChangePassword(ctx, claims, "Str0ng!Pass", tooLong)
		assertKind(t, err, KindInvalid)

		_, _, err = f.svc.Login(ctx, "alice@example.com", "Str0ng!Pass")
		assert.NoError(t, err)
	})
}

func TestListUsers(t *testing.T) {
	f := newEngine(t, nil)
	ctx := context.Background()

	first := f.register(t, "alice@example.com", "Str0ng!Pass")
	f.clock.Advance(time.Second)
	f.register(t, "bob@example.com", "Str0ng!Pass")

	claims, err := f.tokens.Verify(first.Token)
	require.NoError(t, err)

	// неподтверждённой сессии тоже можно
	users, err := f.svc.ListUsers(ctx, claims)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice@example.com", users[0].Email)
	assert.Equal(t, "bob@example.com", users[1].Email)

	_, err = f.svc.ListUsers(ctx, nil)
	assertKind(t, err, KindUnauthorized)

	stale := *claims
	stale.PasswordVersion++
	_, err = f.svc.ListUsers(ctx, &stale)
	assertKind(t, err, KindUnauthorized)
}
