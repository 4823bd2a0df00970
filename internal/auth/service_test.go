package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sercop/facilitador-api/internal/logging"
	"github.com/sercop/facilitador-api/internal/user"
)

type testEnv struct {
	svc      *Service
	store    *memStore
	notifier *fakeNotifier
	attempts *fakeAttempts
}

func newTestEnv(t *testing.T, cfg ServiceConfig) *testEnv {
	t.Helper()
	store := newMemStore()
	notifier := &fakeNotifier{}
	attempts := newFakeAttempts()
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = time.Second
	}
	if cfg.MailTimeout == 0 {
		cfg.MailTimeout = time.Second
	}
	svc := NewService(store, NewBcryptHasher(4), notifier, attempts, logging.NewNop(), cfg)
	return &testEnv{svc: svc, store: store, notifier: notifier, attempts: attempts}
}

func (e *testEnv) registerVerified(t *testing.T, username, email, password string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.svc.Register(ctx, RegisterInput{Username: username, Email: email, Phone: "0999", Password: password})
	require.NoError(t, err)
	require.NoError(t, e.svc.VerifyCode(ctx, email, e.notifier.last().code))
}

func TestEndToEndScenario(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	ctx := context.Background()

	created, err := env.svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Phone: "0999", Password: "secret1"})
	require.NoError(t, err)
	assert.False(t, created.EmailVerified)

	row := env.store.byEmail("a@x.com")
	require.NotNil(t, row.VerificationCode)
	assert.Len(t, *row.VerificationCode, 6)
	assert.Nil(t, row.SessionToken)

	sent := env.notifier.last()
	assert.Equal(t, "a@x.com", sent.to)
	assert.Equal(t, *row.VerificationCode, sent.code)

	wrong := "000000"
	assert.ErrorIs(t, env.svc.VerifyCode(ctx, "a@x.com", wrong), ErrBadCode)
	assert.False(t, env.store.byEmail("a@x.com").EmailVerified)

	require.NoError(t, env.svc.VerifyCode(ctx, "a@x.com", sent.code))
	row = env.store.byEmail("a@x.com")
	assert.True(t, row.EmailVerified)
	assert.Nil(t, row.VerificationCode)

	res, err := env.svc.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Len(t, res.Token, 64)
	assert.Equal(t, "alice", res.Username)
	assert.Equal(t, "a@x.com", res.Email)

	identity, err := env.svc.Validate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, user.Identity{Username: "alice", Email: "a@x.com"}, *identity)

	_, wrongPassErr := env.svc.Login(ctx, "alice", "wrongpass")
	_, unknownErr := env.svc.Login(ctx, "nobody", "secret1")
	require.ErrorIs(t, wrongPassErr, ErrInvalidCredentials)
	require.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	assert.Equal(t, wrongPassErr.Error(), unknownErr.Error())
}

func TestLogin_TokenIsPermanent(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	env.registerVerified(t, "bob", "b@x.com", "hunter22")

	first, err := env.svc.Login(context.Background(), "bob", "hunter22")
	require.NoError(t, err)
	second, err := env.svc.Login(context.Background(), "  bob  ", "hunter22")
	require.NoError(t, err)

	assert.NotEmpty(t, first.Token)
	assert.Equal(t, first.Token, second.Token)
	assert.True(t, env.store.byEmail("b@x.com").RememberSession)
}

func TestLogin_UnverifiedIsForbiddenRegardlessOfPassword(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	_, err := env.svc.Register(context.Background(), RegisterInput{Username: "carol", Email: "c@x.com", Password: "pa55word"})
	require.NoError(t, err)

	for _, password := range []string{"pa55word", "not-it", ""} {
		_, err := env.svc.Login(context.Background(), "carol", password)
		assert.ErrorIs(t, err, ErrEmailNotVerified)
		assert.Equal(t, KindForbidden, KindOf(err))
	}
	assert.Nil(t, env.store.byEmail("c@x.com").SessionToken)
}

func TestLogin_EmptyPasswordOnVerifiedAccount(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	env.registerVerified(t, "erin", "e@x.com", "secret1")

	_, err := env.svc.Login(context.Background(), "erin", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, env.store.byEmail("e@x.com").SessionToken)
}

func TestLogin_InactiveAccountLooksUnknown(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	env.registerVerified(t, "dave", "d@x.com", "secret1")

	env.store.mu.Lock()
	for _, u := range env.store.users {
		u.Status = user.StatusInactive
	}
	env.store.mu.Unlock()

	_, err := env.svc.Login(context.Background(), "dave", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_StoreFailureIsInternal(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	env.store.failWith = errStoreDown

	_, err := env.svc.Login(context.Background(), "alice", "secret1")
	require.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestValidateAndMeAgree(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	env.registerVerified(t, "erin", "e@x.com", "secret1")
	res, err := env.svc.Login(context.Background(), "erin", "secret1")
	require.NoError(t, err)

	v, err := env.svc.Validate(context.Background(), res.Token)
	require.NoError(t, err)
	m, err := env.svc.Me(context.Background(), "  "+res.Token+"\n")
	require.NoError(t, err)
	assert.Equal(t, *v, *m)

	_, err = env.svc.Validate(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)
	_, err = env.svc.Me(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyCode_SucceedsExactlyOnce(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	_, err := env.svc.Register(context.Background(), RegisterInput{Username: "frank", Email: "f@x.com", Password: "secret1"})
	require.NoError(t, err)
	code := env.notifier.last().code

	require.NoError(t, env.svc.VerifyCode(context.Background(), "f@x.com", code))
	err = env.svc.VerifyCode(context.Background(), "f@x.com", code)
	assert.ErrorIs(t, err, ErrBadCode)
	assert.Equal(t, KindBadCode, KindOf(err))
}

func TestVerifyCode_UnknownEmail(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	err := env.svc.VerifyCode(context.Background(), "ghost@x.com", "123456")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestResendCode_InvalidatesPreviousCode(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	_, err := env.svc.Register(context.Background(), RegisterInput{Username: "gina", Email: "g@x.com", Password: "secret1"})
	require.NoError(t, err)
	old := env.notifier.last().code

	// retry until the fresh code differs; collisions are 1 in 900000
	var fresh string
	for i := 0; i < 5; i++ {
		require.NoError(t, env.svc.ResendCode(context.Background(), "g@x.com"))
		fresh = env.notifier.last().code
		if fresh != old {
			break
		}
	}
	require.NotEqual(t, old, fresh)
	assert.True(t, env.notifier.last().resend)

	assert.ErrorIs(t, env.svc.VerifyCode(context.Background(), "g@x.com", old), ErrBadCode)
	assert.NoError(t, env.svc.VerifyCode(context.Background(), "g@x.com", fresh))
}

func TestResendCode_Errors(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	assert.ErrorIs(t, env.svc.ResendCode(context.Background(), "ghost@x.com"), ErrUserNotFound)

	env.registerVerified(t, "hank", "h@x.com", "secret1")
	assert.ErrorIs(t, env.svc.ResendCode(context.Background(), "h@x.com"), ErrAlreadyVerified)

	env2 := newTestEnv(t, ServiceConfig{})
	_, err := env2.svc.Register(context.Background(), RegisterInput{Username: "ivy", Email: "i@x.com", Password: "secret1"})
	require.NoError(t, err)
	env2.notifier.err = errors.New("smtp 421")
	err = env2.svc.ResendCode(context.Background(), "i@x.com")
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestRegister_DuplicateEmailLeavesFirstUserUntouched(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	_, err := env.svc.Register(context.Background(), RegisterInput{Username: "jack", Email: "j@x.com", Phone: "111", Password: "secret1"})
	require.NoError(t, err)
	before := env.store.byEmail("j@x.com")

	_, err = env.svc.Register(context.Background(), RegisterInput{Username: "jack2", Email: "j@x.com", Phone: "222", Password: "other12"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.Equal(t, KindConflict, KindOf(err))

	after := env.store.byEmail("j@x.com")
	assert.Equal(t, before, after)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	_, err := env.svc.Register(context.Background(), RegisterInput{Username: "kate", Email: "k1@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = env.svc.Register(context.Background(), RegisterInput{Username: " kate ", Email: "k2@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegister_NotifierFailureIsInternalButUserPersists(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	env.notifier.err = errors.New("dial tcp: i/o timeout")

	_, err := env.svc.Register(context.Background(), RegisterInput{Username: "leo", Email: "l@x.com", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.NotNil(t, env.store.byEmail("l@x.com"))
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})

	tests := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{name: "missing username", in: RegisterInput{Email: "a@x.com", Password: "secret1"}, field: "username"},
		{name: "blank username", in: RegisterInput{Username: "   ", Email: "a@x.com", Password: "secret1"}, field: "username"},
		{name: "bad email", in: RegisterInput{Username: "a", Email: "not-an-email", Password: "secret1"}, field: "email"},
		{name: "display name email", in: RegisterInput{Username: "a", Email: "Alice <a@x.com>", Password: "secret1"}, field: "email"},
		{name: "short password", in: RegisterInput{Username: "a", Email: "a@x.com", Password: "123"}, field: "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Register(context.Background(), tt.in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, KindInvalid, KindOf(err))
		})
	}
	assert.Empty(t, env.notifier.sent)
}

func TestVerifyCode_ExpiresWhenTTLConfigured(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{CodeTTL: 10 * time.Minute})
	_, err := env.svc.Register(context.Background(), RegisterInput{Username: "mia", Email: "m@x.com", Password: "secret1"})
	require.NoError(t, err)
	code := env.notifier.last().code

	env.svc.codes.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	err = env.svc.VerifyCode(context.Background(), "m@x.com", code)
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.Equal(t, KindExpired, KindOf(err))
	assert.False(t, env.store.byEmail("m@x.com").EmailVerified)
}

func TestVerifyCode_AttemptLimit(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{MaxCodeAttempts: 3})
	_, err := env.svc.Register(context.Background(), RegisterInput{Username: "ned", Email: "n@x.com", Password: "secret1"})
	require.NoError(t, err)
	code := env.notifier.last().code

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, env.svc.VerifyCode(context.Background(), "n@x.com", "000000"), ErrBadCode)
	}
	err = env.svc.VerifyCode(context.Background(), "n@x.com", code)
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	// a resend starts a fresh window
	require.NoError(t, env.svc.ResendCode(context.Background(), "n@x.com"))
	assert.NoError(t, env.svc.VerifyCode(context.Background(), "n@x.com", env.notifier.last().code))
}

func TestVerifyCode_AttemptCounterDownFailsOpen(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{MaxCodeAttempts: 1})
	env.attempts.err = errors.New("redis down")
	_, err := env.svc.Register(context.Background(), RegisterInput{Username: "olga", Email: "o@x.com", Password: "secret1"})
	require.NoError(t, err)

	assert.ErrorIs(t, env.svc.VerifyCode(context.Background(), "o@x.com", "000000"), ErrBadCode)
	assert.NoError(t, env.svc.VerifyCode(context.Background(), "o@x.com", env.notifier.last().code))
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, ServiceConfig{})
	env.registerVerified(t, "pia", "p@x.com", "secret1")
	first, err := env.svc.Login(context.Background(), "pia", "secret1")
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(context.Background(), first.Token))
	_, err = env.svc.Validate(context.Background(), first.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, env.svc.Logout(context.Background(), first.Token), ErrInvalidToken)
	assert.ErrorIs(t, env.svc.Logout(context.Background(), " "), ErrMissingToken)

	second, err := env.svc.Login(context.Background(), "pia", "secret1")
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)
}
