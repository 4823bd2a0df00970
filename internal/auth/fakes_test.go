package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sercop/facilitador-api/internal/user"
)

// memStore is an in-memory UserStore with the same conditional-update
// semantics as the SQL repository.
type memStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
	now   func() time.Time

	// failWith, when set, is returned by every call.
	failWith error
}

func newMemStore() *memStore {
	return &memStore{users: map[uuid.UUID]*user.User{}, now: time.Now}
}

func (m *memStore) clone(u *user.User) *user.User {
	c := *u
	if u.VerificationCode != nil {
		v := *u.VerificationCode
		c.VerificationCode = &v
	}
	if u.SessionToken != nil {
		v := *u.SessionToken
		c.SessionToken = &v
	}
	return &c
}

func (m *memStore) find(match func(*user.User) bool) *user.User {
	for _, u := range m.users {
		if match(u) {
			return u
		}
	}
	return nil
}

func (m *memStore) Create(ctx context.Context, nu user.NewUser) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	if m.find(func(u *user.User) bool { return u.Email == nu.Email }) != nil {
		return nil, user.ErrDuplicateEmail
	}
	if m.find(func(u *user.User) bool { return u.Username == nu.Username }) != nil {
		return nil, user.ErrDuplicateUsername
	}
	now := m.now()
	code := nu.VerificationCode
	u := &user.User{
		ID:                 uuid.New(),
		Username:           nu.Username,
		Email:              nu.Email,
		PasswordHash:       nu.PasswordHash,
		Phone:              nu.Phone,
		Status:             user.StatusActive,
		VerificationCode:   &code,
		VerificationSentAt: &now,
		CreatedAt:          now,
	}
	m.users[u.ID] = u
	return m.clone(u), nil
}

func (m *memStore) GetActiveByUsername(ctx context.Context, username string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	u := m.find(func(u *user.User) bool { return u.Username == username && u.Status == user.StatusActive })
	if u == nil {
		return nil, user.ErrNotFound
	}
	return m.clone(u), nil
}

func (m *memStore) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	u := m.find(func(u *user.User) bool { return u.Email == email })
	if u == nil {
		return nil, user.ErrNotFound
	}
	return m.clone(u), nil
}

func (m *memStore) GetIdentityByToken(ctx context.Context, token string) (*user.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	u := m.find(func(u *user.User) bool { return u.SessionToken != nil && *u.SessionToken == token })
	if u == nil {
		return nil, user.ErrNotFound
	}
	id := u.Identity()
	return &id, nil
}

func (m *memStore) GetTokenByID(ctx context.Context, id uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return "", user.ErrNotFound
	}
	return u.CurrentToken(), nil
}

func (m *memStore) SetTokenIfNull(ctx context.Context, id uuid.UUID, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	u, ok := m.users[id]
	if !ok || u.SessionToken != nil {
		return false, nil
	}
	now := m.now()
	u.SessionToken = &token
	u.RememberSession = true
	u.LastAccess = &now
	return true, nil
}

func (m *memStore) UpdateVerificationCode(ctx context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	u := m.find(func(u *user.User) bool { return u.Email == email && !u.EmailVerified })
	if u == nil {
		return user.ErrNotFound
	}
	now := m.now()
	u.VerificationCode = &code
	u.VerificationSentAt = &now
	return nil
}

func (m *memStore) MarkEmailVerified(ctx context.Context, email, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	u := m.find(func(u *user.User) bool {
		return u.Email == email && u.VerificationCode != nil && *u.VerificationCode == code
	})
	if u == nil {
		return false, nil
	}
	u.EmailVerified = true
	u.VerificationCode = nil
	u.VerificationSentAt = nil
	return true, nil
}

func (m *memStore) ClearToken(ctx context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	u := m.find(func(u *user.User) bool { return u.SessionToken != nil && *u.SessionToken == token })
	if u == nil {
		return false, nil
	}
	u.SessionToken = nil
	u.RememberSession = false
	return true, nil
}

// byEmail returns the stored row for assertions.
func (m *memStore) byEmail(email string) *user.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.find(func(u *user.User) bool { return u.Email == email })
	if u == nil {
		return nil
	}
	return m.clone(u)
}

type sentCode struct {
	to     string
	code   string
	resend bool
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (f *fakeNotifier) SendVerificationCode(ctx context.Context, toEmail, code string) error {
	return f.record(toEmail, code, false)
}

func (f *fakeNotifier) ResendVerificationCode(ctx context.Context, toEmail, code string) error {
	return f.record(toEmail, code, true)
}

func (f *fakeNotifier) record(to, code string, resend bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentCode{to: to, code: code, resend: resend})
	return nil
}

func (f *fakeNotifier) last() sentCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentCode{}
	}
	return f.sent[len(f.sent)-1]
}

type fakeAttempts struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{counts: map[string]int64{}}
}

func (f *fakeAttempts) RecordCodeAttempt(ctx context.Context, email string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[email]++
	return f.counts[email], nil
}

func (f *fakeAttempts) ResetCodeAttempts(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, email)
	return nil
}

var errStoreDown = errors.New("connection refused")
