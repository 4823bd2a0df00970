package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"

	"github.com/sercop/facilitador-api/internal/logging"
	"github.com/sercop/facilitador-api/internal/user"
)

const (
	codeMin  = 100000
	codeSpan = 900000 // codes fall in [100000, 999999]
)

// CodeManager owns the verification code lifecycle for a user's email.
type CodeManager struct {
	store       codeStore
	attempts    AttemptCounter
	logger      *logging.Logger
	ttl         time.Duration // 0 disables expiry
	maxAttempts int           // 0 disables the attempt limit
	now         func() time.Time
	random      io.Reader
}

func NewCodeManager(store codeStore, attempts AttemptCounter, logger *logging.Logger, ttl time.Duration, maxAttempts int) *CodeManager {
	return &CodeManager{
		store:       store,
		attempts:    attempts,
		logger:      logger,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
		random:      rand.Reader,
	}
}

// Generate returns a uniformly random six digit code.
func (m *CodeManager) Generate() (string, error) {
	n, err := rand.Int(m.random, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return strconv.FormatInt(codeMin+n.Int64(), 10), nil
}

// IssueForNewUser returns the code stored alongside a freshly registered user.
func (m *CodeManager) IssueForNewUser() (string, error) {
	return m.Generate()
}

// Reissue replaces the pending code for email and returns the new one.
func (m *CodeManager) Reissue(ctx context.Context, email string) (string, error) {
	u, err := m.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	if u.EmailVerified {
		return "", ErrAlreadyVerified
	}

	code, err := m.Generate()
	if err != nil {
		return "", err
	}

	if err := m.store.UpdateVerificationCode(ctx, email, code); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// verified between the read and the write
			return "", ErrAlreadyVerified
		}
		return "", err
	}

	m.resetAttempts(ctx, email)
	return code, nil
}

// Verify checks code against the pending code for email. A match marks the
// email verified and clears the code, so a code verifies at most once.
func (m *CodeManager) Verify(ctx context.Context, email, code string) error {
	u, err := m.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := m.recordAttempt(ctx, email); err != nil {
		return err
	}

	if u.VerificationCode == nil || subtle.ConstantTimeCompare([]byte(*u.VerificationCode), []byte(code)) != 1 {
		return ErrBadCode
	}

	if m.ttl > 0 && u.VerificationSentAt != nil && m.now().Sub(*u.VerificationSentAt) > m.ttl {
		return ErrCodeExpired
	}

	matched, err := m.store.MarkEmailVerified(ctx, email, code)
	if err != nil {
		return err
	}
	if !matched {
		// code was replaced or consumed concurrently
		return ErrBadCode
	}

	m.resetAttempts(ctx, email)
	return nil
}

// recordAttempt fails open when the counter backend is unavailable.
func (m *CodeManager) recordAttempt(ctx context.Context, email string) error {
	if m.maxAttempts <= 0 || m.attempts == nil {
		return nil
	}

	n, err := m.attempts.RecordCodeAttempt(ctx, email)
	if err != nil {
		m.logger.Warn("failed to record verification attempt", "error", err)
		return nil
	}
	if n > int64(m.maxAttempts) {
		return ErrTooManyAttempts
	}
	return nil
}

func (m *CodeManager) resetAttempts(ctx context.Context, email string) {
	if m.maxAttempts <= 0 || m.attempts == nil {
		return
	}
	if err := m.attempts.ResetCodeAttempts(ctx, email); err != nil {
		m.logger.Warn("failed to reset verification attempts", "error", err)
	}
}
