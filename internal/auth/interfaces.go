package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/sercop/facilitador-api/internal/user"
)

// tokenStore is the slice of the user store the token issuer needs.
type tokenStore interface {
	SetTokenIfNull(ctx context.Context, id uuid.UUID, token string) (bool, error)
	GetTokenByID(ctx context.Context, id uuid.UUID) (string, error)
}

// codeStore is the slice of the user store the code manager needs.
type codeStore interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	UpdateVerificationCode(ctx context.Context, email, code string) error
	MarkEmailVerified(ctx context.Context, email, code string) (bool, error)
}

// identityStore is the slice of the user store the session resolver needs.
type identityStore interface {
	GetIdentityByToken(ctx context.Context, token string) (*user.Identity, error)
}

// UserStore is the credential store backing the auth service.
// *user.Repository satisfies it.
type UserStore interface {
	tokenStore
	codeStore
	identityStore
	Create(ctx context.Context, nu user.NewUser) (*user.User, error)
	GetActiveByUsername(ctx context.Context, username string) (*user.User, error)
	ClearToken(ctx context.Context, token string) (bool, error)
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

// Notifier delivers verification codes out of band.
type Notifier interface {
	SendVerificationCode(ctx context.Context, toEmail, code string) error
	ResendVerificationCode(ctx context.Context, toEmail, code string) error
}

// AttemptCounter tracks verification attempts per email.
type AttemptCounter interface {
	RecordCodeAttempt(ctx context.Context, email string) (int64, error)
	ResetCodeAttempts(ctx context.Context, email string) error
}
