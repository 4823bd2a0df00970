package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sercop/facilitador-api/internal/logging"
	"github.com/sercop/facilitador-api/internal/user"
)

const (
	minPasswordLength = 6
	maxUsernameLength = 100
	maxEmailLength    = 254
	maxPhoneLength    = 30
)

// dummyHash is compared against when a username is unknown so that both login
// failure paths cost one bcrypt comparison.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3ZBlRCKGUcv8cBl2dYfJm6W"

// ServiceConfig carries the tunables of the auth service.
type ServiceConfig struct {
	QueryTimeout    time.Duration
	MailTimeout     time.Duration
	CodeTTL         time.Duration
	MaxCodeAttempts int
}

// RegisterInput is a validated registration request.
type RegisterInput struct {
	Username string
	Email    string
	Phone    string
	Password string
}

// Normalize trims surrounding whitespace from identifying fields.
func (in RegisterInput) Normalize() RegisterInput {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	return in
}

// Validate checks presence and format of each field.
func (in RegisterInput) Validate() error {
	switch {
	case in.Username == "":
		return &ValidationError{Field: "username", Message: "is required"}
	case utf8.RuneCountInString(in.Username) > maxUsernameLength:
		return &ValidationError{Field: "username", Message: "is too long"}
	case in.Email == "":
		return &ValidationError{Field: "email", Message: "is required"}
	case len(in.Email) > maxEmailLength || !isEmail(in.Email):
		return &ValidationError{Field: "email", Message: "has an invalid format"}
	case len(in.Phone) > maxPhoneLength:
		return &ValidationError{Field: "telefono", Message: "is too long"}
	case in.Password == "":
		return &ValidationError{Field: "password", Message: "is required"}
	case utf8.RuneCountInString(in.Password) < minPasswordLength:
		return &ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	case len(in.Password) > maxPasswordBytes:
		return &ValidationError{Field: "password", Message: fmt.Sprintf("must be at most %d bytes", maxPasswordBytes)}
	}
	return nil
}

func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token    string
	Username string
	Email    string
}

// Service handles authentication business logic
type Service struct {
	store        UserStore
	hasher       PasswordHasher
	notifier     Notifier
	tokens       *TokenIssuer
	codes        *CodeManager
	sessions     *SessionResolver
	logger       *logging.Logger
	queryTimeout time.Duration
	mailTimeout  time.Duration
}

func NewService(
	store UserStore,
	hasher PasswordHasher,
	notifier Notifier,
	attempts AttemptCounter,
	logger *logging.Logger,
	cfg ServiceConfig,
) *Service {
	return &Service{
		store:        store,
		hasher:       hasher,
		notifier:     notifier,
		tokens:       NewTokenIssuer(store),
		codes:        NewCodeManager(store, attempts, logger, cfg.CodeTTL, cfg.MaxCodeAttempts),
		sessions:     NewSessionResolver(store),
		logger:       logger,
		queryTimeout: cfg.QueryTimeout,
		mailTimeout:  cfg.MailTimeout,
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Register creates an unverified account and mails its verification code.
// The account survives a mail failure; the error is reported as internal and
// the user can ask for the code again.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*user.User, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	created, code, err := s.createUser(ctx, in)
	if err != nil {
		return nil, err
	}

	mailCtx, cancel := withTimeout(ctx, s.mailTimeout)
	defer cancel()

	if err := s.notifier.SendVerificationCode(mailCtx, created.Email, code); err != nil {
		return nil, fmt.Errorf("failed to send verification code: %w", err)
	}

	return created, nil
}

func (s *Service) createUser(ctx context.Context, in RegisterInput) (*user.User, string, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.store.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, "", ErrEmailTaken
	case !errors.Is(err, user.ErrNotFound):
		return nil, "", fmt.Errorf("failed to check email: %w", err)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, "", err
	}

	code, err := s.codes.IssueForNewUser()
	if err != nil {
		return nil, "", err
	}

	created, err := s.store.Create(ctx, user.NewUser{
		Username:         in.Username,
		Email:            in.Email,
		Phone:            in.Phone,
		PasswordHash:     passwordHash,
		VerificationCode: code,
	})
	if err != nil {
		switch {
		case errors.Is(err, user.ErrDuplicateEmail):
			return nil, "", ErrEmailTaken
		case errors.Is(err, user.ErrDuplicateUsername):
			return nil, "", ErrUsernameTaken
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	return created, code, nil
}

// ResendCode replaces the pending code for email and mails it again.
func (s *Service) ResendCode(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)

	storeCtx, cancel := withTimeout(ctx, s.queryTimeout)
	code, err := s.codes.Reissue(storeCtx, email)
	cancel()
	if err != nil {
		return err
	}

	mailCtx, cancel := withTimeout(ctx, s.mailTimeout)
	defer cancel()

	if err := s.notifier.ResendVerificationCode(mailCtx, email, code); err != nil {
		return fmt.Errorf("failed to resend verification code: %w", err)
	}
	return nil
}

// VerifyCode confirms email ownership with the mailed code.
func (s *Service) VerifyCode(ctx context.Context, email, code string) error {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	return s.codes.Verify(ctx, strings.TrimSpace(email), strings.TrimSpace(code))
}

// Login authenticates a verified user and returns their session token.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidCredentials
	}

	existing, err := s.store.GetActiveByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.hasher.Verify(password, dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !existing.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	if !s.hasher.Verify(password, existing.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.IssueIfMissing(ctx, existing.ID, existing.CurrentToken())
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	return &LoginResult{
		Token:    token,
		Username: existing.Username,
		Email:    existing.Email,
	}, nil
}

// Validate resolves a token presented in a request body.
func (s *Service) Validate(ctx context.Context, token string) (*user.Identity, error) {
	return s.resolve(ctx, token)
}

// Me resolves a token presented as a bearer credential.
func (s *Service) Me(ctx context.Context, token string) (*user.Identity, error) {
	return s.resolve(ctx, token)
}

func (s *Service) resolve(ctx context.Context, token string) (*user.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	identity, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	if identity == nil {
		return nil, ErrInvalidToken
	}
	return identity, nil
}

// Logout clears the session token so it no longer resolves.
func (s *Service) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}

	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	cleared, err := s.store.ClearToken(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	if !cleared {
		return ErrInvalidToken
	}
	return nil
}
