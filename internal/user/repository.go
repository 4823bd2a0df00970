package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"

	"github.com/sercop/facilitador-api/internal/database"
)

var (
	ErrNotFound          = errors.New("user not found")
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrDuplicateUsername = errors.New("username already exists")
)

// pqUniqueViolation is the SQLSTATE for unique_violation.
const pqUniqueViolation = "23505"

// Repository handles user data persistence
type Repository struct {
	db  *bun.DB
	now func() time.Time
}

func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Create inserts a new active, unverified user holding a verification code.
func (r *Repository) Create(ctx context.Context, nu NewUser) (*User, error) {
	now := r.now()
	code := nu.VerificationCode
	dbUser := &database.User{
		ID:                 uuid.New(),
		Username:           nu.Username,
		Email:              nu.Email,
		PasswordHash:       nu.PasswordHash,
		Telefono:           nu.Phone,
		Estado:             database.StatusActive,
		EmailVerificado:    false,
		CodigoVerificacion: &code,
		CodigoEnviadoEn:    &now,
	}

	_, err := r.db.NewInsert().
		Model(dbUser).
		Returning("fecha_creacion").
		Exec(ctx)
	if err != nil {
		return nil, classifyInsertError(err)
	}

	return mapDBUserToModel(dbUser), nil
}

func classifyInsertError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		if strings.Contains(pqErr.Constraint, "username") {
			return ErrDuplicateUsername
		}
		return ErrDuplicateEmail
	}
	return fmt.Errorf("failed to create user: %w", err)
}

// GetActiveByUsername retrieves an active user by exact username.
func (r *Repository) GetActiveByUsername(ctx context.Context, username string) (*User, error) {
	return r.getOne(ctx, "username", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("username = ?", username).Where("estado = ?", database.StatusActive)
	})
}

// GetByEmail retrieves a user by email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, "email", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("email = ?", email)
	})
}

func (r *Repository) getOne(ctx context.Context, by string, filter func(*bun.SelectQuery) *bun.SelectQuery) (*User, error) {
	dbUser := new(database.User)
	err := filter(r.db.NewSelect().Model(dbUser)).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by %s: %w", by, err)
	}

	return mapDBUserToModel(dbUser), nil
}

// GetIdentityByToken resolves a session token to the owner's identity.
// Only id, username and email are read.
func (r *Repository) GetIdentityByToken(ctx context.Context, token string) (*Identity, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Column("id", "username", "email").
		Where("token_sesion = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by token: %w", err)
	}

	return &Identity{Username: dbUser.Username, Email: dbUser.Email}, nil
}

// GetTokenByID returns the session token currently stored for a user, or ""
// when none is set.
func (r *Repository) GetTokenByID(ctx context.Context, id uuid.UUID) (string, error) {
	dbUser := new(database.User)
	err := r.db.NewSelect().
		Model(dbUser).
		Column("token_sesion").
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get token by id: %w", err)
	}
	if dbUser.TokenSesion == nil {
		return "", nil
	}
	return *dbUser.TokenSesion, nil
}

// SetTokenIfNull stores token only when the user has none, reporting whether
// this call won. The session is flagged as remembered and last access bumped.
func (r *Repository) SetTokenIfNull(ctx context.Context, id uuid.UUID, token string) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("token_sesion = ?", token).
		Set("recordar_sesion = ?", true).
		Set("ultimo_acceso = NOW()").
		Where("id = ?", id).
		Where("token_sesion IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to store session token: %w", err)
	}

	return affectedOne(result)
}

// UpdateVerificationCode replaces the pending code of an unverified user.
func (r *Repository) UpdateVerificationCode(ctx context.Context, email, code string) error {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("codigo_verificacion = ?", code).
		Set("codigo_enviado_en = ?", r.now()).
		Where("email = ?", email).
		Where("email_verificado = ?", false).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update verification code: %w", err)
	}

	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// MarkEmailVerified flips email_verificado and clears the code, but only if
// the stored code still equals code. It reports whether a row matched.
func (r *Repository) MarkEmailVerified(ctx context.Context, email, code string) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("email_verificado = ?", true).
		Set("codigo_verificacion = NULL").
		Set("codigo_enviado_en = NULL").
		Where("email = ?", email).
		Where("codigo_verificacion = ?", code).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to mark email as verified: %w", err)
	}

	return affectedOne(result)
}

// ClearToken ends the session identified by token.
func (r *Repository) ClearToken(ctx context.Context, token string) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*database.User)(nil)).
		Set("token_sesion = NULL").
		Set("recordar_sesion = ?", false).
		Where("token_sesion = ?", token).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to clear session token: %w", err)
	}

	return affectedOne(result)
}

func affectedOne(result sql.Result) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// mapDBUserToModel converts database model to domain model
func mapDBUserToModel(dbu *database.User) *User {
	return &User{
		ID:                 dbu.ID,
		Username:           dbu.Username,
		Email:              dbu.Email,
		PasswordHash:       dbu.PasswordHash,
		Phone:              dbu.Telefono,
		Status:             dbu.Estado,
		EmailVerified:      dbu.EmailVerificado,
		VerificationCode:   dbu.CodigoVerificacion,
		VerificationSentAt: dbu.CodigoEnviadoEn,
		SessionToken:       dbu.TokenSesion,
		RememberSession:    dbu.RecordarSesion,
		LastAccess:         dbu.UltimoAcceso,
		CreatedAt:          dbu.FechaCreacion,
	}
}
