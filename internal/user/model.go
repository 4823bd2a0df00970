package user

import (
	"time"

	"github.com/google/uuid"
)

// Status values for User.Status.
const (
	StatusActive   = "activo"
	StatusInactive = "inactivo"
)

type User struct {
	ID                 uuid.UUID  `json:"id"`
	Username           string     `json:"username"`
	Email              string     `json:"email"`
	PasswordHash       string     `json:"-"` // Never expose password hash in JSON
	Phone              string     `json:"telefono"`
	Status             string     `json:"estado"`
	EmailVerified      bool       `json:"email_verificado"`
	VerificationCode   *string    `json:"-"`
	VerificationSentAt *time.Time `json:"-"`
	SessionToken       *string    `json:"-"`
	RememberSession    bool       `json:"recordar_sesion"`
	LastAccess         *time.Time `json:"ultimo_acceso,omitempty"`
	CreatedAt          time.Time  `json:"fecha_creacion"`
}

// Identity is the projection of a user handed to authenticated callers.
type Identity struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (u *User) Identity() Identity {
	return Identity{Username: u.Username, Email: u.Email}
}

// CurrentToken returns the stored session token, or "" when none is set.
func (u *User) CurrentToken() string {
	if u.SessionToken == nil {
		return ""
	}
	return *u.SessionToken
}

// NewUser carries the fields required to insert an unverified account.
type NewUser struct {
	Username         string
	Email            string
	Phone            string
	PasswordHash     string
	VerificationCode string
}
