package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrBadCode            = errors.New("verification code does not match")
	ErrCodeExpired        = errors.New("verification code expired")
	ErrTooManyAttempts    = errors.New("too many verification attempts")
	ErrMissingToken       = errors.New("session token missing")
	ErrInvalidToken       = errors.New("session token invalid")
)

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Kind classifies errors for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
	KindBadCode
	KindExpired
	KindTooManyAttempts
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindBadCode:
		return "bad_code"
	case KindExpired:
		return "expired"
	case KindTooManyAttempts:
		return "too_many_attempts"
	default:
		return "internal"
	}
}

// KindOf maps err onto the error taxonomy. Anything unrecognised is Internal.
func KindOf(err error) Kind {
	var verr *ValidationError
	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &verr):
		return KindInvalid
	case errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken):
		return KindUnauthorized
	case errors.Is(err, ErrEmailNotVerified):
		return KindForbidden
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrUsernameTaken), errors.Is(err, ErrAlreadyVerified):
		return KindConflict
	case errors.Is(err, ErrBadCode):
		return KindBadCode
	case errors.Is(err, ErrCodeExpired):
		return KindExpired
	case errors.Is(err, ErrTooManyAttempts):
		return KindTooManyAttempts
	default:
		return KindInternal
	}
}
