package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/sercop/facilitador-api/internal/user"
)

// SessionResolver maps bearer tokens back to user identities.
type SessionResolver struct {
	store identityStore
}

func NewSessionResolver(store identityStore) *SessionResolver {
	return &SessionResolver{store: store}
}

// Resolve returns the identity owning token, or nil when the token is empty or
// unknown. Only store failures produce an error.
func (r *SessionResolver) Resolve(ctx context.Context, token string) (*user.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	identity, err := r.store.GetIdentityByToken(ctx, token)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return identity, nil
}

// ExtractBearer strips an optional "Bearer" scheme from an Authorization
// header value. A scheme with no credentials yields "".
func ExtractBearer(header string) string {
	header = strings.TrimLeft(header, " \t")
	const scheme = "bearer"
	if len(header) >= len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
		rest := header[len(scheme):]
		if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
			header = rest
		}
	}
	return strings.TrimSpace(header)
}
