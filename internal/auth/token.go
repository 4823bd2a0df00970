package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// sessionTokenBytes gives 256 bits of entropy, hex encoded to 64 chars.
const sessionTokenBytes = 32

var errTokenCleared = errors.New("session token was cleared while being issued")

// TokenIssuer hands out permanent session tokens: a user keeps the same token
// across logins until it is cleared by logout.
type TokenIssuer struct {
	store  tokenStore
	random io.Reader
}

func NewTokenIssuer(store tokenStore) *TokenIssuer {
	return &TokenIssuer{store: store, random: rand.Reader}
}

// IssueIfMissing returns current unchanged when set. Otherwise it generates a
// token and stores it only if the user still has none; when another login won
// that race the stored token is returned instead.
func (i *TokenIssuer) IssueIfMissing(ctx context.Context, userID uuid.UUID, current string) (string, error) {
	if current != "" {
		return current, nil
	}

	token, err := i.generate()
	if err != nil {
		return "", err
	}

	won, err := i.store.SetTokenIfNull(ctx, userID, token)
	if err != nil {
		return "", err
	}
	if won {
		return token, nil
	}

	stored, err := i.store.GetTokenByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to read concurrent session token: %w", err)
	}
	if stored == "" {
		return "", errTokenCleared
	}
	return stored, nil
}

func (i *TokenIssuer) generate() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := io.ReadFull(i.random, b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
