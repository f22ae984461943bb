package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"
)

// ErrUnauthenticated is the single outcome for a missing, invalid or expired token and
// for a token whose user no longer exists.
var ErrUnauthenticated = errors.New("unauthenticated")

// UserLookup finds a user by id, returning storage.ErrNotFound when absent.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Guard resolves bearer tokens to users.
type Guard struct {
	tokens TokenVerifier
	users  UserLookup
}

// NewGuard creates a Guard.
func NewGuard(tokens TokenVerifier, users UserLookup) *Guard {
	return &Guard{tokens: tokens, users: users}
}

// Authenticate returns the user a raw token belongs to. Rejections are always
// ErrUnauthenticated; only store failures come back as other errors.
func (g *Guard) Authenticate(ctx context.Context, rawToken string) (*models.User, error) {
	if rawToken == "" {
		return nil, ErrUnauthenticated
	}
	userID, err := g.tokens.Verify(rawToken)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	user, err := g.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("lookup user %d: %w", userID, err)
	}
	return user, nil
}

// BearerToken extracts the token from "Authorization: Bearer <token>", falling back to a
// bare "token" header.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get("token"))
}
