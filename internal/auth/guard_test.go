package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"expense-ledger/internal/models"
	"expense-ledger/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUsers struct {
	users map[int64]*models.User
	err   error
}

func (s *stubUsers) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, storage.ErrNotFound
}

func TestGuard_Authenticate(t *testing.T) {
	tokens, clock := newTestTokenService("secret")
	alice := &models.User{ID: 1, Email: "alice@example.com"}
	guard := NewGuard(tokens, &stubUsers{users: map[int64]*models.User{1: alice}})

	valid, err := tokens.Issue(1)
	require.NoError(t, err)
	stale, err := tokens.Issue(99)
	require.NoError(t, err)

	user, err := guard.Authenticate(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, alice, user)

	for name, token := range map[string]string{
		"missing":      "",
		"garbage":      "not-a-token",
		"unknown user": stale,
	} {
		t.Run(name, func(t *testing.T) {
			user, err := guard.Authenticate(context.Background(), token)
			assert.ErrorIs(t, err, ErrUnauthenticated)
			assert.Nil(t, user)
		})
	}

	clock.t = clock.t.Add(2 * tokens.TTL())
	_, err = guard.Authenticate(context.Background(), valid)
	assert.ErrorIs(t, err, ErrUnauthenticated, "expired token")
}

func TestGuard_StoreFailure(t *testing.T) {
	tokens, _ := newTestTokenService("secret")
	boom := errors.New("disk on fire")
	guard := NewGuard(tokens, &stubUsers{err: boom})

	token, err := tokens.Issue(1)
	require.NoError(t, err)

	_, err = guard.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"authorization bearer", map[string]string{"Authorization": "Bearer abc"}, "abc"},
		{"case insensitive scheme", map[string]string{"Authorization": "bearer abc"}, "abc"},
		{"other scheme", map[string]string{"Authorization": "Basic abc"}, ""},
		{"no scheme", map[string]string{"Authorization": "abc"}, ""},
		{"token header", map[string]string{"token": "xyz"}, "xyz"},
		{"authorization wins", map[string]string{"Authorization": "Bearer abc", "token": "xyz"}, "abc"},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/expenses", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, BearerToken(r))
		})
	}
}
