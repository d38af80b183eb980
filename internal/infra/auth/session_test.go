package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestTokenExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, TokenExpired(signed(t, now.Add(-time.Minute)), now))
	assert.False(t, TokenExpired(signed(t, now.Add(time.Hour)), now))
	assert.False(t, TokenExpired("9944b09199c62bcf9418ad846dd0e4bbdfc6ee4b", now), "opaque token")
	assert.False(t, TokenExpired("", now))
}

func TestHandleAuthErrorClearsTokenAndNotifies(t *testing.T) {
	s := NewSession("abc", nil)
	var got error
	s.OnSignedOut(func(_ context.Context, err error) { got = err })

	cause := errors.New("token_not_valid")
	s.HandleAuthError(context.Background(), cause)

	assert.Empty(t, s.Token())
	assert.Equal(t, cause, got)

	s.SetToken("fresh")
	assert.Equal(t, "fresh", s.Token())
}
