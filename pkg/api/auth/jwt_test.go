package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-long-enough!"

func newTestService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(JWTConfig{Secret: testSecret})
	require.NoError(t, err)
	return svc
}

func TestNewJWTServiceSecretTooShort(t *testing.T) {
	_, err := NewJWTService(JWTConfig{Secret: "short"})
	assert.ErrorIs(t, err, ErrInvalidSecretLength)
}

func TestTokenPairRoundTrip(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.GenerateTokenPair("user-1", []string{"fam-a", "fam-b"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.True(t, claims.MemberOf("fam-a"))
	assert.True(t, claims.MemberOf("fam-b"))
	assert.False(t, claims.MemberOf("fam-c"))
}

func TestAccessTokenRejectedAsRefresh(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.GenerateTokenPair("user-1", nil)
	require.NoError(t, err)

	_, err = svc.ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidTokenType)

	_, err = svc.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidTokenType)
}

func TestExpiredToken(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{
		Secret:              testSecret,
		AccessTokenDuration: -1 * time.Minute,
	})
	require.NoError(t, err)

	pair, err := svc.GenerateTokenPair("user-1", nil)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTamperedToken(t *testing.T) {
	svc := newTestService(t)
	other, err := NewJWTService(JWTConfig{Secret: "another-secret-key-that-is-long-enough!"})
	require.NoError(t, err)

	pair, err := other.GenerateTokenPair("user-1", nil)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
