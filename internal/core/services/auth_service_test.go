package services

import (
	"context"
	"testing"
	"time"

	"skycast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_TokenRoundTrip(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour, "skycast")

	token, err := auth.GenerateToken("alice", "Alice")
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity("alice"), claims.Identity)
	assert.Equal(t, "Alice", claims.DisplayName)
	assert.Equal(t, "skycast", claims.Issuer)
}

func TestAuthService_VerifyIdentity(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour, "skycast")
	token, err := auth.GenerateToken("alice", "")
	require.NoError(t, err)

	assert.NoError(t, auth.VerifyIdentity("alice", token))
	assert.ErrorIs(t, auth.VerifyIdentity("bob", token), domain.ErrAuthenticationRequired)
	assert.ErrorIs(t, auth.VerifyIdentity("alice", ""), domain.ErrAuthenticationRequired)

	other := NewAuthService("other-secret", time.Hour, "skycast")
	forged, err := other.GenerateToken("alice", "")
	require.NoError(t, err)
	assert.ErrorIs(t, auth.VerifyIdentity("alice", forged), domain.ErrAuthenticationRequired)
}

func TestAuthService_ExpiredToken(t *testing.T) {
	auth := NewAuthService("test-secret", -time.Minute, "skycast")
	token, err := auth.GenerateToken("alice", "")
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAuthService_IdentityFromContext(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour, "skycast")

	_, err := auth.GetIdentityFromContext(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthenticationRequired)

	ctx := ContextWithIdentity(context.Background(), "alice")
	identity, err := auth.GetIdentityFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity("alice"), identity)
}

func TestAuthService_RequiresIdentity(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour, "skycast")
	_, err := auth.GenerateToken("", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
