package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessAndRefresh(t *testing.T) {
	svc := NewJWTService("0123456789abcdef0123456789abcdef", time.Hour, 24*time.Hour)

	access, err := svc.GenerateAccessToken(42, "ana")
	require.NoError(t, err)
	refresh, err := svc.GenerateRefreshToken(42, "ana")
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "ana", claims.Username)

	claims, err = svc.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)

	// 用途不能混用
	_, err = svc.ValidateAccessToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.ValidateRefreshToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredAndForeignTokens(t *testing.T) {
	svc := NewJWTService("0123456789abcdef0123456789abcdef", time.Minute, time.Hour)
	token, err := svc.GenerateAccessToken(1, "ana")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)

	other := NewJWTService("another-secret-another-secret-xx", time.Minute, time.Hour)
	foreign, err := other.GenerateAccessToken(1, "ana")
	require.NoError(t, err)
	_, err = NewJWTService("0123456789abcdef0123456789abcdef", time.Minute, time.Hour).ValidateAccessToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateAccessToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashToken(t *testing.T) {
	h := HashToken("abc")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashToken("abc"))
	assert.NotEqual(t, h, HashToken("abd"))
}
