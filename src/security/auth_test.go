package security

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/stockfolio/backend/src/config"
)

func TestMain(m *testing.M) {
	config.Cfg = &config.AppConfig{
		JWTSecret:          "test-secret-key-of-at-least-32-bytes!!",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
	}
	os.Exit(m.Run())
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewAuthService(config.Cfg.JWTSecret)

	token, err := svc.GenerateToken("42")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "42", subject)
}

func TestValidateToken_RejectsWrongSecret(t *testing.T) {
	svc := NewAuthService(config.Cfg.JWTSecret)
	other := NewAuthService("a-completely-different-32-byte-secret!")

	token, err := svc.GenerateToken("42")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_RejectsGarbage(t *testing.T) {
	svc := NewAuthService(config.Cfg.JWTSecret)

	_, err := svc.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestGenerateRefreshToken_Unique(t *testing.T) {
	svc := NewAuthService(config.Cfg.JWTSecret)

	a, err := svc.GenerateRefreshToken()
	require.NoError(t, err)
	b, err := svc.GenerateRefreshToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestHashPassword(t *testing.T) {
	svc := NewAuthService(config.Cfg.JWTSecret)

	hash, err := svc.HashPassword("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)
	assert.NotEmpty(t, hash)
}
