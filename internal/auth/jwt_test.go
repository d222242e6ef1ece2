package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateValidateRoundTrip(t *testing.T) {
	mgr := NewJWTManager("test-secret-0123456789-0123456789", time.Hour)
	require.True(t, mgr.Enabled())

	token, err := mgr.GenerateToken("acme-operator")
	require.NoError(t, err)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acme-operator", claims.Operator)
	assert.Equal(t, "acme-operator", claims.Subject)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	mgr := NewJWTManager("secret-one-0123456789-0123456789", time.Hour)
	other := NewJWTManager("secret-two-0123456789-0123456789", time.Hour)

	token, err := mgr.GenerateToken("op")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	mgr := NewJWTManager("secret-exp-0123456789-0123456789", -time.Minute)

	token, err := mgr.GenerateToken("op")
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	mgr := NewJWTManager("secret-g-0123456789-01234567890", time.Hour)

	_, err := mgr.ValidateToken("not.a.jwt")
	assert.Error(t, err)
}

func TestDisabledManager(t *testing.T) {
	mgr := NewJWTManager("", time.Hour)
	assert.False(t, mgr.Enabled())
}
