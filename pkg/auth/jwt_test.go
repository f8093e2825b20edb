package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateValidateRoundTrip(t *testing.T) {
	manager := NewManager("test-secret", "vestra_service", time.Hour)
	userID := uuid.New()

	token, err := manager.Generate(userID, "user@example.com", "user")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := manager.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "vestra_service", claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issued := NewManager("secret-one", "vestra_service", time.Hour)
	verifier := NewManager("secret-two", "vestra_service", time.Hour)

	token, err := issued.Generate(uuid.New(), "user@example.com", "user")
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	issued := NewManager("test-secret", "someone-else", time.Hour)
	verifier := NewManager("test-secret", "vestra_service", time.Hour)

	token, err := issued.Generate(uuid.New(), "user@example.com", "user")
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	manager := NewManager("test-secret", "vestra_service", -time.Minute)

	token, err := manager.Generate(uuid.New(), "user@example.com", "user")
	require.NoError(t, err)

	_, err = manager.Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	manager := NewManager("test-secret", "vestra_service", time.Hour)
	_, err := manager.Validate("not.a.token")
	assert.Error(t, err)
}
