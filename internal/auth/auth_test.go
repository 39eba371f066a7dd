package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-proctor-service/internal/domain"
)

func TestLoginAndVerify(t *testing.T) {
	a, err := New("letmein", "", "secret", time.Hour)
	require.NoError(t, err)

	token, claims, err := a.Login("letmein")
	require.NoError(t, err)
	assert.Equal(t, RoleInstructor, claims.Role)

	verified, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, RoleInstructor, verified.Role)
	assert.Equal(t, claims.ID, verified.ID)
}

func TestLoginRejectsWrongPasscode(t *testing.T) {
	a, err := New("letmein", "", "secret", time.Hour)
	require.NoError(t, err)

	_, _, err = a.Login("guess")
	assert.True(t, errors.Is(err, domain.ErrInvalidPasscode))
}

func TestConfiguredHashIsUsed(t *testing.T) {
	hash, err := HashPasscode("from-hash")
	require.NoError(t, err)

	a, err := New("ignored", hash, "secret", time.Hour)
	require.NoError(t, err)
	assert.NoError(t, a.CheckPasscode("from-hash"))
	assert.Error(t, a.CheckPasscode("ignored"))

	_, err = New("", "not-a-bcrypt-hash", "secret", time.Hour)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	a, err := New("letmein", "", "secret", time.Minute)
	require.NoError(t, err)
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return start }

	token, _, err := a.Login("letmein")
	require.NoError(t, err)

	a.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = a.Verify(token)
	assert.Error(t, err)

	other, err := New("letmein", "", "other-secret", time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.Login("letmein")
	require.NoError(t, err)
	a.now = time.Now
	_, err = a.Verify(foreign)
	assert.Error(t, err)
}

func TestNewRequiresSecretAndPasscode(t *testing.T) {
	_, err := New("pw", "", "", time.Hour)
	assert.Error(t, err)
	_, err = New("", "", "secret", time.Hour)
	assert.Error(t, err)
}
