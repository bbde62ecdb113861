package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowsentry/internal/domain/models"
)

const testSecret = "test-secret-key-0123456789abcdef"

func testUser() *models.User {
	return &models.User{
		ID:       "user-1",
		Username: "alice",
		Email:    "alice@example.com",
		Roles:    []models.Role{models.RoleUser, models.RoleAdmin},
	}
}

func TestNewSigner_RejectsShortSecret(t *testing.T) {
	_, err := NewSigner("too-short", "issuer")
	require.ErrorIs(t, err, ErrSecretTooShort)

	_, err = NewSigner(testSecret, "issuer")
	require.NoError(t, err)
}

func TestIssueAndVerify(t *testing.T) {
	signer, err := NewSigner(testSecret, "test-issuer")
	require.NoError(t, err)

	token, err := signer.IssueAccessToken(testUser(), 5*time.Minute)
	require.NoError(t, err)

	claims, err := signer.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "test-issuer", claims.Issuer)
	assert.Equal(t, []string{"ROLE_USER", "ROLE_ADMIN"}, claims.Roles)
}

func TestVerify_Expired(t *testing.T) {
	signer, err := NewSigner(testSecret, "test-issuer")
	require.NoError(t, err)

	token, err := signer.IssueAccessToken(testUser(), -time.Minute)
	require.NoError(t, err)

	_, err = signer.Verify(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_Malformed(t *testing.T) {
	signer, err := NewSigner(testSecret, "test-issuer")
	require.NoError(t, err)

	_, err = signer.Verify("not.a.jwt")
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestVerify_WrongKey(t *testing.T) {
	signer, err := NewSigner(testSecret, "test-issuer")
	require.NoError(t, err)

	other, err := NewSigner("another-secret-key-fedcba98765432100", "test-issuer")
	require.NoError(t, err)

	token, err := other.IssueAccessToken(testUser(), 5*time.Minute)
	require.NoError(t, err)

	_, err = signer.Verify(token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_WrongIssuer(t *testing.T) {
	signer, err := NewSigner(testSecret, "expected-issuer")
	require.NoError(t, err)

	other, err := NewSigner(testSecret, "another-issuer")
	require.NoError(t, err)

	token, err := other.IssueAccessToken(testUser(), 5*time.Minute)
	require.NoError(t, err)

	_, err = signer.Verify(token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestIssueRefreshAssertion(t *testing.T) {
	signer, err := NewSigner(testSecret, "test-issuer")
	require.NoError(t, err)

	token, err := signer.IssueRefreshAssertion("user-1", time.Hour)
	require.NoError(t, err)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Empty(t, claims.UserID)
}
