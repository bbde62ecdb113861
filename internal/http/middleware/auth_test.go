package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowsentry/internal/domain/models"
	"shadowsentry/internal/lib/jwt"
)

func newSigner(t *testing.T) *jwt.Signer {
	t.Helper()
	signer, err := jwt.NewSigner("test-secret-key-0123456789abcdef", "test-issuer")
	require.NoError(t, err)
	return signer
}

func protected(t *testing.T, signer *jwt.Signer) http.Handler {
	t.Helper()
	return Authenticate(signer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := Claims(r)
		require.True(t, ok)
		w.Header().Set("X-User-ID", claims.UserID)
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthenticate(t *testing.T) {
	signer := newSigner(t)
	handler := protected(t, signer)

	token, err := signer.IssueAccessToken(&models.User{
		ID:       "user-1",
		Username: "alice",
		Roles:    []models.Role{models.RoleUser},
	}, 5*time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Header().Get("X-User-ID"))
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	handler := protected(t, newSigner(t))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing_token"}`, rec.Body.String())
}

func TestAuthenticate_BadToken(t *testing.T) {
	handler := protected(t, newSigner(t))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid_token"}`, rec.Body.String())
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	signer := newSigner(t)
	handler := protected(t, signer)

	token, err := signer.IssueAccessToken(&models.User{ID: "user-1"}, -time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
