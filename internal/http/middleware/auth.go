package middleware

import (
	"context"
	"net/http"
	"strings"

	"shadowsentry/internal/lib/jwt"
)

type contextKey string

const claimsKey contextKey = "authClaims"

// Authenticate verifies the bearer access token and stores its claims in the
// request context. Requests without a valid token get 401.
func Authenticate(signer *jwt.Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, "missing_token")
				return
			}

			claims, err := signer.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				unauthorized(w, "invalid_token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Claims returns the verified access-token claims stored by Authenticate.
func Claims(r *http.Request) (*jwt.Claims, bool) {
	claims, ok := r.Context().Value(claimsKey).(*jwt.Claims)
	return claims, ok
}

func unauthorized(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + code + `"}`))
}
