package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"shadowsentry/internal/domain/models"
)

// MinSecretLen is the minimum signing-key length in bytes (256 bits for
// HS256). Construction fails below it; the service must not start with a
// weaker key.
const MinSecretLen = 32

var (
	ErrSecretTooShort = errors.New("jwt secret must be at least 32 bytes")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenInvalid   = errors.New("token invalid")
)

// Claims is the payload carried by an access token.
type Claims struct {
	UserID string   `json:"uid"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Signer issues and verifies signed access tokens. It is constructed once
// from explicit configuration and holds no mutable state.
type Signer struct {
	secret []byte
	issuer string
}

func NewSigner(secret, issuer string) (*Signer, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrSecretTooShort
	}
	return &Signer{secret: []byte(secret), issuer: issuer}, nil
}

// IssueAccessToken creates a signed access token carrying the user identity
// and wire-normalized roles.
func (s *Signer) IssueAccessToken(user *models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Roles:  models.WireRoles(user.Roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// IssueRefreshAssertion creates a signed refresh credential with the user id
// as subject and no custom claims. The rotation engine uses opaque tokens as
// its primary refresh mechanism; this exists for clients that need a
// self-contained assertion instead.
func (s *Signer) IssueRefreshAssertion(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign refresh assertion: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, ErrTokenInvalid
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
