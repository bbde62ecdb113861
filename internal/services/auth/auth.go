package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"shadowsentry/internal/domain/models"
	"shadowsentry/internal/lib/jwt"
	"shadowsentry/internal/lib/random"
	"shadowsentry/internal/lib/sl"
	"shadowsentry/internal/storage"
)

// Auth implements registration, login and the refresh-token rotation engine.
type Auth struct {
	logger       *slog.Logger
	userSaver    UserSaver
	userProvider UserProvider
	tokenStore   RefreshTokenStore
	watchlist    WatchlistAdder
	signer       *jwt.Signer
	accessTTL    time.Duration
	refreshTTL   time.Duration
}

type UserSaver interface {
	SaveUser(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

type UserProvider interface {
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, userID string) (*models.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type RefreshTokenStore interface {
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	RefreshTokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RefreshTokenByID(ctx context.Context, id string) (*models.RefreshToken, error)
	RefreshTokensByUser(ctx context.Context, userID string) ([]models.RefreshToken, error)
	MarkRevoked(ctx context.Context, id string, replacedBy string) error
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

type WatchlistAdder interface {
	Add(ctx context.Context, userID, itemType, value string) (*models.WatchlistItem, error)
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username taken")
	ErrEmailTaken         = errors.New("email taken")
	ErrUserNotFound       = errors.New("user not found")
	ErrTokenNotFound      = errors.New("refresh token not found")
	ErrTokenExpired       = errors.New("refresh token expired")
	ErrReplayDetected     = errors.New("refresh token replay detected")
	ErrSessionNotFound    = errors.New("session not found")
	ErrNotSessionOwner    = errors.New("session belongs to another user")
)

// TokenPair is returned to the client at login and rotation. RefreshToken is
// the only place the plaintext ever appears.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	User         *models.User
}

// New returns a new instance of the Auth service.
func New(
	logger *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokenStore RefreshTokenStore,
	watchlist WatchlistAdder,
	signer *jwt.Signer,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) *Auth {
	return &Auth{
		logger:       logger,
		userSaver:    userSaver,
		userProvider: userProvider,
		tokenStore:   tokenStore,
		watchlist:    watchlist,
		signer:       signer,
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
	}
}

// Register creates a new user with the USER role and a best-effort watchlist
// entry for the registered email.
func (a *Auth) Register(
	ctx context.Context,
	username string,
	email string,
	password string,
) (*models.User, error) {
	const op = "auth.Register"
	log := a.logger.With(slog.String("op", op), slog.String("username", username))
	log.Info("register request")

	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if taken, err := a.userProvider.ExistsByUsername(ctx, username); err != nil {
		log.Error("failed to check username", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	} else if taken {
		return nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
	}

	if taken, err := a.userProvider.ExistsByEmail(ctx, email); err != nil {
		log.Error("failed to check email", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	} else if taken {
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		PassHash:  passHash,
		Roles:     []models.Role{models.RoleUser},
		CreatedAt: time.Now(),
	}

	if err := a.userSaver.SaveUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, storage.ErrUsernameTaken):
			log.Warn("username taken", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
		case errors.Is(err, storage.ErrEmailTaken), errors.Is(err, storage.ErrUserExists):
			log.Warn("email taken", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}
		log.Error("failed to save user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Best effort: a failed watchlist add must not fail the registration.
	if _, err := a.watchlist.Add(ctx, user.ID, models.WatchEmail, user.Email); err != nil {
		log.Warn("user created but watchlist add failed", sl.Err(err))
	}

	log.Info("user registered", slog.String("userID", user.ID))

	return user, nil
}

// Login authenticates by username or email and issues a fresh token pair.
// Every previously active refresh token for the user is revoked first, so at
// most one session lineage is live per login.
func (a *Auth) Login(
	ctx context.Context,
	usernameOrEmail string,
	password string,
	ip string,
	userAgent string,
) (*TokenPair, error) {
	const op = "auth.Login"
	log := a.logger.With(slog.String("op", op))
	log.Info("login request")

	user, err := a.userProvider.UserByUsername(ctx, usernameOrEmail)
	if errors.Is(err, storage.ErrUserNotFound) {
		user, err = a.userProvider.UserByEmail(ctx, strings.ToLower(usernameOrEmail))
	}
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Warn("invalid password")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	now := time.Now()
	if err := a.userSaver.UpdateLastLogin(ctx, user.ID, now); err != nil {
		log.Warn("failed to update last login", sl.Err(err))
	}
	user.LastLogin = &now

	if _, err := a.tokenStore.RevokeAllForUser(ctx, user.ID); err != nil {
		log.Error("failed to revoke previous tokens", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := a.issuePair(ctx, user, ip, userAgent)
	if err != nil {
		log.Error("failed to issue token pair", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.String("userID", user.ID))

	return pair, nil
}

// Rotate exchanges a refresh token for a new pair, revoking the predecessor.
// Presenting an already-revoked token is treated as a replay: the entire
// lineage is compromised and every token for that user is revoked.
func (a *Auth) Rotate(ctx context.Context, oldPlain string) (*TokenPair, error) {
	const op = "auth.Rotate"
	log := a.logger.With(slog.String("op", op))
	log.Info("refresh request")

	oldHash := random.HashToken(oldPlain)

	old, err := a.tokenStore.RefreshTokenByHash(ctx, oldHash)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			log.Warn("refresh token not found")
			return nil, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
		}
		log.Error("failed to get refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if old.Revoked {
		log.Warn("refresh token replay detected, revoking all tokens",
			slog.String("userID", old.UserID))
		if _, err := a.tokenStore.RevokeAllForUser(ctx, old.UserID); err != nil {
			log.Error("failed to revoke token lineage", sl.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, ErrReplayDetected)
	}

	if time.Now().After(old.ExpiresAt) {
		log.Warn("refresh token expired")
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	user, err := a.userProvider.UserByID(ctx, old.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	newPlain, err := random.RefreshToken()
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	successor := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: random.HashToken(newPlain),
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(a.refreshTTL),
		IP:        old.IP,
		UserAgent: old.UserAgent,
	}
	if err := a.tokenStore.SaveRefreshToken(ctx, successor); err != nil {
		log.Error("failed to save new refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.tokenStore.MarkRevoked(ctx, old.ID, successor.ID); err != nil {
		log.Error("failed to revoke old refresh token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	accessToken, err := a.signer.IssueAccessToken(user, a.accessTTL)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("tokens rotated",
		slog.String("userID", user.ID),
		slog.String("newTokenID", successor.ID))

	return &TokenPair{AccessToken: accessToken, RefreshToken: newPlain, User: user}, nil
}

// Logout revokes the presented refresh token. Unknown or already-revoked
// tokens are not an error.
func (a *Auth) Logout(ctx context.Context, plain string) error {
	const op = "auth.Logout"
	log := a.logger.With(slog.String("op", op))

	token, err := a.tokenStore.RefreshTokenByHash(ctx, random.HashToken(plain))
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil
		}
		log.Error("failed to get refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if token.Revoked {
		return nil
	}

	if err := a.tokenStore.MarkRevoked(ctx, token.ID, ""); err != nil {
		log.Error("failed to revoke refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("refresh token revoked", slog.String("userID", token.UserID))
	return nil
}

// RevokeAllForUser marks every non-revoked refresh token of the user revoked.
func (a *Auth) RevokeAllForUser(ctx context.Context, userID string) error {
	const op = "auth.RevokeAllForUser"

	n, err := a.tokenStore.RevokeAllForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	a.logger.Info("revoked all refresh tokens",
		slog.String("op", op),
		slog.String("userID", userID),
		slog.Int64("count", n))
	return nil
}

// Sessions lists the refresh-token records of a user. Token hashes stay
// internal; callers get metadata only.
func (a *Auth) Sessions(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	const op = "auth.Sessions"

	tokens, err := a.tokenStore.RefreshTokensByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tokens, nil
}

// RevokeSession revokes a single refresh token by id after checking it
// belongs to the calling user.
func (a *Auth) RevokeSession(ctx context.Context, userID, sessionID string) error {
	const op = "auth.RevokeSession"
	log := a.logger.With(slog.String("op", op), slog.String("sessionID", sessionID))

	token, err := a.tokenStore.RefreshTokenByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}
		log.Error("failed to get session", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if token.UserID != userID {
		log.Warn("session ownership mismatch", slog.String("userID", userID))
		return fmt.Errorf("%s: %w", op, ErrNotSessionOwner)
	}

	if token.Revoked {
		return nil
	}

	if err := a.tokenStore.MarkRevoked(ctx, token.ID, ""); err != nil {
		log.Error("failed to revoke session", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("session revoked", slog.String("userID", userID))
	return nil
}

// UserByID exposes user lookup for authenticated reads.
func (a *Auth) UserByID(ctx context.Context, userID string) (*models.User, error) {
	const op = "auth.UserByID"

	user, err := a.userProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// issuePair mints an access token and a fresh opaque refresh token, persisting
// only the refresh token's hash.
func (a *Auth) issuePair(ctx context.Context, user *models.User, ip, userAgent string) (*TokenPair, error) {
	accessToken, err := a.signer.IssueAccessToken(user, a.accessTTL)
	if err != nil {
		return nil, err
	}

	plain, err := random.RefreshToken()
	if err != nil {
		return nil, err
	}

	token := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: random.HashToken(plain),
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(a.refreshTTL),
		IP:        ip,
		UserAgent: userAgent,
	}
	if err := a.tokenStore.SaveRefreshToken(ctx, token); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: plain, User: user}, nil
}
