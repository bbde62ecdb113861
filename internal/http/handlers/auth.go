package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"shadowsentry/internal/domain/models"
	"shadowsentry/internal/http/middleware"
	"shadowsentry/internal/lib/sl"
	"shadowsentry/internal/services/auth"
)

const refreshCookieName = "refresh_token"

// AuthHandler serves registration, login, token rotation, logout and session
// management.
type AuthHandler struct {
	logger     *slog.Logger
	auth       *auth.Auth
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthHandler(logger *slog.Logger, authService *auth.Auth, accessTTL, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		logger:     logger,
		auth:       authService,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Email           string `json:"email"`
	Password        string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userResponse struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

type tokenResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresIn    int64         `json:"expiresIn"`
	User         *userResponse `json:"user,omitempty"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Revoked   bool      `json:"revoked"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

func toUserResponse(u *models.User) *userResponse {
	return &userResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Roles:    models.WireRoles(u.Roles),
	}
}

// HandleRegister handles POST /api/v1/auth/register.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if req.Username == "" || req.Email == "" {
		respondError(w, http.StatusBadRequest, "username_and_email_required")
		return
	}
	if req.Password == "" {
		respondError(w, http.StatusBadRequest, "password_required")
		return
	}
	if req.Password != req.ConfirmPassword {
		respondError(w, http.StatusBadRequest, "password_mismatch")
		return
	}

	user, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameTaken):
			respondError(w, http.StatusBadRequest, "username_taken")
		case errors.Is(err, auth.ErrEmailTaken):
			respondError(w, http.StatusBadRequest, "email_taken")
		default:
			h.logger.Error("registration failed", sl.Err(err))
			respondError(w, http.StatusInternalServerError, "registration_failed")
		}
		return
	}

	respondJSON(w, http.StatusCreated, toUserResponse(user))
}

// HandleLogin handles POST /api/v1/auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}

	identifier := strings.TrimSpace(req.UsernameOrEmail)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username_or_email_required")
		return
	}

	pair, err := h.auth.Login(r.Context(), identifier, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		h.logger.Error("login failed", sl.Err(err))
		respondError(w, http.StatusInternalServerError, "login_failed")
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken)
	respondJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    h.accessTTL.Milliseconds(),
		User:         toUserResponse(pair.User),
	})
}

// HandleRefresh handles POST /api/v1/auth/refresh. The refresh token comes
// from the request body or the refresh cookie.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token := h.incomingRefreshToken(r)
	if token == "" {
		respondError(w, http.StatusBadRequest, "refresh_token_required")
		return
	}

	pair, err := h.auth.Rotate(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrReplayDetected):
			respondError(w, http.StatusUnauthorized, "token_replay_detected")
		case errors.Is(err, auth.ErrTokenExpired):
			respondError(w, http.StatusUnauthorized, "refresh_token_expired")
		case errors.Is(err, auth.ErrTokenNotFound), errors.Is(err, auth.ErrUserNotFound):
			respondError(w, http.StatusUnauthorized, "invalid_refresh_token")
		default:
			h.logger.Error("refresh failed", sl.Err(err))
			respondError(w, http.StatusInternalServerError, "refresh_failed")
		}
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken)
	respondJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    h.accessTTL.Milliseconds(),
	})
}

// HandleLogout handles POST /api/v1/auth/logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if token := h.incomingRefreshToken(r); token != "" {
		if err := h.auth.Logout(r.Context(), token); err != nil {
			h.logger.Warn("logout revocation failed", sl.Err(err))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HandleMe handles GET /api/v1/auth/me.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.Claims(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	user, err := h.auth.UserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			respondError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		h.logger.Error("me lookup failed", sl.Err(err))
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	respondJSON(w, http.StatusOK, toUserResponse(user))
}

// HandleSessions handles GET /api/v1/auth/sessions.
func (h *AuthHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.Claims(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	tokens, err := h.auth.Sessions(r.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("sessions lookup failed", sl.Err(err))
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	sessions := make([]sessionResponse, 0, len(tokens))
	for _, t := range tokens {
		sessions = append(sessions, sessionResponse{
			ID:        t.ID,
			IssuedAt:  t.IssuedAt,
			ExpiresAt: t.ExpiresAt,
			Revoked:   t.Revoked,
			IP:        t.IP,
			UserAgent: t.UserAgent,
		})
	}
	respondJSON(w, http.StatusOK, sessions)
}

// HandleRevokeSession handles POST /api/v1/auth/sessions/{id}/revoke.
func (h *AuthHandler) HandleRevokeSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.Claims(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	err := h.auth.RevokeSession(r.Context(), claims.UserID, chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrSessionNotFound):
			respondError(w, http.StatusNotFound, "session_not_found")
		case errors.Is(err, auth.ErrNotSessionOwner):
			respondError(w, http.StatusForbidden, "not_session_owner")
		default:
			h.logger.Error("session revoke failed", sl.Err(err))
			respondError(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *AuthHandler) incomingRefreshToken(r *http.Request) string {
	var req refreshRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.RefreshToken != "" {
		return req.RefreshToken
	}
	if c, err := r.Cookie(refreshCookieName); err == nil {
		return c.Value
	}
	return ""
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.refreshTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return fwd
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		return host[:i]
	}
	return host
}
