package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shadowsentry/internal/domain/models"
	"shadowsentry/internal/http/middleware"
	"shadowsentry/internal/lib/sl"
	"shadowsentry/internal/services/watchlist"
)

// WatchlistHandler serves the monitored-identifier CRUD endpoints.
type WatchlistHandler struct {
	logger *slog.Logger
	items  *watchlist.Service
}

func NewWatchlistHandler(logger *slog.Logger, items *watchlist.Service) *WatchlistHandler {
	return &WatchlistHandler{logger: logger, items: items}
}

type watchlistAddRequest struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type watchlistItemResponse struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Value       string     `json:"value"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastChecked *time.Time `json:"lastChecked,omitempty"`
}

func toWatchlistItemResponse(it *models.WatchlistItem) watchlistItemResponse {
	return watchlistItemResponse{
		ID:          it.ID,
		Type:        it.Type,
		Value:       it.Value,
		Active:      it.Active,
		CreatedAt:   it.CreatedAt,
		LastChecked: it.LastCheckedAt,
	}
}

// HandleAdd handles POST /api/v1/watchlist.
func (h *WatchlistHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.Claims(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req watchlistAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	if req.Type == "" {
		req.Type = models.WatchEmail
	}

	item, err := h.items.Add(r.Context(), claims.UserID, req.Type, req.Value)
	if err != nil {
		if errors.Is(err, watchlist.ErrEmptyValue) {
			respondError(w, http.StatusBadRequest, "value_required")
			return
		}
		h.logger.Error("watchlist add failed", sl.Err(err))
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	respondJSON(w, http.StatusCreated, toWatchlistItemResponse(item))
}

// HandleList handles GET /api/v1/watchlist.
func (h *WatchlistHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.Claims(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	items, err := h.items.ItemsForUser(r.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("watchlist list failed", sl.Err(err))
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	out := make([]watchlistItemResponse, 0, len(items))
	for i := range items {
		out = append(out, toWatchlistItemResponse(&items[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

// HandleRemove handles DELETE /api/v1/watchlist/{id}.
func (h *WatchlistHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.Claims(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	err := h.items.Remove(r.Context(), claims.UserID, chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, watchlist.ErrItemNotFound):
			respondError(w, http.StatusNotFound, "watchlist_item_not_found")
		case errors.Is(err, watchlist.ErrNotOwner):
			respondError(w, http.StatusForbidden, "not_item_owner")
		default:
			h.logger.Error("watchlist remove failed", sl.Err(err))
			respondError(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}
