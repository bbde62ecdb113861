package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"shadowsentry/internal/lib/sl"
	"shadowsentry/internal/services/incident"
)

// FeedHandler triggers on-demand scans against the external breach feeds.
type FeedHandler struct {
	logger *slog.Logger
	feeds  FeedScanner
}

// FeedScanner runs every registered connector for an email and persists the
// results.
type FeedScanner interface {
	IngestForEmail(ctx context.Context, email string) (int, error)
}

func NewFeedHandler(logger *slog.Logger, feeds FeedScanner) *FeedHandler {
	return &FeedHandler{logger: logger, feeds: feeds}
}

type scanRequest struct {
	Email string `json:"email"`
}

// HandleScan handles POST /api/v1/feeds/scan.
func (h *FeedHandler) HandleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		respondError(w, http.StatusBadRequest, "email_required")
		return
	}

	saved, err := h.feeds.IngestForEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("feed scan failed", sl.Err(err))
		respondError(w, http.StatusInternalServerError, "scan_failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"email": incident.NormalizeEmail(req.Email),
		"saved": saved,
	})
}
