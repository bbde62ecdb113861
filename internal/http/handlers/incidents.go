package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shadowsentry/internal/domain/models"
	"shadowsentry/internal/lib/sl"
	"shadowsentry/internal/services/incident"
)

// IncidentHandler serves incident ingestion, search and risk lookups.
type IncidentHandler struct {
	logger    *slog.Logger
	incidents *incident.Service
	lookup    IncidentLookup
}

// IncidentLookup resolves incidents for an email, cache-first with a live
// feed fallback.
type IncidentLookup interface {
	FindOrFetch(ctx context.Context, email string) ([]models.BreachIncident, error)
}

func NewIncidentHandler(logger *slog.Logger, incidents *incident.Service, lookup IncidentLookup) *IncidentHandler {
	return &IncidentHandler{logger: logger, incidents: incidents, lookup: lookup}
}

type ingestRequest struct {
	Source       string         `json:"source"`
	SourceID     string         `json:"sourceId"`
	Type         string         `json:"type"`
	Email        string         `json:"email"`
	Password     string         `json:"password,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Username     string         `json:"username,omitempty"`
	Details      string         `json:"details,omitempty"`
	DiscoveredAt *time.Time     `json:"discoveredAt,omitempty"`
	RiskScore    int            `json:"riskScore,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
}

func (req *ingestRequest) toIncident() *models.BreachIncident {
	inc := &models.BreachIncident{
		Source:   req.Source,
		SourceID: req.SourceID,
		Type:     req.Type,
		Evidence: models.Evidence{
			Email:    req.Email,
			Phone:    req.Phone,
			Username: req.Username,
			Details:  req.Details,
		},
		DiscoveredAt: req.DiscoveredAt,
		RiskScore:    req.RiskScore,
		Meta:         req.Meta,
	}
	if inc.RiskScore == 0 {
		inc.RiskScore = 50
	}
	return inc
}

// HandleIngest handles POST /api/v1/incidents/ingest.
func (h *IncidentHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		respondError(w, http.StatusBadRequest, "source_required")
		return
	}

	stored, err := h.incidents.IngestWithPassword(r.Context(), req.toIncident(), req.Password)
	if err != nil {
		h.logger.Error("incident ingestion failed", sl.Err(err))
		respondError(w, http.StatusInternalServerError, "ingestion_failed")
		return
	}

	respondJSON(w, http.StatusCreated, stored)
}

// HandleIngestBatch handles POST /api/v1/incidents/ingest/batch.
func (h *IncidentHandler) HandleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request_body")
		return
	}

	incs := make([]*models.BreachIncident, 0, len(reqs))
	for i := range reqs {
		incs = append(incs, reqs[i].toIncident())
	}

	res, err := h.incidents.IngestBatch(r.Context(), incs)
	if err != nil {
		h.logger.Error("batch ingestion failed", sl.Err(err))
		respondError(w, http.StatusInternalServerError, "ingestion_failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"saved": res.Saved, "failed": res.Failed})
}

// HandleSearch handles GET /api/v1/incidents/search?email=&minRisk=.
func (h *IncidentHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	minRisk := 0
	if v := r.URL.Query().Get("minRisk"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_min_risk")
			return
		}
		minRisk = n
	}

	incs, err := h.incidents.Search(r.Context(), email, minRisk)
	if err != nil {
		h.logger.Error("incident search failed", sl.Err(err))
		respondError(w, http.StatusInternalServerError, "search_failed")
		return
	}

	respondJSON(w, http.StatusOK, incs)
}

// HandleRisk handles GET /api/v1/incidents/risk?email=. The lookup is
// cache-first; the live feeds are only consulted when nothing is stored.
func (h *IncidentHandler) HandleRisk(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		respondError(w, http.StatusBadRequest, "email_required")
		return
	}

	incs, err := h.lookup.FindOrFetch(r.Context(), email)
	if err != nil {
		h.logger.Error("risk lookup failed", sl.Err(err))
		respondError(w, http.StatusInternalServerError, "risk_lookup_failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"email":     incident.NormalizeEmail(email),
		"riskScore": incident.RiskScore(incs),
		"incidents": len(incs),
	})
}
