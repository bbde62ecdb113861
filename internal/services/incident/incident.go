package incident

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"shadowsentry/internal/domain/models"
	"shadowsentry/internal/lib/sl"
	"shadowsentry/internal/storage"
)

// Service deduplicates breach incidents by fingerprint and computes risk
// scores over them.
type Service struct {
	logger    *slog.Logger
	store     IncidentStore
	watchlist WatchlistMatcher
}

type IncidentStore interface {
	InsertIncident(ctx context.Context, inc *models.BreachIncident) error
	IncidentByFingerprint(ctx context.Context, fingerprint string) (*models.BreachIncident, error)
	IncrementOccurrence(ctx context.Context, fingerprint string, seenAt time.Time) (*models.BreachIncident, error)
	IncidentsByEmail(ctx context.Context, email string) ([]models.BreachIncident, error)
	IncidentsByMinRisk(ctx context.Context, minRisk int) ([]models.BreachIncident, error)
}

type WatchlistMatcher interface {
	Matches(ctx context.Context, itemType, value string) ([]models.WatchlistItem, error)
}

// BatchResult reports per-item outcomes of a batch ingestion.
type BatchResult struct {
	Saved  int
	Failed int
}

func New(logger *slog.Logger, store IncidentStore, watchlist WatchlistMatcher) *Service {
	return &Service{logger: logger, store: store, watchlist: watchlist}
}

// Fingerprint derives the deterministic content hash identifying a logical
// incident across sources: SHA-256 over source, source id and the normalized
// evidence email.
func Fingerprint(inc *models.BreachIncident) string {
	seed := strings.Join([]string{
		inc.Source,
		inc.SourceID,
		NormalizeEmail(inc.Evidence.Email),
	}, ":")
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// NormalizeEmail lowercases and trims an email for matching and hashing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Ingest stores an incident, merging it into an existing record when the
// fingerprint is already known. A duplicate-key race on insert is converted
// into an occurrence increment, never surfaced to the caller.
func (s *Service) Ingest(ctx context.Context, inc *models.BreachIncident) (*models.BreachIncident, error) {
	const op = "incident.Ingest"

	if inc == nil {
		return nil, fmt.Errorf("%s: nil incident", op)
	}

	log := s.logger.With(slog.String("op", op), slog.String("source", inc.Source))

	now := time.Now()
	inc.Evidence.Email = NormalizeEmail(inc.Evidence.Email)
	inc.Fingerprint = Fingerprint(inc)
	if inc.FirstSeen.IsZero() {
		inc.FirstSeen = now
	}
	if inc.LastSeen.IsZero() {
		inc.LastSeen = now
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = now
	}
	if inc.OccurrenceCount == 0 {
		inc.OccurrenceCount = 1
	}
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}

	if existing, err := s.store.IncidentByFingerprint(ctx, inc.Fingerprint); err == nil {
		return s.bump(ctx, existing.Fingerprint, now)
	} else if !errors.Is(err, storage.ErrIncidentNotFound) {
		log.Error("failed to look up fingerprint", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.linkWatchlist(ctx, inc)

	if err := s.store.InsertIncident(ctx, inc); err != nil {
		if errors.Is(err, storage.ErrIncidentExists) {
			// Lost the insert race; the uniqueness conflict is expected.
			log.Info("duplicate fingerprint, incrementing occurrence",
				slog.String("fingerprint", inc.Fingerprint))
			return s.bump(ctx, inc.Fingerprint, now)
		}
		log.Error("failed to insert incident", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("incident stored", slog.String("fingerprint", inc.Fingerprint))
	return inc, nil
}

// IngestWithPassword ingests an incident carrying a plaintext credential.
// Only a digest and a redacted display form are retained; the plaintext is
// discarded before the incident reaches the store.
func (s *Service) IngestWithPassword(ctx context.Context, inc *models.BreachIncident, rawPassword string) (*models.BreachIncident, error) {
	if rawPassword != "" {
		sum := sha256.Sum256([]byte(rawPassword))
		inc.Evidence.PasswordHash = hex.EncodeToString(sum[:])
		inc.Evidence.PasswordRedacted = Redact(rawPassword)
	}
	return s.Ingest(ctx, inc)
}

// IngestBatch processes items sequentially, isolating per-item failures: a
// bad item is skipped and counted, the rest of the batch proceeds.
func (s *Service) IngestBatch(ctx context.Context, incs []*models.BreachIncident) (BatchResult, error) {
	const op = "incident.IngestBatch"
	log := s.logger.With(slog.String("op", op))

	var res BatchResult
	for _, inc := range incs {
		if _, err := s.Ingest(ctx, inc); err != nil {
			log.Warn("batch item failed", sl.Err(err))
			res.Failed++
			continue
		}
		res.Saved++
	}

	log.Info("batch ingested", slog.Int("saved", res.Saved), slog.Int("failed", res.Failed))
	return res, nil
}

// IncidentsByEmail returns stored incidents matching the normalized email.
func (s *Service) IncidentsByEmail(ctx context.Context, email string) ([]models.BreachIncident, error) {
	const op = "incident.IncidentsByEmail"

	incs, err := s.store.IncidentsByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return incs, nil
}

// Search looks up incidents by evidence email or, failing that, by a minimum
// risk threshold.
func (s *Service) Search(ctx context.Context, email string, minRisk int) ([]models.BreachIncident, error) {
	const op = "incident.Search"

	if strings.TrimSpace(email) != "" {
		return s.IncidentsByEmail(ctx, email)
	}

	incs, err := s.store.IncidentsByMinRisk(ctx, minRisk)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return incs, nil
}

// RiskScore blends average per-incident severity with a saturating count
// bonus into a 0-100 score. An empty set scores 0.
func RiskScore(incidents []models.BreachIncident) int {
	if len(incidents) == 0 {
		return 0
	}

	var total int
	for _, inc := range incidents {
		total += inc.RiskScore
	}
	avg := float64(total) / float64(len(incidents))

	countFactor := math.Min(100, float64(len(incidents))*10)
	blended := 0.75*avg + 0.25*countFactor

	return clamp(roundHalfUp(blended), 0, 100)
}

// SeverityFromRecordCount maps an approximate affected-record count to a
// per-incident severity on a logarithmic scale, so one huge breach does not
// saturate the score while any confirmed breach keeps a nonzero floor.
func SeverityFromRecordCount(count int64) int {
	if count <= 0 {
		return 8
	}
	scaled := math.Log10(math.Max(1, float64(count)))*8 + 10
	return clamp(roundHalfUp(scaled), 5, 95)
}

// Redact produces a safe display form of a credential: first two and last two
// characters visible, the rest masked. Short values are fully masked.
func Redact(s string) string {
	n := len(s)
	if n == 0 {
		return ""
	}
	if n <= 4 {
		return strings.Repeat("*", n)
	}
	return s[:2] + strings.Repeat("*", n-4) + s[n-2:]
}

func (s *Service) bump(ctx context.Context, fingerprint string, seenAt time.Time) (*models.BreachIncident, error) {
	const op = "incident.Ingest"

	updated, err := s.store.IncrementOccurrence(ctx, fingerprint, seenAt)
	if err != nil {
		return nil, fmt.Errorf("%s: increment occurrence: %w", op, err)
	}
	return updated, nil
}

func (s *Service) linkWatchlist(ctx context.Context, inc *models.BreachIncident) {
	if inc.Evidence.Email == "" {
		return
	}

	matches, err := s.watchlist.Matches(ctx, models.WatchEmail, inc.Evidence.Email)
	if err != nil {
		s.logger.Warn("watchlist match failed", sl.Err(err))
		return
	}
	for _, m := range matches {
		inc.MatchedWatchlistIDs = append(inc.MatchedWatchlistIDs, m.ID)
		inc.LinkedUserIDs = appendUnique(inc.LinkedUserIDs, m.UserID)
	}
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
