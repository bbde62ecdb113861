package feeds

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowsentry/internal/domain/models"
	"shadowsentry/internal/services/incident"
	"shadowsentry/internal/storage"
)

type memStore struct {
	byFingerprint map[string]*models.BreachIncident
}

func newMemStore() *memStore {
	return &memStore{byFingerprint: make(map[string]*models.BreachIncident)}
}

func (m *memStore) InsertIncident(_ context.Context, inc *models.BreachIncident) error {
	if _, ok := m.byFingerprint[inc.Fingerprint]; ok {
		return storage.ErrIncidentExists
	}
	cp := *inc
	m.byFingerprint[inc.Fingerprint] = &cp
	return nil
}

func (m *memStore) IncidentByFingerprint(_ context.Context, fingerprint string) (*models.BreachIncident, error) {
	if inc, ok := m.byFingerprint[fingerprint]; ok {
		cp := *inc
		return &cp, nil
	}
	return nil, storage.ErrIncidentNotFound
}

func (m *memStore) IncrementOccurrence(_ context.Context, fingerprint string, seenAt time.Time) (*models.BreachIncident, error) {
	inc, ok := m.byFingerprint[fingerprint]
	if !ok {
		return nil, storage.ErrIncidentNotFound
	}
	inc.OccurrenceCount++
	inc.LastSeen = seenAt
	cp := *inc
	return &cp, nil
}

func (m *memStore) IncidentsByEmail(_ context.Context, email string) ([]models.BreachIncident, error) {
	var out []models.BreachIncident
	for _, inc := range m.byFingerprint {
		if inc.Evidence.Email == email {
			out = append(out, *inc)
		}
	}
	return out, nil
}

func (m *memStore) IncidentsByMinRisk(_ context.Context, minRisk int) ([]models.BreachIncident, error) {
	var out []models.BreachIncident
	for _, inc := range m.byFingerprint {
		if inc.RiskScore >= minRisk {
			out = append(out, *inc)
		}
	}
	return out, nil
}

type noMatcher struct{}

func (noMatcher) Matches(context.Context, string, string) ([]models.WatchlistItem, error) {
	return nil, nil
}

type stubConnector struct {
	name      string
	incidents []models.BreachIncident
	err       error
	calls     int
}

func (s *stubConnector) Name() string { return s.name }

func (s *stubConnector) FetchByEmail(context.Context, string) ([]models.BreachIncident, error) {
	s.calls++
	return s.incidents, s.err
}

func newOrchestrator(store *memStore, connectors ...Connector) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, incident.New(logger, store, noMatcher{}), connectors...)
}

func TestIngestForEmail(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	conn := &stubConnector{name: "stub", incidents: []models.BreachIncident{
		{Source: "BreachOne", SourceID: "one", RiskScore: 40},
		{Source: "BreachTwo", SourceID: "two", RiskScore: 60},
	}}

	o := newOrchestrator(store, conn)

	saved, err := o.IngestForEmail(ctx, "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	// Evidence email is filled in and normalized when the feed omits it.
	stored, err := store.IncidentsByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestIngestForEmail_FailingConnectorDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	broken := &stubConnector{name: "broken", err: errors.New("upstream down")}
	healthy := &stubConnector{name: "healthy", incidents: []models.BreachIncident{
		{Source: "BreachOne", SourceID: "one"},
	}}

	o := newOrchestrator(store, broken, healthy)

	saved, err := o.IngestForEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, saved)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, healthy.calls)
}

func TestIngestForEmail_EmptyEmail(t *testing.T) {
	o := newOrchestrator(newMemStore())

	_, err := o.IngestForEmail(context.Background(), "   ")
	require.Error(t, err)
}

func TestFindOrFetch_CacheFirst(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	conn := &stubConnector{name: "stub", incidents: []models.BreachIncident{
		{Source: "BreachOne", SourceID: "one", RiskScore: 40},
	}}

	o := newOrchestrator(store, conn)

	first, err := o.FindOrFetch(ctx, "carol@example.com")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, conn.calls)

	// Second lookup is served from the store; the connector stays idle.
	second, err := o.FindOrFetch(ctx, "carol@example.com")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 1, conn.calls)
}
