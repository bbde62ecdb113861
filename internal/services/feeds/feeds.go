package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"shadowsentry/internal/domain/models"
	"shadowsentry/internal/lib/sl"
	"shadowsentry/internal/services/incident"
)

// Connector is a pluggable adapter to one external breach-data provider.
// Implementations return an empty slice for "no breaches found" and reserve
// errors for transport or auth failures.
type Connector interface {
	Name() string
	FetchByEmail(ctx context.Context, email string) ([]models.BreachIncident, error)
}

// Orchestrator fans identity lookups out across the registered connectors and
// funnels the results through the deduplication engine.
type Orchestrator struct {
	logger     *slog.Logger
	connectors []Connector
	incidents  *incident.Service
}

func New(logger *slog.Logger, incidents *incident.Service, connectors ...Connector) *Orchestrator {
	return &Orchestrator{
		logger:     logger,
		connectors: connectors,
		incidents:  incidents,
	}
}

// IngestForEmail queries every connector for the email and ingests whatever
// comes back. A failing connector is logged and skipped; it never aborts the
// others. Returns the number of incidents persisted.
func (o *Orchestrator) IngestForEmail(ctx context.Context, email string) (int, error) {
	const op = "feeds.IngestForEmail"
	log := o.logger.With(slog.String("op", op))

	email = incident.NormalizeEmail(email)
	if email == "" {
		return 0, fmt.Errorf("%s: empty email", op)
	}

	total := 0
	for _, c := range o.connectors {
		incs, err := c.FetchByEmail(ctx, email)
		if err != nil {
			log.Error("connector failed, skipping",
				slog.String("connector", c.Name()), sl.Err(err))
			continue
		}
		if len(incs) == 0 {
			log.Info("no incidents from connector", slog.String("connector", c.Name()))
			continue
		}

		for i := range incs {
			if incs[i].Evidence.Email == "" {
				incs[i].Evidence.Email = email
			}
			if _, err := o.incidents.Ingest(ctx, &incs[i]); err != nil {
				log.Warn("failed to ingest incident",
					slog.String("connector", c.Name()), sl.Err(err))
				continue
			}
			total++
		}

		log.Info("connector processed",
			slog.String("connector", c.Name()),
			slog.Int("incidents", len(incs)))
	}

	log.Info("feed ingestion completed", slog.Int("total", total))
	return total, nil
}

// FindOrFetch serves on-demand lookups cache-first: stored incidents win;
// only when the store has none are the live feeds consulted, and their
// results persisted for future hits.
func (o *Orchestrator) FindOrFetch(ctx context.Context, email string) ([]models.BreachIncident, error) {
	const op = "feeds.FindOrFetch"
	log := o.logger.With(slog.String("op", op))

	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%s: empty email", op)
	}

	cached, err := o.incidents.IncidentsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(cached) > 0 {
		log.Info("serving cached incidents", slog.Int("count", len(cached)))
		return cached, nil
	}

	if _, err := o.IngestForEmail(ctx, email); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	fresh, err := o.incidents.IncidentsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return fresh, nil
}
