package hibp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"

	"shadowsentry/internal/domain/models"
	"shadowsentry/internal/lib/sl"
	"shadowsentry/internal/services/incident"
)

const (
	connectorName = "hibp"
	maxTries      = 3
)

// Feed queries the Have I Been Pwned v3 API for breached accounts.
type Feed struct {
	logger    *slog.Logger
	client    *http.Client
	baseURL   string
	apiKey    string
	userAgent string
}

// breach is the subset of the HIBP breach object this connector consumes.
type breach struct {
	Name        string `json:"Name"`
	Title       string `json:"Title"`
	Domain      string `json:"Domain"`
	BreachDate  string `json:"BreachDate"`
	PwnCount    int64  `json:"PwnCount"`
	Description string `json:"Description"`
}

func New(logger *slog.Logger, baseURL, apiKey, userAgent string, timeout time.Duration) *Feed {
	return &Feed{
		logger:    logger,
		client:    &http.Client{Timeout: timeout},
		baseURL:   baseURL,
		apiKey:    apiKey,
		userAgent: userAgent,
	}
}

func (f *Feed) Name() string { return connectorName }

// FetchByEmail returns the breaches HIBP knows for the email. "Not found",
// bad credentials and rate limiting all yield an empty result, not an error;
// transient failures are retried with exponential backoff before giving up.
func (f *Feed) FetchByEmail(ctx context.Context, email string) ([]models.BreachIncident, error) {
	const op = "hibp.FetchByEmail"
	log := f.logger.With(slog.String("op", op))

	if email == "" {
		return nil, nil
	}
	if f.apiKey == "" {
		log.Warn("hibp api key not configured, connector disabled")
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/breachedaccount/%s?truncateResponse=false&includeUnverified=true",
		f.baseURL, url.PathEscape(email))

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return f.fetch(ctx, endpoint)
	}, backoff.WithBackOff(expBackoff), backoff.WithMaxTries(maxTries))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if body == nil {
		return nil, nil
	}

	var breaches []breach
	if err := json.Unmarshal(body, &breaches); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}

	incidents := make([]models.BreachIncident, 0, len(breaches))
	for _, b := range breaches {
		incidents = append(incidents, f.toIncident(b, email))
	}

	log.Info("fetched breaches", slog.String("email", email), slog.Int("count", len(incidents)))
	return incidents, nil
}

// fetch performs one request. A nil, nil return means a non-fatal empty
// result (404, 403, 429). Errors wrapped with backoff.Permanent are not
// retried.
func (f *Feed) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("hibp-api-key", f.apiKey)
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusForbidden:
		f.logger.Error("hibp rejected api key")
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		f.logger.Warn("rate limited by hibp")
		return nil, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("hibp returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("hibp returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Feed) toIncident(b breach, email string) models.BreachIncident {
	now := time.Now()

	title := b.Title
	if title == "" {
		title = b.Name
	}
	if title == "" {
		title = "Unknown"
	}

	details := b.Description
	if details == "" {
		details = title + " breach"
	}

	inc := models.BreachIncident{
		Source:   title,
		SourceID: b.Name,
		Type:     "breach",
		Evidence: models.Evidence{
			Email:   email,
			Details: details,
		},
		FirstSeen:       now,
		LastSeen:        now,
		RiskScore:       incident.SeverityFromRecordCount(b.PwnCount),
		OccurrenceCount: 1,
	}

	if t, err := time.Parse("2006-01-02", b.BreachDate); err == nil {
		inc.DiscoveredAt = &t
	} else if b.BreachDate != "" {
		f.logger.Debug("unparseable breach date", sl.Err(err))
	}

	return inc
}
