package hibp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeed(baseURL string) *Feed {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, baseURL, "test-api-key", "test-agent", 5*time.Second)
}

func TestFetchByEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-api-key", r.Header.Get("hibp-api-key"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Contains(t, r.URL.Path, "/breachedaccount/alice@example.com")
		assert.Equal(t, "false", r.URL.Query().Get("truncateResponse"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"Name":"Adobe","Title":"Adobe","Domain":"adobe.com","BreachDate":"2013-10-04","PwnCount":152445165,"Description":"big one"},
			{"Name":"LinkedIn","Title":"","Domain":"linkedin.com","BreachDate":"2012-05-05","PwnCount":164611595,"Description":""}
		]`))
	}))
	defer srv.Close()

	feed := newTestFeed(srv.URL)

	incs, err := feed.FetchByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Len(t, incs, 2)

	adobe := incs[0]
	assert.Equal(t, "Adobe", adobe.Source)
	assert.Equal(t, "Adobe", adobe.SourceID)
	assert.Equal(t, "breach", adobe.Type)
	assert.Equal(t, "alice@example.com", adobe.Evidence.Email)
	assert.Equal(t, "big one", adobe.Evidence.Details)
	require.NotNil(t, adobe.DiscoveredAt)
	assert.Equal(t, 2013, adobe.DiscoveredAt.Year())
	assert.Greater(t, adobe.RiskScore, 50)
	assert.LessOrEqual(t, adobe.RiskScore, 95)

	// Missing title falls back to the breach name, missing description to a
	// synthesized one.
	linkedin := incs[1]
	assert.Equal(t, "LinkedIn", linkedin.Source)
	assert.Equal(t, "LinkedIn breach", linkedin.Evidence.Details)
}

func TestFetchByEmail_NotFoundIsEmpty(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusTooManyRequests} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		feed := newTestFeed(srv.URL)
		incs, err := feed.FetchByEmail(context.Background(), "nobody@example.com")
		require.NoError(t, err, "status %d", status)
		assert.Empty(t, incs, "status %d", status)

		srv.Close()
	}
}

func TestFetchByEmail_RetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"Name":"Adobe","Title":"Adobe","BreachDate":"2013-10-04","PwnCount":100}]`))
	}))
	defer srv.Close()

	feed := newTestFeed(srv.URL)

	incs, err := feed.FetchByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Len(t, incs, 1)
	assert.Equal(t, 3, attempts)
}

func TestFetchByEmail_BadRequestIsPermanent(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	feed := newTestFeed(srv.URL)

	_, err := feed.FetchByEmail(context.Background(), "alice@example.com")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestFetchByEmail_DisabledWithoutKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	feed := New(logger, "http://unused.invalid", "", "test-agent", time.Second)

	incs, err := feed.FetchByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Nil(t, incs)
}

func TestFetchByEmail_EmptyEmail(t *testing.T) {
	feed := newTestFeed("http://unused.invalid")

	incs, err := feed.FetchByEmail(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, incs)
}
