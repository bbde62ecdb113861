package watchlist

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowsentry/internal/domain/models"
	"shadowsentry/internal/storage"
)

type fakeStore struct {
	items map[string]*models.WatchlistItem
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: make(map[string]*models.WatchlistItem)}
}

func (f *fakeStore) SaveWatchlistItem(_ context.Context, item *models.WatchlistItem) error {
	cp := *item
	f.items[item.ID] = &cp
	return nil
}

func (f *fakeStore) WatchlistItemByID(_ context.Context, id string) (*models.WatchlistItem, error) {
	if it, ok := f.items[id]; ok {
		cp := *it
		return &cp, nil
	}
	return nil, storage.ErrWatchlistNotFound
}

func (f *fakeStore) WatchlistItemsByUser(_ context.Context, userID string) ([]models.WatchlistItem, error) {
	var out []models.WatchlistItem
	for _, it := range f.items {
		if it.UserID == userID {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (f *fakeStore) WatchlistItemsByTypeValue(_ context.Context, itemType, value string) ([]models.WatchlistItem, error) {
	var out []models.WatchlistItem
	for _, it := range f.items {
		if it.Type == itemType && it.Value == value {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteWatchlistItem(_ context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return storage.ErrWatchlistNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeStore) SetWatchlistLastChecked(_ context.Context, id string, at time.Time) error {
	it, ok := f.items[id]
	if !ok {
		return storage.ErrWatchlistNotFound
	}
	it.LastCheckedAt = &at
	return nil
}

func newTestService(store Store) *Service {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), store)
}

func TestAdd_NormalizesValue(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())

	item, err := svc.Add(ctx, "u1", "Email", "  Alice@Example.COM ")
	require.NoError(t, err)

	assert.Equal(t, "email", item.Type)
	assert.Equal(t, "alice@example.com", item.Value)
	assert.True(t, item.Active)
	assert.NotEmpty(t, item.ID)
}

func TestAdd_EmptyValue(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.Add(context.Background(), "u1", models.WatchEmail, "   ")
	require.ErrorIs(t, err, ErrEmptyValue)
}

func TestRemove_Ownership(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	item, err := svc.Add(ctx, "u1", models.WatchEmail, "alice@example.com")
	require.NoError(t, err)

	err = svc.Remove(ctx, "u2", item.ID)
	require.ErrorIs(t, err, ErrNotOwner)

	require.NoError(t, svc.Remove(ctx, "u1", item.ID))

	err = svc.Remove(ctx, "u1", item.ID)
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestMatches_FiltersInactive(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	active, err := svc.Add(ctx, "u1", models.WatchEmail, "alice@example.com")
	require.NoError(t, err)

	dormant, err := svc.Add(ctx, "u2", models.WatchEmail, "alice@example.com")
	require.NoError(t, err)
	store.items[dormant.ID].Active = false

	matches, err := svc.Matches(ctx, models.WatchEmail, "ALICE@example.com")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, active.ID, matches[0].ID)

	empty, err := svc.Matches(ctx, models.WatchEmail, "  ")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMarkChecked(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)

	item, err := svc.Add(ctx, "u1", models.WatchEmail, "alice@example.com")
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, svc.MarkChecked(ctx, item.ID, now))

	stored, err := store.WatchlistItemByID(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastCheckedAt)
	assert.WithinDuration(t, now, *stored.LastCheckedAt, time.Second)
}
