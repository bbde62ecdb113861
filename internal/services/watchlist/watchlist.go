package watchlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"shadowsentry/internal/domain/models"
	"shadowsentry/internal/lib/sl"
	"shadowsentry/internal/storage"
)

// Service manages the identifiers users ask the system to monitor.
type Service struct {
	logger *slog.Logger
	store  Store
}

type Store interface {
	SaveWatchlistItem(ctx context.Context, item *models.WatchlistItem) error
	WatchlistItemByID(ctx context.Context, id string) (*models.WatchlistItem, error)
	WatchlistItemsByUser(ctx context.Context, userID string) ([]models.WatchlistItem, error)
	WatchlistItemsByTypeValue(ctx context.Context, itemType, value string) ([]models.WatchlistItem, error)
	DeleteWatchlistItem(ctx context.Context, id string) error
	SetWatchlistLastChecked(ctx context.Context, id string, at time.Time) error
}

var (
	ErrItemNotFound = errors.New("watchlist item not found")
	ErrNotOwner     = errors.New("watchlist item belongs to another user")
	ErrEmptyValue   = errors.New("watchlist value is empty")
)

func New(logger *slog.Logger, store Store) *Service {
	return &Service{logger: logger, store: store}
}

// Add registers a new identifier to monitor. Type and value are normalized to
// lowercase before storage.
func (s *Service) Add(ctx context.Context, userID, itemType, value string) (*models.WatchlistItem, error) {
	const op = "watchlist.Add"
	log := s.logger.With(slog.String("op", op), slog.String("userID", userID))

	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyValue)
	}

	item := &models.WatchlistItem{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      strings.ToLower(strings.TrimSpace(itemType)),
		Value:     value,
		Active:    true,
		CreatedAt: time.Now(),
	}

	if err := s.store.SaveWatchlistItem(ctx, item); err != nil {
		log.Error("failed to save watchlist item", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("watchlist item added", slog.String("type", item.Type))
	return item, nil
}

// ItemsForUser returns every watchlist item owned by the user.
func (s *Service) ItemsForUser(ctx context.Context, userID string) ([]models.WatchlistItem, error) {
	const op = "watchlist.ItemsForUser"

	items, err := s.store.WatchlistItemsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

// Remove deletes an item after verifying ownership.
func (s *Service) Remove(ctx context.Context, userID, id string) error {
	const op = "watchlist.Remove"
	log := s.logger.With(slog.String("op", op), slog.String("id", id))

	item, err := s.store.WatchlistItemByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrWatchlistNotFound) {
			return fmt.Errorf("%s: %w", op, ErrItemNotFound)
		}
		log.Error("failed to get watchlist item", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if item.UserID != userID {
		return fmt.Errorf("%s: %w", op, ErrNotOwner)
	}

	if err := s.store.DeleteWatchlistItem(ctx, id); err != nil {
		log.Error("failed to delete watchlist item", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("watchlist item removed")
	return nil
}

// Matches returns the active items watching the given identifier.
func (s *Service) Matches(ctx context.Context, itemType, value string) ([]models.WatchlistItem, error) {
	const op = "watchlist.Matches"

	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return nil, nil
	}

	items, err := s.store.WatchlistItemsByTypeValue(ctx, strings.ToLower(itemType), value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	active := items[:0]
	for _, it := range items {
		if it.Active {
			active = append(active, it)
		}
	}
	return active, nil
}

// MarkChecked records when an item was last evaluated against the feeds.
func (s *Service) MarkChecked(ctx context.Context, id string, at time.Time) error {
	const op = "watchlist.MarkChecked"

	if err := s.store.SetWatchlistLastChecked(ctx, id, at); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
