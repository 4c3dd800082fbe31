package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/cache"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/publish"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/store"
	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/models"
)

// ErrInvalidInput marks validation failures on the write path.
var ErrInvalidInput = errors.New("invalid market data")

// Service is the write path: persist, invalidate, regenerate, publish.
// Persistence is the only step allowed to fail a request; cache and broker
// trouble is logged and absorbed.
type Service struct {
	store     store.Store
	cache     *cache.Snapshot
	publisher publish.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(st store.Store, ch *cache.Snapshot, pub publish.Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:     st,
		cache:     ch,
		publisher: pub,
		logger:    logger,
		now:       time.Now,
	}
}

// Create persists a candidate observation and distributes it. The returned
// observation carries its assigned identity and store timestamps; it is
// returned on persistence success regardless of cache or publish outcome.
func (s *Service) Create(ctx context.Context, category, price string, observedAt time.Time) (models.Observation, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return models.Observation{}, fmt.Errorf("%w: category is required", ErrInvalidInput)
	}
	if _, err := decimal.NewFromString(price); err != nil {
		return models.Observation{}, fmt.Errorf("%w: price %q is not a decimal", ErrInvalidInput, price)
	}
	if observedAt.IsZero() {
		observedAt = s.now()
	}

	obs := models.Observation{
		ID:         uuid.NewString(),
		Category:   category,
		Price:      price,
		ObservedAt: observedAt,
	}

	persisted, err := s.store.Insert(ctx, obs)
	if err != nil {
		// Persistence failure aborts everything downstream.
		return models.Observation{}, err
	}

	s.refreshSnapshot(ctx)

	if err := s.publisher.PublishObservation(ctx, persisted); err != nil {
		s.logger.Error("Publish failed after persist",
			zap.String("id", persisted.ID), zap.String("category", persisted.Category), zap.Error(err))
	}

	return persisted, nil
}

// Delete removes an observation and distributes a tombstone on both routing
// dimensions. Returns store.ErrNotFound when the id does not exist.
func (s *Service) Delete(ctx context.Context, id string) (models.Observation, error) {
	deleted, err := s.store.DeleteByID(ctx, id)
	if err != nil {
		return models.Observation{}, err
	}

	s.refreshSnapshot(ctx)

	if err := s.publisher.PublishTombstone(ctx, deleted.Category, deleted.ID); err != nil {
		s.logger.Error("Tombstone publish failed",
			zap.String("id", deleted.ID), zap.String("category", deleted.Category), zap.Error(err))
	}

	return deleted, nil
}

// ListLatest serves the aggregated latest-per-category view cache-aside. day
// (zero = today/no bound) and category narrow both the cache key and the
// store aggregation.
func (s *Service) ListLatest(ctx context.Context, day time.Time, category string) ([]models.Observation, error) {
	var dayKey string
	var until time.Time
	if !day.IsZero() {
		dayKey = day.Format("2006-01-02")
		until = endOfDay(day)
	}

	key := cache.Key(dayKey, category)
	if snap, ok := s.cache.Lookup(ctx, key); ok {
		return snap, nil
	}

	snap, err := s.store.AggregateLatestPerCategory(ctx, store.Query{Until: until, Category: category})
	if err != nil {
		return nil, err
	}

	if len(snap) > 0 {
		s.cache.Fill(ctx, key, snap)
	}
	return snap, nil
}

// refreshSnapshot invalidates the whole-snapshot key and proactively
// repopulates it so the next read is a hit instead of paying the aggregation
// after a burst of writes. Best-effort throughout.
func (s *Service) refreshSnapshot(ctx context.Context) {
	s.cache.Invalidate(ctx)

	snap, err := s.store.AggregateLatestPerCategory(ctx, store.Query{})
	if err != nil {
		s.logger.Warn("Snapshot regeneration failed, next read repopulates lazily", zap.Error(err))
		return
	}
	if len(snap) > 0 {
		s.cache.Fill(ctx, cache.Key("", ""), snap)
	}
}

func endOfDay(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), day.Location())
}
