package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/models"
)

const (
	keyPrefix = "market-data"

	// TTL is a safety net against missed invalidations; writes invalidate
	// eagerly, so expiry only matters when an invalidation is lost.
	TTL = 1 * time.Hour
)

// Snapshot caches aggregated latest-per-category views. It is strictly
// best-effort: every failure degrades to a store read, never to a request error.
type Snapshot struct {
	client *redis.Client
	logger *zap.Logger
}

func NewSnapshot(client *redis.Client, logger *zap.Logger) *Snapshot {
	return &Snapshot{client: client, logger: logger}
}

// Key derives the deterministic cache key for a query shape. Whole snapshot
// when both parts are empty; day and category narrow the key when present.
func Key(day, category string) string {
	k := keyPrefix + ":latest"
	if day != "" {
		k = keyPrefix + ":" + day
	}
	if category != "" {
		k += ":" + category
	}
	return k
}

// Lookup returns the decoded snapshot and true on a hit. Any redis or decode
// failure is logged and reported as a miss.
func (s *Snapshot) Lookup(ctx context.Context, key string) ([]models.Observation, bool) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("Cache read failed, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	var snap []models.Observation
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.logger.Warn("Cache entry corrupt, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return snap, true
}

// Fill replaces the snapshot under key wholesale (never merged in place).
func (s *Snapshot) Fill(ctx context.Context, key string, snap []models.Observation) {
	raw, err := json.Marshal(snap)
	if err != nil {
		s.logger.Error("Cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, key, raw, TTL).Err(); err != nil {
		s.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops the whole-snapshot key. Called synchronously on every
// successful write or delete before the handler reports success.
func (s *Snapshot) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		keys = []string{Key("", "")}
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("Cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
