package store

import (
	"context"
	"errors"
	"time"

	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/models"
)

// ErrNotFound distinguishes "record absent" from transport/query failures.
var ErrNotFound = errors.New("market data not found")

// LatestPerCategory is the fixed bound on entries each category contributes
// to an aggregated snapshot.
const LatestPerCategory = 10

// Query narrows an aggregated read. Zero value means the whole snapshot.
type Query struct {
	Until    time.Time // only observations at or before this instant; zero = no bound
	Category string    // single category; empty = all categories
}

// Store is the durable price store boundary. Implementations must treat
// observations as append-only: no in-place updates besides store timestamps.
type Store interface {
	Insert(ctx context.Context, obs models.Observation) (models.Observation, error)
	FindByID(ctx context.Context, id string) (models.Observation, error)
	FindByCategory(ctx context.Context, category string, limit int) ([]models.Observation, error)
	AggregateLatestPerCategory(ctx context.Context, q Query) ([]models.Observation, error)
	DeleteByID(ctx context.Context, id string) (models.Observation, error)
}
