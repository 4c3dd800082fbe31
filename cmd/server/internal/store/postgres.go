package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/models"
)

// Compile-time check to ensure Postgres implements Store
var _ Store = (*Postgres)(nil)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS market_data (
	id          UUID PRIMARY KEY,
	category    TEXT NOT NULL,
	price       TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_market_data_category_observed
	ON market_data (category, observed_at DESC);
`

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Connect opens a pool and ensures the schema exists. The DDL is idempotent,
// so repeated startups are safe.
func Connect(ctx context.Context, url string, maxConns int) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := NewPostgres(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

func (s *Postgres) Insert(ctx context.Context, obs models.Observation) (models.Observation, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO market_data (id, category, price, observed_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		obs.ID, obs.Category, obs.Price, obs.ObservedAt)

	if err := row.Scan(&obs.CreatedAt, &obs.UpdatedAt); err != nil {
		return models.Observation{}, fmt.Errorf("insert market data: %w", err)
	}
	return obs, nil
}

func (s *Postgres) FindByID(ctx context.Context, id string) (models.Observation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, category, price, observed_at, created_at, updated_at
		FROM market_data WHERE id = $1`, id)

	obs, err := scanObservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Observation{}, ErrNotFound
	}
	if err != nil {
		return models.Observation{}, fmt.Errorf("find by id: %w", err)
	}
	return obs, nil
}

func (s *Postgres) FindByCategory(ctx context.Context, category string, limit int) ([]models.Observation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, category, price, observed_at, created_at, updated_at
		FROM market_data
		WHERE category = $1
		ORDER BY observed_at DESC, created_at DESC
		LIMIT $2`, category, limit)
	if err != nil {
		return nil, fmt.Errorf("find by category: %w", err)
	}
	defer rows.Close()

	return collectObservations(rows)
}

// AggregateLatestPerCategory keeps the newest LatestPerCategory rows of each
// category, newest first overall. Equal timestamps keep insertion order.
func (s *Postgres) AggregateLatestPerCategory(ctx context.Context, q Query) ([]models.Observation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, category, price, observed_at, created_at, updated_at
		FROM (
			SELECT *, row_number() OVER (
				PARTITION BY category
				ORDER BY observed_at DESC, created_at DESC
			) AS rn
			FROM market_data
			WHERE ($1::timestamptz IS NULL OR observed_at <= $1)
			  AND ($2::text = '' OR category = $2)
		) ranked
		WHERE rn <= $3
		ORDER BY observed_at DESC, created_at DESC`,
		nullableTime(q.Until), q.Category, LatestPerCategory)
	if err != nil {
		return nil, fmt.Errorf("aggregate latest per category: %w", err)
	}
	defer rows.Close()

	return collectObservations(rows)
}

func (s *Postgres) DeleteByID(ctx context.Context, id string) (models.Observation, error) {
	row := s.pool.QueryRow(ctx, `
		DELETE FROM market_data WHERE id = $1
		RETURNING id, category, price, observed_at, created_at, updated_at`, id)

	obs, err := scanObservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Observation{}, ErrNotFound
	}
	if err != nil {
		return models.Observation{}, fmt.Errorf("delete by id: %w", err)
	}
	return obs, nil
}

func scanObservation(row pgx.Row) (models.Observation, error) {
	var obs models.Observation
	err := row.Scan(&obs.ID, &obs.Category, &obs.Price, &obs.ObservedAt, &obs.CreatedAt, &obs.UpdatedAt)
	return obs, err
}

func collectObservations(rows pgx.Rows) ([]models.Observation, error) {
	var out []models.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan market data row: %w", err)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market data rows: %w", err)
	}
	return out, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
