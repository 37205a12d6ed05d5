// Package postgres provides Postgres-backed persistence for scraped reviews.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vinematch/vinematch/internal/wine"
)

const defaultTable = "wine_reviews"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for review rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ReviewStore upserts reviews keyed by URL.
type ReviewStore struct {
	pool  execCloser
	table string
}

// NewReviewStore connects to Postgres using cfg.
func NewReviewStore(ctx context.Context, cfg Config) (*ReviewStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ReviewStore{pool: pool, table: table}, nil
}

// NewReviewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewReviewStoreWithPool(pool execCloser, table string) (*ReviewStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ReviewStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ReviewStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the review table when missing.
func (s *ReviewStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	url         TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	scraped_at  TIMESTAMPTZ NOT NULL,
	wine_name   TEXT NOT NULL,
	region_1    TEXT,
	region_2    TEXT,
	region_3    TEXT,
	country     TEXT,
	score       TEXT,
	price       TEXT,
	winery      TEXT,
	variety     TEXT,
	wine_type   TEXT
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create review table: %w", err)
	}
	return nil
}

// UpsertReview inserts the review or refreshes the existing row for its URL.
func (s *ReviewStore) UpsertReview(ctx context.Context, record wine.ReviewRecord) error {
	if s == nil || s.pool == nil {
		return errors.New("review store is not configured")
	}
	r := record.Review
	if r.URL == "" {
		return errors.New("review url is required")
	}
	if r.Failed() {
		return fmt.Errorf("refusing to persist failed review %s", r.URL)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	url,
	run_id,
	scraped_at,
	wine_name,
	region_1,
	region_2,
	region_3,
	country,
	score,
	price,
	winery,
	variety,
	wine_type
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (url) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	scraped_at = EXCLUDED.scraped_at,
	wine_name = EXCLUDED.wine_name,
	region_1 = EXCLUDED.region_1,
	region_2 = EXCLUDED.region_2,
	region_3 = EXCLUDED.region_3,
	country = EXCLUDED.country,
	score = EXCLUDED.score,
	price = EXCLUDED.price,
	winery = EXCLUDED.winery,
	variety = EXCLUDED.variety,
	wine_type = EXCLUDED.wine_type`, s.table)

	args := []any{
		r.URL,
		record.RunID,
		record.ScrapedAt,
		r.Name,
		nullable(r.Region1),
		nullable(r.Region2),
		nullable(r.Region3),
		nullable(r.Country),
		nullable(r.Score),
		nullable(r.Price),
		nullable(r.Winery),
		nullable(r.Variety),
		nullable(r.WineType),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert review: %w", err)
	}
	return nil
}

// nullable maps missing fields to SQL NULL.
func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
