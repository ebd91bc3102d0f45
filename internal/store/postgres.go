// Package store provides the Postgres-backed catalog store.
package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cvsdeals/promocrawl/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for catalog rows.
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

// CatalogStore writes normalized product rows into Postgres. It implements
// catalog.Store.
type CatalogStore struct {
	pool  execCloser
	table string
}

// New creates a Postgres-backed CatalogStore using the provided config.
func New(ctx context.Context, cfg Config) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "products"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	return &CatalogStore{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string) (*CatalogStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "products"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CatalogStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertBatch writes one batch of rows in a single statement, keyed on the
// (brand_id, title) natural key. On conflict every mutable field is
// overwritten; a row is never duplicated.
//
// Assumed schema:
//
//	CREATE TABLE products (
//		brand_id       INT NOT NULL,
//		brand          TEXT NOT NULL,
//		title          TEXT NOT NULL,
//		price          INT NOT NULL CHECK (price >= 0),
//		image_url      TEXT,
//		category       TEXT NOT NULL,
//		promotion_type TEXT NOT NULL,
//		is_active      BOOLEAN NOT NULL,
//		source_url     TEXT NOT NULL,
//		observed_at    TIMESTAMPTZ NOT NULL,
//		PRIMARY KEY (brand_id, title)
//	);
func (s *CatalogStore) UpsertBatch(ctx context.Context, items []catalog.NormalizedItem) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("catalog store is not configured")
	}
	if len(items) == 0 {
		return nil
	}

	const cols = 10
	var sb strings.Builder
	fmt.Fprintf(&sb, `INSERT INTO %s (
	brand_id,
	brand,
	title,
	price,
	image_url,
	category,
	promotion_type,
	is_active,
	source_url,
	observed_at
) VALUES `, s.table)

	args := make([]any, 0, len(items)*cols)
	for i, item := range items {
		if item.Title == "" {
			return fmt.Errorf("item %d: title is required", i)
		}
		if !item.Source.Valid() {
			return fmt.Errorf("item %d (%s): unknown source %q", i, item.Title, item.Source)
		}
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * cols
		sb.WriteString("(")
		for c := 1; c <= cols; c++ {
			if c > 1 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, "$%d", base+c)
		}
		sb.WriteString(")")

		var imageURL any
		if item.ImageURL != "" {
			imageURL = item.ImageURL
		}
		args = append(args,
			item.Source.BrandID(),
			string(item.Source),
			item.Title,
			item.Price,
			imageURL,
			string(item.Category),
			string(item.Promotion),
			item.IsActive,
			item.SourceURL,
			item.ObservedAt,
		)
	}

	sb.WriteString(` ON CONFLICT (brand_id, title) DO UPDATE SET
	price = EXCLUDED.price,
	image_url = EXCLUDED.image_url,
	category = EXCLUDED.category,
	promotion_type = EXCLUDED.promotion_type,
	is_active = EXCLUDED.is_active,
	source_url = EXCLUDED.source_url,
	observed_at = EXCLUDED.observed_at`)

	if _, err := s.pool.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("upsert batch of %d: %w", len(items), err)
	}
	return nil
}

// DeactivateStale marks rows of one source as inactive when they were last
// observed before the cutoff, i.e. the source stopped listing them.
func (s *CatalogStore) DeactivateStale(ctx context.Context, source catalog.Source, before time.Time) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("catalog store is not configured")
	}
	if !source.Valid() {
		return 0, fmt.Errorf("unknown source %q", source)
	}
	query := fmt.Sprintf(
		`UPDATE %s SET is_active = FALSE WHERE brand_id = $1 AND is_active AND observed_at < $2`,
		s.table,
	)
	tag, err := s.pool.Exec(ctx, query, source.BrandID(), before)
	if err != nil {
		return 0, fmt.Errorf("deactivate stale rows: %w", err)
	}
	return tag.RowsAffected(), nil
}
