// Package database provides Postgres-backed persistence for content metadata.
package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leobrain/crawler/internal/crawl"
)

// ErrNotFound is returned when no record exists for a URL.
var ErrNotFound = errors.New("content record not found")

// ErrDuplicateURL is returned when the URL uniqueness constraint fires. The
// pipeline treats it as an expected outcome, not an error.
var ErrDuplicateURL = errors.New("duplicate content url")

const uniqueViolationCode = "23505"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for content rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ContentStore implements crawl.ContentStore on a pgx pool. The table must
// carry a UNIQUE constraint on url; that constraint, not the FindByURL fast
// path, is the final arbiter under concurrent duplicate submissions.
type ContentStore struct {
	pool  querier
	table string
}

// NewContentStore connects a pool and returns a store.
func NewContentStore(ctx context.Context, cfg Config) (*ContentStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "contents"
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
	return &ContentStore{pool: pool, table: table}, nil
}

// NewContentStoreWithPool constructs a store from an existing pool
// (primarily for testing with pgxmock).
func NewContentStoreWithPool(pool querier, table string) (*ContentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "contents"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ContentStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ContentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// FindByURL returns the record stored for url, or ErrNotFound.
func (s *ContentStore) FindByURL(ctx context.Context, url string) (*crawl.ContentRecord, error) {
	query := fmt.Sprintf(`
SELECT source, url, title, author, published_at, body_ref, language, content_id, created_at
FROM %s
WHERE url = $1`, s.table)

	var (
		rec       crawl.ContentRecord
		author    *string
		published *time.Time
	)
	err := s.pool.QueryRow(ctx, query, url).Scan(
		&rec.Source,
		&rec.URL,
		&rec.Title,
		&author,
		&published,
		&rec.BodyRef,
		&rec.Language,
		&rec.ContentID,
		&rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find content by url: %w", err)
	}
	if author != nil {
		rec.Author = *author
	}
	rec.PublishedAt = published
	return &rec, nil
}

// Insert stores a new content record. A unique violation on url maps to
// ErrDuplicateURL.
func (s *ContentStore) Insert(ctx context.Context, record crawl.ContentRecord) error {
	if record.URL == "" {
		return fmt.Errorf("record url is required")
	}
	if record.ContentID == "" {
		return fmt.Errorf("record content id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	source,
	url,
	title,
	author,
	published_at,
	body_ref,
	language,
	content_id
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`, s.table)

	args := []any{
		record.Source,
		record.URL,
		record.Title,
		nullableString(record.Author),
		record.PublishedAt,
		record.BodyRef,
		record.Language,
		record.ContentID,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return fmt.Errorf("insert content %s: %w", record.URL, ErrDuplicateURL)
		}
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
