package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/skehlet/dailymail/internal/domain"
)

// FetchCacheRepository stores the HTTP validators last seen per feed.
type FetchCacheRepository struct {
	db *sqlx.DB
}

// NewFetchCacheRepository creates a fetch cache repository.
func NewFetchCacheRepository(db *sqlx.DB) *FetchCacheRepository {
	return &FetchCacheRepository{db: db}
}

// Get returns the cached validators for sourceURL, or nil when the feed has
// never been fetched successfully.
func (r *FetchCacheRepository) Get(ctx context.Context, sourceURL string) (*domain.FetchCache, error) {
	query := `SELECT source_url, etag, last_modified, updated_at FROM fetch_cache WHERE source_url = $1`

	var cache domain.FetchCache
	err := r.db.GetContext(ctx, &cache, query, sourceURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get fetch cache", err)
	}

	return &cache, nil
}

// Upsert overwrites the validators for sourceURL. Empty strings are stored
// as-is when the server sent no validator.
func (r *FetchCacheRepository) Upsert(ctx context.Context, sourceURL, etag, lastModified string) error {
	query := `
		INSERT INTO fetch_cache (source_url, etag, last_modified, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (source_url) DO UPDATE
		SET etag = EXCLUDED.etag, last_modified = EXCLUDED.last_modified, updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query, sourceURL, etag, lastModified)
	return storeErr("upsert fetch cache", err)
}

// List returns every cached feed, ordered by URL.
func (r *FetchCacheRepository) List(ctx context.Context) ([]domain.FetchCache, error) {
	query := `SELECT source_url, etag, last_modified, updated_at FROM fetch_cache ORDER BY source_url`

	var caches []domain.FetchCache
	if err := r.db.SelectContext(ctx, &caches, query); err != nil {
		return nil, storeErr("list fetch cache", err)
	}

	return caches, nil
}
