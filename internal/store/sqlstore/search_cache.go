package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pliu/gemchat/internal/models"
	"github.com/pliu/gemchat/internal/store"
)

// GetCachedSearch returns the newest cached payload for query and source, or
// ErrNotFound when there is none or it has expired at now.
func (s *SQLStore) GetCachedSearch(query, source string, now time.Time) (*models.SearchResultCache, error) {
	q := s.rebind(`SELECT id, query, result_data, source, cached_at, expires_at
		FROM search_results WHERE query = ? AND source = ? ORDER BY id DESC LIMIT 1`)

	var (
		entry     models.SearchResultCache
		data      string
		expiresAt sql.NullTime
	)
	err := s.db.QueryRow(q, query, source).Scan(&entry.ID, &entry.Query, &data, &entry.Source, &entry.CachedAt, &expiresAt)
	if err != nil {
		return nil, notFound(err)
	}
	entry.ResultData = []byte(data)
	if expiresAt.Valid {
		entry.ExpiresAt = &expiresAt.Time
	}
	if entry.Expired(now) {
		return nil, store.ErrNotFound
	}
	return &entry, nil
}

func (s *SQLStore) PutCachedSearch(entry *models.SearchResultCache) error {
	if entry.CachedAt.IsZero() {
		entry.CachedAt = s.now()
	}
	q := s.rebind("INSERT INTO search_results (query, result_data, source, cached_at, expires_at) VALUES (?, ?, ?, ?, ?) RETURNING id")
	err := s.db.QueryRow(q, entry.Query, string(entry.ResultData), entry.Source, entry.CachedAt, entry.ExpiresAt).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to cache search result: %w", err)
	}
	return nil
}

// PruneSearchCache deletes every entry expired at now and reports how many
// were removed.
func (s *SQLStore) PruneSearchCache(now time.Time) (int64, error) {
	rows, err := s.db.Query("SELECT id, expires_at FROM search_results WHERE expires_at IS NOT NULL")
	if err != nil {
		return 0, fmt.Errorf("failed to scan search cache: %w", err)
	}
	var expired []int64
	for rows.Next() {
		var (
			id        int64
			expiresAt time.Time
		)
		if err := rows.Scan(&id, &expiresAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan search cache: %w", err)
		}
		if !now.Before(expiresAt) {
			expired = append(expired, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	if len(expired) == 0 {
		return 0, nil
	}
	var removed int64
	err = s.withTx(func(tx *sql.Tx) error {
		del := s.rebind("DELETE FROM search_results WHERE id = ?")
		for _, id := range expired {
			result, err := tx.Exec(del, id)
			if err != nil {
				return fmt.Errorf("failed to prune search cache: %w", err)
			}
			n, _ := result.RowsAffected()
			removed += n
		}
		return nil
	})
	return removed, err
}
