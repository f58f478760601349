package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessedMarketStore implements domain.ProcessedMarketStore using
// PostgreSQL. It is the durable dedup ledger; the Redis set in front of it is
// a cache and can be rebuilt from this table.
type ProcessedMarketStore struct {
	pool *pgxpool.Pool
}

// NewProcessedMarketStore creates a ProcessedMarketStore backed by the given
// pool.
func NewProcessedMarketStore(pool *pgxpool.Pool) *ProcessedMarketStore {
	return &ProcessedMarketStore{pool: pool}
}

// MarkProcessed records that a source listing key finished the pipeline with
// the given outcome. Re-marking an existing key updates the outcome.
func (s *ProcessedMarketStore) MarkProcessed(ctx context.Context, key, outcome string) error {
	const query = `
		INSERT INTO processed_markets (key, outcome)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET
			outcome      = EXCLUDED.outcome,
			processed_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, key, outcome); err != nil {
		return fmt.Errorf("postgres: mark processed %s: %w", key, err)
	}
	return nil
}

// IsProcessed reports whether a source listing key was already handled.
func (s *ProcessedMarketStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_markets WHERE key = $1)`, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check processed %s: %w", key, err)
	}
	return exists, nil
}

// FilterProcessed returns, for each input key, whether it was already handled.
func (s *ProcessedMarketStore) FilterProcessed(ctx context.Context, keys []string) (map[string]bool, error) {
	out := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	for _, k := range keys {
		out[k] = false
	}

	rows, err := s.pool.Query(ctx,
		`SELECT key FROM processed_markets WHERE key = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("postgres: filter processed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("postgres: scan processed key: %w", err)
		}
		out[key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: filter processed rows: %w", err)
	}
	return out, nil
}

// Count returns the size of the dedup ledger.
func (s *ProcessedMarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM processed_markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count processed markets: %w", err)
	}
	return count, nil
}
