package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// PendingMarketStore implements domain.PendingMarketStore using PostgreSQL.
type PendingMarketStore struct {
	pool *pgxpool.Pool
}

// NewPendingMarketStore creates a PendingMarketStore backed by the given pool.
func NewPendingMarketStore(pool *pgxpool.Pool) *PendingMarketStore {
	return &PendingMarketStore{pool: pool}
}

const pendingCols = `poly_id, question, category, options, expiry,
	event_id, event_name, option_images, original_market_ids, raw,
	posted, slack_message_id, needs_manual_categorization,
	fetched_at, updated_at`

// Upsert inserts or refreshes a pending market keyed by poly_id. Posting state
// is preserved on conflict so a re-fetch never un-posts a message.
func (s *PendingMarketStore) Upsert(ctx context.Context, pm domain.PendingMarket) error {
	options, err := json.Marshal(pm.Options)
	if err != nil {
		return fmt.Errorf("postgres: encode options for %s: %w", pm.PolyID, err)
	}
	images, err := json.Marshal(pm.OptionImages)
	if err != nil {
		return fmt.Errorf("postgres: encode option images for %s: %w", pm.PolyID, err)
	}
	originals, err := json.Marshal(pm.OriginalMarketIDs)
	if err != nil {
		return fmt.Errorf("postgres: encode original ids for %s: %w", pm.PolyID, err)
	}

	const query = `
		INSERT INTO pending_markets (
			poly_id, question, category, options, expiry,
			event_id, event_name, option_images, original_market_ids, raw,
			needs_manual_categorization, fetched_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, COALESCE($12, NOW()), NOW()
		)
		ON CONFLICT (poly_id) DO UPDATE SET
			question                    = EXCLUDED.question,
			category                    = EXCLUDED.category,
			options                     = EXCLUDED.options,
			expiry                      = EXCLUDED.expiry,
			event_id                    = EXCLUDED.event_id,
			event_name                  = EXCLUDED.event_name,
			option_images               = EXCLUDED.option_images,
			original_market_ids         = EXCLUDED.original_market_ids,
			raw                         = EXCLUDED.raw,
			needs_manual_categorization = EXCLUDED.needs_manual_categorization,
			updated_at                  = NOW()`

	var fetchedAt any
	if !pm.FetchedAt.IsZero() {
		fetchedAt = pm.FetchedAt
	}
	var raw any
	if len(pm.Raw) > 0 {
		raw = []byte(pm.Raw)
	}

	_, err = s.pool.Exec(ctx, query,
		pm.PolyID, pm.Question, pm.Category, options, pm.Expiry,
		pm.EventID, pm.EventName, images, originals, raw,
		pm.NeedsManualCategorization, fetchedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert pending market %s: %w", pm.PolyID, err)
	}
	return nil
}

func scanPendingMarket(row pgx.Row) (domain.PendingMarket, error) {
	var pm domain.PendingMarket
	var options, images, originals, raw []byte
	err := row.Scan(
		&pm.PolyID, &pm.Question, &pm.Category, &options, &pm.Expiry,
		&pm.EventID, &pm.EventName, &images, &originals, &raw,
		&pm.Posted, &pm.SlackMessageID, &pm.NeedsManualCategorization,
		&pm.FetchedAt, &pm.UpdatedAt,
	)
	if err != nil {
		return domain.PendingMarket{}, err
	}
	if err := json.Unmarshal(options, &pm.Options); err != nil {
		return domain.PendingMarket{}, fmt.Errorf("decode options: %w", err)
	}
	if err := json.Unmarshal(images, &pm.OptionImages); err != nil {
		return domain.PendingMarket{}, fmt.Errorf("decode option images: %w", err)
	}
	if err := json.Unmarshal(originals, &pm.OriginalMarketIDs); err != nil {
		return domain.PendingMarket{}, fmt.Errorf("decode original ids: %w", err)
	}
	pm.Raw = json.RawMessage(raw)
	return pm, nil
}

// GetByPolyID retrieves a pending market by its Polymarket id.
func (s *PendingMarketStore) GetByPolyID(ctx context.Context, polyID string) (domain.PendingMarket, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pendingCols+` FROM pending_markets WHERE poly_id = $1`, polyID)
	pm, err := scanPendingMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PendingMarket{}, domain.ErrNotFound
		}
		return domain.PendingMarket{}, fmt.Errorf("postgres: get pending market %s: %w", polyID, err)
	}
	return pm, nil
}

// ListUnposted returns pending markets not yet posted for review, oldest first.
func (s *PendingMarketStore) ListUnposted(ctx context.Context, limit int) ([]domain.PendingMarket, error) {
	query := `SELECT ` + pendingCols + ` FROM pending_markets
		WHERE posted = FALSE ORDER BY fetched_at ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.list(ctx, query, args...)
}

// ListPosted returns pending markets currently awaiting a review decision.
func (s *PendingMarketStore) ListPosted(ctx context.Context) ([]domain.PendingMarket, error) {
	return s.list(ctx,
		`SELECT `+pendingCols+` FROM pending_markets
		WHERE posted = TRUE ORDER BY fetched_at ASC`)
}

func (s *PendingMarketStore) list(ctx context.Context, query string, args ...any) ([]domain.PendingMarket, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending markets: %w", err)
	}
	defer rows.Close()

	var out []domain.PendingMarket
	for rows.Next() {
		pm, err := scanPendingMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pending market: %w", err)
		}
		out = append(out, pm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list pending markets rows: %w", err)
	}
	return out, nil
}

// MarkPosted records the review message id for a pending market.
func (s *PendingMarketStore) MarkPosted(ctx context.Context, polyID, slackMsgID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pending_markets
		SET posted = TRUE, slack_message_id = $2, updated_at = NOW()
		WHERE poly_id = $1`, polyID, slackMsgID)
	if err != nil {
		return fmt.Errorf("postgres: mark pending market %s posted: %w", polyID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a pending market once its decision has been applied.
func (s *PendingMarketStore) Delete(ctx context.Context, polyID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM pending_markets WHERE poly_id = $1`, polyID)
	if err != nil {
		return fmt.Errorf("postgres: delete pending market %s: %w", polyID, err)
	}
	return nil
}

// Count returns the number of pending markets.
func (s *PendingMarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM pending_markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count pending markets: %w", err)
	}
	return count, nil
}
