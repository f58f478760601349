package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, question, type, category, sub_category, options, expiry,
	original_market_id, status, banner_uri, icon_url, option_images,
	event_id, event_name, slack_message_id, apechain_market_id, blockchain_tx,
	failure_reason, created_at, updated_at`

// Create inserts a newly promoted market. A second promotion of the same
// source market violates the original_market_id constraint and is reported as
// domain.ErrAlreadyExists.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	options, err := json.Marshal(m.Options)
	if err != nil {
		return fmt.Errorf("postgres: encode options for %s: %w", m.ID, err)
	}
	images, err := json.Marshal(m.OptionImages)
	if err != nil {
		return fmt.Errorf("postgres: encode option images for %s: %w", m.ID, err)
	}

	const query = `
		INSERT INTO markets (
			id, question, type, category, sub_category, options, expiry,
			original_market_id, status, banner_uri, icon_url, option_images,
			event_id, event_name, slack_message_id,
			apechain_market_id, blockchain_tx, failure_reason, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, NOW(), NOW()
		)`

	_, err = s.pool.Exec(ctx, query,
		m.ID, m.Question, m.Type, m.Category, m.SubCategory, options, m.Expiry,
		m.OriginalMarketID, string(m.Status), m.BannerURI, m.IconURL, images,
		m.EventID, m.EventName, m.SlackMessageID,
		m.ApechainMarketID, m.BlockchainTx, m.FailureReason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status string
	var options, images []byte
	err := row.Scan(
		&m.ID, &m.Question, &m.Type, &m.Category, &m.SubCategory, &options, &m.Expiry,
		&m.OriginalMarketID, &status, &m.BannerURI, &m.IconURL, &images,
		&m.EventID, &m.EventName, &m.SlackMessageID,
		&m.ApechainMarketID, &m.BlockchainTx, &m.FailureReason,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	if err := json.Unmarshal(options, &m.Options); err != nil {
		return domain.Market{}, fmt.Errorf("decode options: %w", err)
	}
	if err := json.Unmarshal(images, &m.OptionImages); err != nil {
		return domain.Market{}, fmt.Errorf("decode option images: %w", err)
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetByPolyID retrieves a market by the source market id it was promoted from.
func (s *MarketStore) GetByPolyID(ctx context.Context, polyID string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE original_market_id = $1`, polyID)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by poly id %s: %w", polyID, err)
	}
	return m, nil
}

// UpdateStatus moves a market to a new lifecycle status.
func (s *MarketStore) UpdateStatus(ctx context.Context, id string, status domain.MarketStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update market %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetSlackMessage records the deployment review message id for a market.
func (s *MarketStore) SetSlackMessage(ctx context.Context, id, slackMsgID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET slack_message_id = $2, updated_at = NOW() WHERE id = $1`,
		id, slackMsgID)
	if err != nil {
		return fmt.Errorf("postgres: set market %s slack message: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetDeployment records the on-chain outcome of a deployment attempt in one
// write: the transaction hash, the resolved market id when known, and the
// resulting status.
func (s *MarketStore) SetDeployment(ctx context.Context, id, apechainMarketID, txHash string, status domain.MarketStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets
		SET apechain_market_id = $2, blockchain_tx = $3, status = $4, updated_at = NOW()
		WHERE id = $1`,
		id, apechainMarketID, txHash, string(status))
	if err != nil {
		return fmt.Errorf("postgres: set market %s deployment: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetFailure marks a market as terminally failed to deploy and records why,
// so the cause survives operator log rotation.
func (s *MarketStore) SetFailure(ctx context.Context, id, txHash, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets
		SET blockchain_tx = $2, failure_reason = $3, status = $4, updated_at = NOW()
		WHERE id = $1`,
		id, txHash, reason, string(domain.StatusDeploymentFailed))
	if err != nil {
		return fmt.Errorf("postgres: set market %s failure: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByStatus returns markets in a given status with pagination.
func (s *MarketStore) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE status = $1`
	args := []any{string(status)}
	return s.list(ctx, query, args, opts, 2)
}

// List returns all markets with pagination and optional time filtering.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE TRUE`
	return s.list(ctx, query, nil, opts, 1)
}

func (s *MarketStore) list(ctx context.Context, query string, args []any, opts domain.ListOpts, argIdx int) ([]domain.Market, error) {
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// CountByStatus returns the number of markets per lifecycle status.
func (s *MarketStore) CountByStatus(ctx context.Context) (map[domain.MarketStatus]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM markets GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("postgres: count markets by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.MarketStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("postgres: scan market count: %w", err)
		}
		counts[domain.MarketStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: count markets rows: %w", err)
	}
	return counts, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
