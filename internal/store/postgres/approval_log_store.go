package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/apepipe/internal/domain"
)

// ApprovalLogStore implements domain.ApprovalLogStore using PostgreSQL. Rows
// are append-only; a UNIQUE (poly_id, stage) constraint guarantees at most
// one decision per market per stage.
type ApprovalLogStore struct {
	pool *pgxpool.Pool
}

// NewApprovalLogStore creates an ApprovalLogStore backed by the given pool.
func NewApprovalLogStore(pool *pgxpool.Pool) *ApprovalLogStore {
	return &ApprovalLogStore{pool: pool}
}

// Record appends one decision row. Returns domain.ErrAlreadyDecided when a
// decision for the (poly_id, stage) pair already exists.
func (s *ApprovalLogStore) Record(ctx context.Context, entry domain.ApprovalLog) error {
	const query = `
		INSERT INTO approval_log (poly_id, stage, slack_msg_id, reviewer, decision, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		entry.PolyID, string(entry.Stage), entry.SlackMsgID,
		entry.Reviewer, string(entry.Decision), entry.Reason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyDecided
		}
		return fmt.Errorf("postgres: record decision for %s/%s: %w", entry.PolyID, entry.Stage, err)
	}
	return nil
}

const approvalCols = `id, poly_id, stage, slack_msg_id, reviewer, decision, reason, created_at`

func scanApprovalLog(row pgx.Row) (domain.ApprovalLog, error) {
	var entry domain.ApprovalLog
	var stage, decision string
	err := row.Scan(
		&entry.ID, &entry.PolyID, &stage, &entry.SlackMsgID,
		&entry.Reviewer, &decision, &entry.Reason, &entry.CreatedAt,
	)
	if err != nil {
		return domain.ApprovalLog{}, err
	}
	entry.Stage = domain.ApprovalStage(stage)
	entry.Decision = domain.DecisionOutcome(decision)
	return entry, nil
}

// GetByPolyID retrieves the decision for a market at a given stage.
func (s *ApprovalLogStore) GetByPolyID(ctx context.Context, polyID string, stage domain.ApprovalStage) (domain.ApprovalLog, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+approvalCols+` FROM approval_log WHERE poly_id = $1 AND stage = $2`,
		polyID, string(stage))
	entry, err := scanApprovalLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ApprovalLog{}, domain.ErrNotFound
		}
		return domain.ApprovalLog{}, fmt.Errorf("postgres: get decision for %s/%s: %w", polyID, stage, err)
	}
	return entry, nil
}

// List returns decisions newest first with pagination and time filtering.
func (s *ApprovalLogStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.ApprovalLog, error) {
	query := `SELECT ` + approvalCols + ` FROM approval_log WHERE TRUE`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list decisions: %w", err)
	}
	defer rows.Close()

	var entries []domain.ApprovalLog
	for rows.Next() {
		entry, err := scanApprovalLog(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan decision: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list decisions rows: %w", err)
	}
	return entries, nil
}
