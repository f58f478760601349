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

// PipelineRunStore implements domain.PipelineRunStore using PostgreSQL.
type PipelineRunStore struct {
	pool *pgxpool.Pool
}

// NewPipelineRunStore creates a PipelineRunStore backed by the given pool.
func NewPipelineRunStore(pool *pgxpool.Pool) *PipelineRunStore {
	return &PipelineRunStore{pool: pool}
}

// Start records a run at the moment it begins.
func (s *PipelineRunStore) Start(ctx context.Context, run domain.PipelineRun) error {
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("postgres: encode stats for run %s: %w", run.ID, err)
	}

	const query = `
		INSERT INTO pipeline_runs (id, trigger_type, status, stats, error, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = s.pool.Exec(ctx, query,
		run.ID, run.Trigger, string(run.Status), stats, run.Error, run.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: start run %s: %w", run.ID, err)
	}
	return nil
}

// Finish records the final status, stats and end time of a run.
func (s *PipelineRunStore) Finish(ctx context.Context, run domain.PipelineRun) error {
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("postgres: encode stats for run %s: %w", run.ID, err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs
		SET status = $2, stats = $3, error = $4, finished_at = $5
		WHERE id = $1`,
		run.ID, string(run.Status), stats, run.Error, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("postgres: finish run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const runCols = `id, trigger_type, status, stats, error, started_at, finished_at`

func scanRun(row pgx.Row) (domain.PipelineRun, error) {
	var run domain.PipelineRun
	var status string
	var stats []byte
	err := row.Scan(
		&run.ID, &run.Trigger, &status, &stats, &run.Error,
		&run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return domain.PipelineRun{}, err
	}
	if err := json.Unmarshal(stats, &run.Stats); err != nil {
		return domain.PipelineRun{}, fmt.Errorf("decode stats: %w", err)
	}
	run.Status = domain.RunStatus(status)
	return run, nil
}

// GetByID retrieves a run by id.
func (s *PipelineRunStore) GetByID(ctx context.Context, id string) (domain.PipelineRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runCols+` FROM pipeline_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PipelineRun{}, domain.ErrNotFound
		}
		return domain.PipelineRun{}, fmt.Errorf("postgres: get run %s: %w", id, err)
	}
	return run, nil
}

// ListRecent returns the most recent runs, newest first.
func (s *PipelineRunStore) ListRecent(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	query := `SELECT ` + runCols + ` FROM pipeline_runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list runs rows: %w", err)
	}
	return runs, nil
}
