package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// CreateRun inserts a new run record.
func (r *PostgresRepository) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	query := `
		INSERT INTO deployment_runs (id, chain_id, deployer, status, params)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING started_at`

	err := r.pool.QueryRow(ctx, query,
		run.ID, run.ChainID, run.Deployer, run.Status, run.Params,
	).Scan(&run.StartedAt)
	if err != nil {
		return fmt.Errorf("CreateRun: %w", err)
	}
	return nil
}

// GetRun retrieves a run by its UUID.
func (r *PostgresRepository) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `
		SELECT id, chain_id, deployer, status, params, error, started_at, finished_at
		FROM deployment_runs
		WHERE id = $1`

	var run Run
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.ChainID, &run.Deployer, &run.Status, &run.Params,
		&run.ErrorMessage, &run.StartedAt, &run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetRun: %w", err)
	}
	return &run, nil
}

// ListRunsByChainID retrieves the runs against a chain, newest first.
func (r *PostgresRepository) ListRunsByChainID(ctx context.Context, chainID int64) ([]*Run, error) {
	query := `
		SELECT id, chain_id, deployer, status, params, error, started_at, finished_at
		FROM deployment_runs
		WHERE chain_id = $1
		ORDER BY started_at DESC`

	rows, err := r.pool.Query(ctx, query, chainID)
	if err != nil {
		return nil, fmt.Errorf("ListRunsByChainID: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(
			&run.ID, &run.ChainID, &run.Deployer, &run.Status, &run.Params,
			&run.ErrorMessage, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("ListRunsByChainID scan: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// FinishRun sets the final status of a run.
func (r *PostgresRepository) FinishRun(ctx context.Context, id uuid.UUID, status Status, errMsg *string) error {
	query := `
		UPDATE deployment_runs
		SET status = $2, error = $3, finished_at = NOW()
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("FinishRun: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkStaleRunsFailed marks runs stuck in "running" for longer than timeout as failed.
func (r *PostgresRepository) MarkStaleRunsFailed(ctx context.Context, timeout time.Duration) (int, error) {
	query := `
		UPDATE deployment_runs
		SET status = $1,
		    error = $2,
		    finished_at = NOW()
		WHERE status = $3
		  AND started_at < NOW() - $4::interval`

	result, err := r.pool.Exec(ctx, query,
		StatusFailed,
		"run did not finish; the deployer process probably exited early",
		StatusRunning,
		timeout.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("MarkStaleRunsFailed: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// UpsertContract records the latest state of a contract within a run. Nil fields
// keep their stored value.
func (r *PostgresRepository) UpsertContract(ctx context.Context, c *Contract) error {
	query := `
		INSERT INTO deployed_contracts (run_id, contract, status, address, tx_hash, error_kind, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, contract) DO UPDATE SET
			status = EXCLUDED.status,
			address = COALESCE(EXCLUDED.address, deployed_contracts.address),
			tx_hash = COALESCE(EXCLUDED.tx_hash, deployed_contracts.tx_hash),
			error_kind = COALESCE(EXCLUDED.error_kind, deployed_contracts.error_kind),
			error = COALESCE(EXCLUDED.error, deployed_contracts.error),
			updated_at = NOW()
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		c.RunID, c.Name, c.Status, c.Address, c.TxHash, c.ErrorKind, c.ErrorMessage,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("UpsertContract: %w", err)
	}
	return nil
}

// ListContracts retrieves the contracts of a run in name order.
func (r *PostgresRepository) ListContracts(ctx context.Context, runID uuid.UUID) ([]Contract, error) {
	query := `
		SELECT run_id, contract, status, address, tx_hash, error_kind, error, updated_at
		FROM deployed_contracts
		WHERE run_id = $1
		ORDER BY contract`

	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("ListContracts: %w", err)
	}
	defer rows.Close()

	var contracts []Contract
	for rows.Next() {
		var c Contract
		if err := rows.Scan(
			&c.RunID, &c.Name, &c.Status, &c.Address, &c.TxHash,
			&c.ErrorKind, &c.ErrorMessage, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ListContracts scan: %w", err)
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

// Compile-time check to ensure PostgresRepository implements Repository.
var _ Repository = (*PostgresRepository)(nil)
