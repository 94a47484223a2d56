package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for run history operations.
type Repository interface {
	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRunsByChainID(ctx context.Context, chainID int64) ([]*Run, error)
	FinishRun(ctx context.Context, id uuid.UUID, status Status, errMsg *string) error

	// MarkStaleRunsFailed marks runs that have been "running" for longer than
	// timeout as "failed", covering processes that died without finishing the run.
	MarkStaleRunsFailed(ctx context.Context, timeout time.Duration) (int, error)

	// Contract operations
	UpsertContract(ctx context.Context, c *Contract) error
	ListContracts(ctx context.Context, runID uuid.UUID) ([]Contract, error)
}
