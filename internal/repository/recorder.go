package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/primev/preconf-deployer/internal/deploy"
)

// RunRecorder writes orchestrator progress into a Repository. Storage errors are
// logged and never surface to the deployment.
type RunRecorder struct {
	repo   Repository
	runID  uuid.UUID
	logger *slog.Logger
}

// NewRunRecorder creates a recorder for an existing run.
func NewRunRecorder(repo Repository, runID uuid.UUID, logger *slog.Logger) *RunRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunRecorder{
		repo:   repo,
		runID:  runID,
		logger: logger.With(slog.String("run_id", runID.String())),
	}
}

// StartRun stores run and returns a recorder bound to it.
func StartRun(ctx context.Context, repo Repository, run *Run, logger *slog.Logger) (*RunRecorder, error) {
	if err := repo.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return NewRunRecorder(repo, run.ID, logger), nil
}

// RunID returns the run this recorder writes to.
func (r *RunRecorder) RunID() uuid.UUID {
	return r.runID
}

// Submitted implements deploy.Recorder.
func (r *RunRecorder) Submitted(ctx context.Context, contract string, txHash common.Hash) {
	hash := txHash.Hex()
	r.upsert(ctx, &Contract{
		RunID:  r.runID,
		Name:   contract,
		Status: ContractSubmitted,
		TxHash: &hash,
	})
}

// Confirmed implements deploy.Recorder.
func (r *RunRecorder) Confirmed(ctx context.Context, contract string, addr common.Address, _ time.Duration) {
	address := addr.Hex()
	r.upsert(ctx, &Contract{
		RunID:   r.runID,
		Name:    contract,
		Status:  ContractConfirmed,
		Address: &address,
	})
}

// Failed implements deploy.Recorder.
func (r *RunRecorder) Failed(ctx context.Context, contract string, derr *deploy.DeploymentError) {
	status := ContractFailed
	if derr.Kind == deploy.KindDependency {
		status = ContractSkipped
	}
	kind := string(derr.Kind)
	msg := derr.Error()
	r.upsert(ctx, &Contract{
		RunID:        r.runID,
		Name:         contract,
		Status:       status,
		ErrorKind:    &kind,
		ErrorMessage: &msg,
	})
}

// Finish marks the run completed when runErr is nil and failed otherwise.
func (r *RunRecorder) Finish(ctx context.Context, runErr error) {
	status := StatusCompleted
	var msg *string
	if runErr != nil {
		status = StatusFailed
		s := runErr.Error()
		msg = &s
	}
	if err := r.repo.FinishRun(ctx, r.runID, status, msg); err != nil {
		r.logger.Warn("failed to finish run record", slog.String("error", err.Error()))
	}
}

func (r *RunRecorder) upsert(ctx context.Context, c *Contract) {
	if err := r.repo.UpsertContract(ctx, c); err != nil {
		r.logger.Warn("failed to record contract state",
			slog.String("contract", c.Name),
			slog.String("status", string(c.Status)),
			slog.String("error", err.Error()),
		)
	}
}

var _ deploy.Recorder = (*RunRecorder)(nil)
