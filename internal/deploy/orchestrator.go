// Package deploy sequences the PreConf contract deployments.
//
// The orchestrator walks a Plan level by level. Steps inside a level are independent
// and run concurrently unless Sequential is set; a level starts only after every step
// of the previous level has returned, so a dependent contract is never submitted with
// an address that is not confirmed.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// DefaultConfirmationTimeout bounds each AwaitConfirmation call.
const DefaultConfirmationTimeout = 5 * time.Minute

// OrchestratorConfig contains configuration for the orchestrator.
type OrchestratorConfig struct {
	// Logger for structured logging
	Logger *slog.Logger

	// Recorder observes step progress (optional)
	Recorder Recorder

	// ConfirmationTimeout bounds the wait for each confirmation (default: 5m)
	ConfirmationTimeout time.Duration

	// Sequential submits independent steps one after another in plan order.
	Sequential bool

	// Plan overrides the default PreConf plan (optional).
	Plan *Plan
}

// Orchestrator deploys the contracts of a plan through a ChainClient.
type Orchestrator struct {
	client   ChainClient
	plan     *Plan
	config   OrchestratorConfig
	logger   *slog.Logger
	recorder Recorder
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(client ChainClient, config OrchestratorConfig) *Orchestrator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.ConfirmationTimeout <= 0 {
		config.ConfirmationTimeout = DefaultConfirmationTimeout
	}
	plan := config.Plan
	if plan == nil {
		plan = DefaultPlan()
	}
	var recorder Recorder = nopRecorder{}
	if config.Recorder != nil {
		recorder = config.Recorder
	}

	return &Orchestrator{
		client:   client,
		plan:     plan,
		config:   config,
		logger:   logger,
		recorder: recorder,
	}
}

// runState holds the per-run outcome. Each entry is written once by its own step.
type runState struct {
	mu        sync.Mutex
	steps     []StepResult
	confirmed map[string]common.Address
}

func (s *runState) set(idx int, r StepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[idx] = r
	if r.Status == StepConfirmed {
		s.confirmed[r.Contract] = r.Address
	}
}

func (s *runState) get(idx int) StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps[idx]
}

// deps returns the confirmed addresses for names, or the names that are not confirmed.
func (s *runState) deps(names []string) (map[string]common.Address, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]common.Address, len(names))
	var missing []string
	for _, n := range names {
		addr, ok := s.confirmed[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		out[n] = addr
	}
	return out, missing
}

// Run deploys every contract of the plan. It returns the partial Result together with
// the first failure in plan order when any step fails.
func (o *Orchestrator) Run(ctx context.Context, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	state := &runState{
		steps:     make([]StepResult, len(o.plan.steps)),
		confirmed: make(map[string]common.Address, len(o.plan.steps)),
	}
	for i, s := range o.plan.steps {
		state.steps[i] = StepResult{Contract: s.Contract}
	}

	o.logger.Info("starting deployment",
		slog.Int("contracts", len(o.plan.steps)),
		slog.Bool("sequential", o.config.Sequential),
		slog.Duration("confirmation_timeout", o.config.ConfirmationTimeout),
	)

	var failed []string
	for li, level := range o.plan.levels {
		if len(failed) > 0 {
			o.skipLevel(ctx, level, failed, state)
			continue
		}

		o.logger.Debug("running level", slog.Int("level", li), slog.Int("steps", len(level)))
		if err := o.runLevel(ctx, params, level, state); err == nil {
			continue
		}
		for _, idx := range level {
			if st := state.get(idx).Status; st == StepFailed || st == StepSkipped {
				failed = append(failed, o.plan.steps[idx].Contract)
			}
		}
	}

	result := &Result{Steps: state.steps}
	result.UserRegistry = state.confirmed[UserRegistry]
	result.ProviderRegistry = state.confirmed[ProviderRegistry]
	result.PreConfCommitmentStore = state.confirmed[PreConfCommitmentStore]

	for _, s := range result.Steps {
		if s.Status == StepFailed {
			o.logger.Error("deployment failed",
				slog.String("contract", s.Contract),
				slog.String("error", s.Err.Error()),
			)
			return result, s.Err
		}
	}

	o.logger.Info("deployment complete",
		slog.String("user_registry", result.UserRegistry.Hex()),
		slog.String("provider_registry", result.ProviderRegistry.Hex()),
		slog.String("preconf_commitment_store", result.PreConfCommitmentStore.Hex()),
	)
	return result, nil
}

// runLevel runs the steps of one level and returns the first step error. A failing
// step does not cancel its siblings: the group has no shared context.
func (o *Orchestrator) runLevel(ctx context.Context, params Params, level []int, state *runState) error {
	if o.config.Sequential || len(level) == 1 {
		var first error
		for _, idx := range level {
			if err := o.runStep(ctx, params, idx, state); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	var g errgroup.Group
	for _, idx := range level {
		g.Go(func() error {
			return o.runStep(ctx, params, idx, state)
		})
	}
	return g.Wait()
}

// runStep deploys one contract. It returns the step's *DeploymentError, or nil once
// the contract is confirmed.
func (o *Orchestrator) runStep(ctx context.Context, params Params, idx int, state *runState) error {
	step := o.plan.steps[idx]
	logger := o.logger.With(slog.String("contract", step.Contract))

	deps, missing := state.deps(step.DependsOn)
	if len(missing) > 0 {
		return o.fail(ctx, state, idx, StepSkipped, &DeploymentError{
			Kind:     KindDependency,
			Contract: step.Contract,
			Err:      fmt.Errorf("upstream %s not confirmed", strings.Join(missing, ", ")),
		})
	}

	if ctx.Err() != nil {
		return o.fail(ctx, state, idx, StepFailed, &DeploymentError{
			Kind:     KindSubmission,
			Contract: step.Contract,
			Err:      fmt.Errorf("not submitted: %w", context.Cause(ctx)),
		})
	}

	var args []any
	if step.Args != nil {
		args = step.Args(params, deps)
	}

	logger.Info("submitting contract creation", slog.Int("constructor_args", len(args)))
	start := time.Now()

	h, err := o.client.DeployContract(ctx, step.Contract, args...)
	if err != nil {
		return o.fail(ctx, state, idx, StepFailed, &DeploymentError{
			Kind:     KindSubmission,
			Contract: step.Contract,
			Err:      err,
		})
	}
	txHash := h.TxHash()
	state.set(idx, StepResult{Contract: step.Contract, TxHash: txHash})
	o.recorder.Submitted(context.WithoutCancel(ctx), step.Contract, txHash)
	logger.Info("transaction submitted, waiting for confirmation", slog.String("tx_hash", txHash.Hex()))

	waitCtx, cancel := context.WithTimeout(ctx, o.config.ConfirmationTimeout)
	addr, err := o.client.AwaitConfirmation(waitCtx, h)
	timedOut := errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()
	if err != nil {
		derr := &DeploymentError{Kind: KindConfirmation, Contract: step.Contract, Err: err}
		if timedOut {
			derr.Kind = KindTimeout
			derr.Err = fmt.Errorf("no confirmation within %s for tx %s: %w", o.config.ConfirmationTimeout, txHash.Hex(), err)
		}
		return o.fail(ctx, state, idx, StepFailed, derr)
	}

	h.Confirm(addr)
	elapsed := time.Since(start)
	state.set(idx, StepResult{
		Contract: step.Contract,
		Status:   StepConfirmed,
		Address:  addr,
		TxHash:   txHash,
	})
	o.recorder.Confirmed(context.WithoutCancel(ctx), step.Contract, addr, elapsed)

	logger.Info("contract deployed",
		slog.String("address", addr.Hex()),
		slog.String("tx_hash", txHash.Hex()),
		slog.Duration("elapsed", elapsed),
	)
	return nil
}

// skipLevel marks every step of a level as skipped after an upstream failure.
func (o *Orchestrator) skipLevel(ctx context.Context, level []int, failed []string, state *runState) {
	for _, idx := range level {
		step := o.plan.steps[idx]

		var upstream []string
		for _, dep := range step.DependsOn {
			if st := state.get(o.plan.index[dep]).Status; st == StepFailed || st == StepSkipped {
				upstream = append(upstream, dep)
			}
		}

		cause := fmt.Errorf("upstream %s not confirmed", strings.Join(upstream, ", "))
		if len(upstream) == 0 {
			cause = fmt.Errorf("run aborted after %s failed", strings.Join(failed, ", "))
		}
		_ = o.fail(ctx, state, idx, StepSkipped, &DeploymentError{
			Kind:     KindDependency,
			Contract: step.Contract,
			Err:      cause,
		})
	}
}

// fail records a step that did not confirm and returns derr as an error. Recorders
// get a context that outlives cancellation so the outcome is still persisted.
func (o *Orchestrator) fail(ctx context.Context, state *runState, idx int, status StepStatus, derr *DeploymentError) error {
	prev := state.get(idx)
	state.set(idx, StepResult{
		Contract: derr.Contract,
		Status:   status,
		TxHash:   prev.TxHash,
		Err:      derr,
	})
	o.recorder.Failed(context.WithoutCancel(ctx), derr.Contract, derr)

	level := slog.LevelError
	if status == StepSkipped {
		level = slog.LevelWarn
	}
	o.logger.Log(ctx, level, "contract not deployed",
		slog.String("contract", derr.Contract),
		slog.String("kind", derr.Kind.String()),
		slog.String("error", derr.Err.Error()),
	)
	return derr
}
