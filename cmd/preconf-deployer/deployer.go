package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/primev/preconf-deployer/internal/chain"
	"github.com/primev/preconf-deployer/internal/config"
	"github.com/primev/preconf-deployer/internal/database"
	"github.com/primev/preconf-deployer/internal/deploy"
	"github.com/primev/preconf-deployer/internal/manifest"
	"github.com/primev/preconf-deployer/internal/metrics"
	"github.com/primev/preconf-deployer/internal/repository"
)

// staleRunAge is how long a run may stay "running" in the history before the
// next run marks it failed.
const staleRunAge = time.Hour

// dialFunc opens a chain backend and returns a function that closes it.
type dialFunc func(ctx context.Context, rpcURL string) (chain.Backend, func(), error)

func dialRPC(ctx context.Context, rpcURL string) (chain.Backend, func(), error) {
	client, err := chain.Dial(ctx, rpcURL)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// lockFunc takes the per-chain deploy lock on behalf of token and keeps it alive
// until release is called. lost is called at most once if the lock is taken over
// while held.
type lockFunc func(ctx context.Context, token string, logger *slog.Logger, lost func(error)) (release func(), err error)

// deployer wires configuration, chain access and the optional stores around one
// orchestrator run.
type deployer struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	dial   dialFunc
	lock   lockFunc
}

func newDeployer(cfg *config.Config, logger *slog.Logger, out io.Writer) *deployer {
	d := &deployer{
		cfg:    cfg,
		logger: logger,
		out:    out,
		dial:   dialRPC,
	}
	d.lock = d.acquireRedisLock
	return d
}

func (d *deployer) run(ctx context.Context) error {
	runID := uuid.New()
	chainID := d.cfg.Network.ChainID
	logger := d.logger.With(slog.String("run_id", runID.String()), slog.Int64("chain_id", chainID))

	params, err := d.cfg.Deployment.Params()
	if err != nil {
		return err
	}

	plan := deploy.DefaultPlan()
	artifacts, err := chain.LoadArtifacts(d.cfg.Artifacts.Dir, plan.Contracts()...)
	if err != nil {
		return fmt.Errorf("load artifacts: %w", err)
	}

	signer, err := chain.NewSignerForChain(d.cfg.Deployer.PrivateKey, big.NewInt(chainID), logger)
	if err != nil {
		return fmt.Errorf("create signer: %w", err)
	}

	backend, closeBackend, err := d.dial(ctx, d.cfg.Network.RPCURL)
	if err != nil {
		return err
	}
	defer closeBackend()

	client := chain.NewClient(backend, signer, artifacts, logger)
	if err := client.Preflight(ctx); err != nil {
		return fmt.Errorf("preflight: %w", err)
	}

	// runCtx is cancelled if the deploy lock is lost, so no further contract is
	// submitted by a run that no longer owns the chain.
	runCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	if d.cfg.Redis.Enabled() {
		release, err := d.lock(ctx, runID.String(), logger, func(err error) {
			logger.Error("deploy lock lost, aborting run", slog.String("error", err.Error()))
			abort(err)
		})
		if err != nil {
			return fmt.Errorf("acquire deploy lock: %w", err)
		}
		defer release()
	}

	m := metrics.New()
	report := deploy.NewReportWriter(d.out)
	recorders := deploy.MultiRecorder{report, m}

	var history *repository.RunRecorder
	if d.cfg.Database.Enabled() {
		rec, closeDB, err := d.startHistory(ctx, runID, signer, params, logger)
		if err != nil {
			return err
		}
		defer closeDB()
		history = rec
		recorders = append(recorders, rec)
	}

	orch := deploy.NewOrchestrator(client, deploy.OrchestratorConfig{
		Logger:              logger,
		Recorder:            recorders,
		ConfirmationTimeout: d.cfg.Deployment.ConfirmationTimeout,
		Sequential:          d.cfg.Deployment.Sequential,
		Plan:                plan,
	})

	logger.Info("deployer ready",
		slog.String("deployer", signer.Address().Hex()),
		slog.Bool("sequential", d.cfg.Deployment.Sequential),
	)
	result, runErr := orch.Run(runCtx, params)
	if cause := context.Cause(runCtx); runErr != nil && errors.Is(cause, database.ErrLockLost) {
		runErr = fmt.Errorf("%w (%w)", runErr, cause)
	}

	if err := report.Err(); err != nil {
		logger.Warn("failed to write report", slog.String("error", err.Error()))
	}

	// Bookkeeping must still happen after SIGINT cancelled ctx.
	finishCtx := context.WithoutCancel(ctx)
	if history != nil {
		history.Finish(finishCtx, runErr)
	}
	m.RunFinished(runErr)
	if path := d.cfg.Metrics.Textfile; path != "" {
		if err := m.WriteTextfile(path); err != nil {
			logger.Warn("failed to write metrics", slog.String("error", err.Error()))
		}
	}

	if runErr != nil {
		return runErr
	}

	if dir := d.cfg.Manifest.Dir; dir != "" {
		path, err := manifest.Write(dir, manifest.New(runID, chainID, signer.Address(), result))
		if err != nil {
			logger.Error("contracts deployed but manifest was not written", slog.String("error", err.Error()))
		} else {
			logger.Info("manifest written", slog.String("path", path))
		}
	}

	return nil
}

func (d *deployer) acquireRedisLock(ctx context.Context, token string, logger *slog.Logger, lost func(error)) (func(), error) {
	r, err := database.NewRedis(ctx, d.cfg.Redis)
	if err != nil {
		return nil, err
	}

	lock, err := r.AcquireLock(ctx, d.cfg.Network.ChainID, token, d.cfg.Redis.LockTTL)
	if err != nil {
		r.Close()
		return nil, err
	}
	logger.Debug("deploy lock acquired", slog.String("key", lock.Key()), slog.Duration("ttl", lock.TTL()))

	keepCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepLock(keepCtx, lock.Refresh, lock.TTL()/3, logger, lost)
	}()

	return func() {
		stop()
		<-done
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to release deploy lock", slog.String("error", err.Error()))
		}
		r.Close()
	}, nil
}

// keepLock calls refresh every interval until ctx is done. A refresh that reports
// database.ErrLockLost ends the loop after calling lost; other errors are retried on
// the next tick while the TTL still covers them.
func keepLock(ctx context.Context, refresh func(context.Context) error, interval time.Duration, logger *slog.Logger, lost func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := refresh(ctx)
			switch {
			case err == nil:
			case errors.Is(err, database.ErrLockLost):
				lost(err)
				return
			case ctx.Err() != nil:
				return
			default:
				logger.Warn("failed to refresh deploy lock", slog.String("error", err.Error()))
			}
		}
	}
}

func (d *deployer) startHistory(
	ctx context.Context,
	runID uuid.UUID,
	signer chain.TransactionSigner,
	params deploy.Params,
	logger *slog.Logger,
) (*repository.RunRecorder, func(), error) {
	db, err := database.NewPostgres(ctx, d.cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, nil, err
	}

	repo := repository.NewPostgresRepository(db.Pool())
	if n, err := repo.MarkStaleRunsFailed(ctx, staleRunAge); err != nil {
		logger.Warn("failed to mark stale runs", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("marked stale runs failed", slog.Int("count", n))
	}

	run, err := repository.NewRun(runID, d.cfg.Network.ChainID, signer.Address(), params)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	rec, err := repository.StartRun(ctx, repo, run, logger)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("record run: %w", err)
	}
	return rec, db.Close, nil
}
