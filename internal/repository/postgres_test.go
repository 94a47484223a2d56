package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primev/preconf-deployer/internal/config"
	"github.com/primev/preconf-deployer/internal/database"
	"github.com/primev/preconf-deployer/internal/deploy"
)

const envTestDSN = "PRECONF_TEST_DATABASE_DSN"

func newTestRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv(envTestDSN)
	if dsn == "" {
		t.Skipf("Skipping postgres integration test: %s not set", envTestDSN)
	}

	db, err := database.NewPostgres(context.Background(), config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.RunMigrations())

	return NewPostgresRepository(db.Pool())
}

func TestPostgresRepository_RunLifecycle(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	chainID := time.Now().UnixNano()

	run := &Run{ChainID: chainID, Deployer: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", Params: []byte(`{}`)}
	require.NoError(t, repo.CreateRun(ctx, run))
	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.False(t, run.StartedAt.IsZero())

	rec := NewRunRecorder(repo, run.ID, nil)
	hash := "0x" + "ab"
	require.NoError(t, repo.UpsertContract(ctx, &Contract{RunID: run.ID, Name: deploy.UserRegistry, Status: ContractSubmitted, TxHash: &hash}))
	addr := "0xA0000000000000000000000000000000000000A0"
	require.NoError(t, repo.UpsertContract(ctx, &Contract{RunID: run.ID, Name: deploy.UserRegistry, Status: ContractConfirmed, Address: &addr}))
	rec.Finish(ctx, nil)

	contracts, err := repo.ListContracts(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, ContractConfirmed, contracts[0].Status)
	assert.Equal(t, hash, *contracts[0].TxHash, "confirm must keep the submitted tx hash")
	assert.Equal(t, addr, *contracts[0].Address)

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.NotNil(t, got.FinishedAt)

	runs, err := repo.ListRunsByChainID(ctx, chainID)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = repo.GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.FinishRun(ctx, uuid.New(), StatusFailed, nil), ErrNotFound)
}

func TestPostgresRepository_MarkStaleRunsFailed(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	run := &Run{ChainID: time.Now().UnixNano(), Deployer: "0x0", Params: []byte(`{}`)}
	require.NoError(t, repo.CreateRun(ctx, run))

	_, err := repo.MarkStaleRunsFailed(ctx, time.Hour)
	require.NoError(t, err)
	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)

	n, err := repo.MarkStaleRunsFailed(ctx, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
	got, err = repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
}
