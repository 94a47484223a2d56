// Package manifest writes the addresses of a completed deployment to disk.
//
// The manifest is a record only: it is never read back to skip deployments.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/primev/preconf-deployer/internal/deploy"
)

// ErrNotFound is returned when no manifest exists for a chain.
var ErrNotFound = errors.New("manifest not found")

// Manifest records one successful deployment run.
type Manifest struct {
	RunID      uuid.UUID           `json:"run_id"`
	ChainID    int64               `json:"chain_id"`
	Deployer   common.Address      `json:"deployer"`
	DeployedAt time.Time           `json:"deployed_at"`
	Contracts  map[string]Contract `json:"contracts"`
}

// Contract is a deployed contract entry.
type Contract struct {
	Address common.Address `json:"address"`
	TxHash  common.Hash    `json:"tx_hash"`
}

// New builds a manifest from the confirmed steps of result.
func New(runID uuid.UUID, chainID int64, deployer common.Address, result *deploy.Result) *Manifest {
	m := &Manifest{
		RunID:      runID,
		ChainID:    chainID,
		Deployer:   deployer,
		DeployedAt: time.Now().UTC(),
		Contracts:  make(map[string]Contract, len(result.Steps)),
	}
	for _, step := range result.Steps {
		if step.Status != deploy.StepConfirmed {
			continue
		}
		m.Contracts[step.Contract] = Contract{Address: step.Address, TxHash: step.TxHash}
	}
	return m
}

// Path returns the manifest file for chainID under dir.
func Path(dir string, chainID int64) string {
	return filepath.Join(dir, strconv.FormatInt(chainID, 10)+".json")
}

// Write stores m under dir, replacing any previous manifest for the chain atomically.
func Write(dir string, m *Manifest) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create manifest dir: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".manifest-*.json")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close manifest: %w", err)
	}

	path := Path(dir, m.ChainID)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename manifest: %w", err)
	}
	return path, nil
}

// Read loads the manifest for chainID from dir.
func Read(dir string, chainID int64) (*Manifest, error) {
	data, err := os.ReadFile(Path(dir, chainID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &m, nil
}
