// Package repository persists deployment run history.
package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/primev/preconf-deployer/internal/deploy"
)

// Status represents the run status.
type Status string

const (
	// StatusRunning indicates the run is in progress.
	StatusRunning Status = "running"
	// StatusCompleted indicates all contracts were confirmed.
	StatusCompleted Status = "completed"
	// StatusFailed indicates at least one contract was not confirmed.
	StatusFailed Status = "failed"
)

// ContractStatus represents the state of one contract within a run.
type ContractStatus string

const (
	ContractSubmitted ContractStatus = "submitted"
	ContractConfirmed ContractStatus = "confirmed"
	ContractFailed    ContractStatus = "failed"
	ContractSkipped   ContractStatus = "skipped"
)

// Run represents one invocation of the deployer.
type Run struct {
	ID           uuid.UUID
	ChainID      int64
	Deployer     string
	Status       Status
	Params       json.RawMessage
	ErrorMessage *string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Contract represents a contract deployment within a run.
type Contract struct {
	RunID        uuid.UUID
	Name         string
	Status       ContractStatus
	Address      *string
	TxHash       *string
	ErrorKind    *string
	ErrorMessage *string
	UpdatedAt    time.Time
}

type runParams struct {
	MinStake     string `json:"min_stake"`
	FeeRecipient string `json:"fee_recipient"`
	Oracle       string `json:"oracle"`
	FeePercent   uint16 `json:"fee_percent"`
}

// NewRun builds a running Run for the given deployment parameters.
func NewRun(id uuid.UUID, chainID int64, deployer common.Address, p deploy.Params) (*Run, error) {
	params, err := json.Marshal(runParams{
		MinStake:     p.MinStake.String(),
		FeeRecipient: p.FeeRecipient.Hex(),
		Oracle:       p.Oracle.Hex(),
		FeePercent:   p.FeePercent,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal run params: %w", err)
	}

	return &Run{
		ID:       id,
		ChainID:  chainID,
		Deployer: deployer.Hex(),
		Status:   StatusRunning,
		Params:   params,
	}, nil
}
