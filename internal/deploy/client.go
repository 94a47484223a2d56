package deploy

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainClient submits contract creations and waits for them to be confirmed.
type ChainClient interface {
	// DeployContract submits the creation transaction for the named contract and
	// returns a pending handle. It does not wait for inclusion.
	DeployContract(ctx context.Context, name string, args ...any) (*Handle, error)
	// AwaitConfirmation blocks until the handle's transaction is included and
	// returns the deployed address. It fails if the tx is dropped or reverts.
	AwaitConfirmation(ctx context.Context, h *Handle) (common.Address, error)
}

// Status is the lifecycle state of a Handle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
)

// Handle tracks one submitted contract creation.
// The address is unset until Confirm is called.
type Handle struct {
	Contract string
	Tx       *types.Transaction

	mu      sync.RWMutex
	status  Status
	address common.Address
}

// NewHandle returns a pending handle for a submitted creation transaction.
func NewHandle(contract string, tx *types.Transaction) *Handle {
	return &Handle{Contract: contract, Tx: tx, status: StatusPending}
}

// TxHash returns the creation transaction hash, or the zero hash if there is none.
func (h *Handle) TxHash() common.Hash {
	if h.Tx == nil {
		return common.Hash{}
	}
	return h.Tx.Hash()
}

// Confirm records the confirmed address. Only the first call has effect.
func (h *Handle) Confirm(addr common.Address) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status == StatusConfirmed {
		return
	}
	h.status = StatusConfirmed
	h.address = addr
}

// Status returns the current lifecycle state.
func (h *Handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Address returns the deployed address and whether it is confirmed.
func (h *Handle) Address() (common.Address, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.address, h.status == StatusConfirmed
}

// Recorder observes step progress. Implementations must not block for long and
// handle their own errors. The context passed in is not cancelled with the run.
type Recorder interface {
	Submitted(ctx context.Context, contract string, txHash common.Hash)
	Confirmed(ctx context.Context, contract string, addr common.Address, elapsed time.Duration)
	Failed(ctx context.Context, contract string, err *DeploymentError)
}

// MultiRecorder fans out to several recorders.
type MultiRecorder []Recorder

func (m MultiRecorder) Submitted(ctx context.Context, contract string, txHash common.Hash) {
	for _, r := range m {
		r.Submitted(ctx, contract, txHash)
	}
}

func (m MultiRecorder) Confirmed(ctx context.Context, contract string, addr common.Address, elapsed time.Duration) {
	for _, r := range m {
		r.Confirmed(ctx, contract, addr, elapsed)
	}
}

func (m MultiRecorder) Failed(ctx context.Context, contract string, err *DeploymentError) {
	for _, r := range m {
		r.Failed(ctx, contract, err)
	}
}

type nopRecorder struct{}

func (nopRecorder) Submitted(context.Context, string, common.Hash) {}
func (nopRecorder) Confirmed(context.Context, string, common.Address, time.Duration) {}
func (nopRecorder) Failed(context.Context, string, *DeploymentError) {}
