// Package chain deploys compiled contracts to an EVM chain over JSON-RPC.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/primev/preconf-deployer/internal/deploy"
)

const (
	// FallbackGasLimit is used when gas estimation fails.
	FallbackGasLimit uint64 = 10_000_000
	gasLimitBufferPercent   = 120
	gasPriceBumpPercent     = 150
)

var (
	ErrUnknownContract = errors.New("no artifact for contract")
	ErrReverted        = errors.New("contract creation reverted")
	ErrNoCode          = errors.New("no code at deployed address")
	ErrChainIDMismatch = errors.New("chain ID mismatch")
	ErrNoBalance       = errors.New("deployer account has no balance")
)

// Backend is the subset of ethclient.Client the deployer needs.
type Backend interface {
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Dial connects to an RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", rpcURL, err)
	}
	return client, nil
}

// Client implements deploy.ChainClient for a single deployer account.
//
// Safe for concurrent use: submissions are serialized so each transaction gets
// its own nonce, while confirmations wait in parallel.
type Client struct {
	backend   Backend
	signer    TransactionSigner
	artifacts *Artifacts
	logger    *slog.Logger

	mu         sync.Mutex
	nextNonce  uint64
	nonceKnown bool
}

// NewClient creates a deployment client.
func NewClient(backend Backend, signer TransactionSigner, artifacts *Artifacts, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		backend:   backend,
		signer:    signer,
		artifacts: artifacts,
		logger:    logger,
	}
}

// Preflight checks that the endpoint serves the signer's chain and that the
// deployer account is funded.
func (c *Client) Preflight(ctx context.Context) error {
	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain ID: %w", err)
	}
	if chainID.Cmp(c.signer.ChainID()) != 0 {
		return fmt.Errorf("%w: endpoint reports %s, configured %s", ErrChainIDMismatch, chainID, c.signer.ChainID())
	}

	balance, err := c.backend.BalanceAt(ctx, c.signer.Address(), nil)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	if balance.Sign() == 0 {
		return fmt.Errorf("%w: %s", ErrNoBalance, c.signer.Address().Hex())
	}

	c.logger.Info("preflight ok",
		slog.String("chain_id", chainID.String()),
		slog.String("deployer", c.signer.Address().Hex()),
		slog.String("balance_wei", balance.String()),
	)
	return nil
}

// DeployContract builds, signs and sends the creation transaction for name.
func (c *Client) DeployContract(ctx context.Context, name string, args ...any) (*deploy.Handle, error) {
	artifact, ok := c.artifacts.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, name)
	}
	data, err := artifact.CreationData(args...)
	if err != nil {
		return nil, err
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}
	// Bump so the transaction is not stuck behind a rising base fee.
	gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(gasPriceBumpPercent)), big.NewInt(100))

	gasLimit, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.signer.Address(),
		To:       nil,
		GasPrice: gasPrice,
		Value:    big.NewInt(0),
		Data:     data,
	})
	if err != nil {
		gasLimit = FallbackGasLimit
		c.logger.Warn("gas estimation failed, using default",
			slog.String("contract", name),
			slog.Uint64("gas_limit", gasLimit),
			slog.String("error", err.Error()),
		)
	}
	gasLimit = gasLimit * gasLimitBufferPercent / 100

	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, err := c.reserveNonce(ctx)
	if err != nil {
		return nil, err
	}

	tx := types.NewContractCreation(nonce, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := c.signer.SignTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := c.backend.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	c.nextNonce = nonce + 1
	c.nonceKnown = true

	c.logger.Debug("creation transaction sent",
		slog.String("contract", name),
		slog.String("tx_hash", signedTx.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas_limit", gasLimit),
		slog.String("gas_price", gasPrice.String()),
	)

	return deploy.NewHandle(name, signedTx), nil
}

// reserveNonce returns the next nonce. Callers must hold c.mu.
func (c *Client) reserveNonce(ctx context.Context) (uint64, error) {
	pending, err := c.backend.PendingNonceAt(ctx, c.signer.Address())
	if err != nil {
		return 0, fmt.Errorf("get nonce: %w", err)
	}
	if c.nonceKnown && c.nextNonce > pending {
		return c.nextNonce, nil
	}
	return pending, nil
}

// AwaitConfirmation waits for the creation receipt and verifies code exists at the
// new address.
func (c *Client) AwaitConfirmation(ctx context.Context, h *deploy.Handle) (common.Address, error) {
	if h == nil || h.Tx == nil {
		return common.Address{}, fmt.Errorf("no transaction to wait for")
	}
	if addr, ok := h.Address(); ok {
		return addr, nil
	}

	receipt, err := bind.WaitMined(ctx, c.backend, h.Tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("wait for receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Address{}, fmt.Errorf("%w: tx %s in block %s", ErrReverted, h.TxHash().Hex(), receipt.BlockNumber)
	}

	addr := receipt.ContractAddress
	code, err := c.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("get code at %s: %w", addr.Hex(), err)
	}
	if len(code) == 0 {
		return common.Address{}, fmt.Errorf("%w: %s", ErrNoCode, addr.Hex())
	}

	h.Confirm(addr)
	return addr, nil
}

var _ deploy.ChainClient = (*Client)(nil)
