package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// AnvilDefaultKey is anvil-0 from the "test test ... junk" mnemonic
// (0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266).
//
// The key is PUBLICLY KNOWN. Any funds sent to its address on a real network
// will be stolen.
const AnvilDefaultKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	// ErrNoDeployerKey is returned when no key is configured for a non-local chain.
	ErrNoDeployerKey = errors.New("deployer private key is required outside local dev chains")
	// ErrPublicKeyOnProduction is returned when the well-known dev key targets a production chain.
	ErrPublicKeyOnProduction = errors.New("publicly known dev key cannot be used on a production chain")
)

var productionChainIDs = map[int64]string{
	1:     "Ethereum Mainnet",
	10:    "Optimism",
	42161: "Arbitrum One",
	137:   "Polygon",
	8453:  "Base",
}

// localChainIDs are the anvil/hardhat and geth --dev chain IDs.
var localChainIDs = map[int64]bool{
	31337: true,
	1337:  true,
}

// TransactionSigner signs deployment transactions.
type TransactionSigner interface {
	Address() common.Address
	ChainID() *big.Int
	SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// LocalSigner implements TransactionSigner with an in-memory private key.
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

// NewLocalSigner creates a LocalSigner from a hex-encoded private key, with or
// without the 0x prefix.
func NewLocalSigner(hexKey string, chainID *big.Int) (*LocalSigner, error) {
	if chainID == nil {
		return nil, fmt.Errorf("chain ID is required")
	}
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &LocalSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    new(big.Int).Set(chainID),
	}, nil
}

// NewSignerForChain picks the deployer key for chainID. An empty hexKey falls back
// to AnvilDefaultKey on local dev chains only.
func NewSignerForChain(hexKey string, chainID *big.Int, logger *slog.Logger) (*LocalSigner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if chainID == nil {
		return nil, fmt.Errorf("chain ID is required")
	}

	key := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if key == "" {
		if !chainID.IsInt64() || !localChainIDs[chainID.Int64()] {
			return nil, fmt.Errorf("%w (chain_id=%s)", ErrNoDeployerKey, chainID)
		}
		logger.Warn("no deployer key configured, using anvil default account",
			slog.String("chain_id", chainID.String()),
		)
		key = AnvilDefaultKey
	}

	if strings.EqualFold(key, AnvilDefaultKey) && chainID.IsInt64() {
		if name, ok := productionChainIDs[chainID.Int64()]; ok {
			return nil, fmt.Errorf("%w: %s (chain_id=%s)", ErrPublicKeyOnProduction, name, chainID)
		}
	}

	return NewLocalSigner(key, chainID)
}

// Address returns the signer's Ethereum address.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// ChainID returns the chain ID used for signing.
func (s *LocalSigner) ChainID() *big.Int {
	return s.chainID
}

// SignTransaction signs a transaction using the local private key.
func (s *LocalSigner) SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(s.chainID)
	signedTx, err := types.SignTx(tx, signer, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signedTx, nil
}

var _ TransactionSigner = (*LocalSigner)(nil)
