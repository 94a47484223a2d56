package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var anvilAddress = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func TestNewLocalSigner(t *testing.T) {
	t.Run("accepts key with and without prefix", func(t *testing.T) {
		for _, key := range []string{AnvilDefaultKey, "0x" + AnvilDefaultKey} {
			s, err := NewLocalSigner(key, big.NewInt(31337))
			require.NoError(t, err)
			assert.Equal(t, anvilAddress, s.Address())
			assert.Equal(t, int64(31337), s.ChainID().Int64())
		}
	})

	t.Run("rejects malformed key", func(t *testing.T) {
		_, err := NewLocalSigner("not-a-key", big.NewInt(1))
		assert.ErrorContains(t, err, "parse private key")
	})

	t.Run("signs for its chain", func(t *testing.T) {
		s, err := NewLocalSigner(AnvilDefaultKey, big.NewInt(31337))
		require.NoError(t, err)

		tx := types.NewContractCreation(0, big.NewInt(0), 21000, big.NewInt(1), []byte{0x00})
		signed, err := s.SignTransaction(context.Background(), tx)
		require.NoError(t, err)

		from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), signed)
		require.NoError(t, err)
		assert.Equal(t, anvilAddress, from)
	})
}

func TestNewSignerForChain(t *testing.T) {
	t.Run("falls back to anvil key on local chains", func(t *testing.T) {
		for _, id := range []int64{31337, 1337} {
			s, err := NewSignerForChain("", big.NewInt(id), nil)
			require.NoError(t, err)
			assert.Equal(t, anvilAddress, s.Address())
		}
	})

	t.Run("requires a key elsewhere", func(t *testing.T) {
		_, err := NewSignerForChain("", big.NewInt(17000), nil)
		assert.ErrorIs(t, err, ErrNoDeployerKey)
	})

	t.Run("refuses the public key on production chains", func(t *testing.T) {
		for _, id := range []int64{1, 10, 42161, 137, 8453} {
			_, err := NewSignerForChain("0x"+AnvilDefaultKey, big.NewInt(id), nil)
			assert.ErrorIs(t, err, ErrPublicKeyOnProduction, "chain %d", id)
		}
	})

	t.Run("uses configured key", func(t *testing.T) {
		key := "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
		s, err := NewSignerForChain(key, big.NewInt(1), nil)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), s.Address())
	})
}
