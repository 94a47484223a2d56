package deploy

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MaxFeePercent is the upper bound of the fee percentage accepted by the registries.
const MaxFeePercent = 100

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Params is the immutable input of a run.
type Params struct {
	// MinStake is the minimum stake in wei.
	MinStake     *big.Int
	FeeRecipient common.Address
	Oracle       common.Address
	FeePercent   uint16
}

// ParseParams converts raw configuration values into Params.
// Any malformed value yields a KindConfiguration *DeploymentError.
func ParseParams(minStake, feeRecipient, oracle string, feePercent int64) (Params, error) {
	stake, ok := new(big.Int).SetString(strings.TrimSpace(minStake), 10)
	if !ok {
		return Params{}, newConfigurationError("min stake %q is not a decimal integer", minStake)
	}
	if !common.IsHexAddress(feeRecipient) {
		return Params{}, newConfigurationError("fee recipient %q is not an address", feeRecipient)
	}
	if !common.IsHexAddress(oracle) {
		return Params{}, newConfigurationError("oracle %q is not an address", oracle)
	}
	if feePercent < 0 || feePercent > MaxFeePercent {
		return Params{}, newConfigurationError("fee percent %d out of range [0,%d]", feePercent, MaxFeePercent)
	}

	p := Params{
		MinStake:     stake,
		FeeRecipient: common.HexToAddress(feeRecipient),
		Oracle:       common.HexToAddress(oracle),
		FeePercent:   uint16(feePercent),
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate checks ranges that the constructors would otherwise revert on.
func (p Params) Validate() error {
	switch {
	case p.MinStake == nil:
		return newConfigurationError("min stake is required")
	case p.MinStake.Sign() <= 0:
		return newConfigurationError("min stake must be positive, got %s", p.MinStake)
	case p.MinStake.Cmp(maxUint256) > 0:
		return newConfigurationError("min stake %s overflows uint256", p.MinStake)
	case p.FeeRecipient == (common.Address{}):
		return newConfigurationError("fee recipient must not be the zero address")
	case p.Oracle == (common.Address{}):
		return newConfigurationError("oracle must not be the zero address")
	case p.FeePercent > MaxFeePercent:
		return newConfigurationError("fee percent %d out of range [0,%d]", p.FeePercent, MaxFeePercent)
	}
	return nil
}
