package chain

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var bigIntType = reflect.TypeOf(&big.Int{})

// CoerceArgs converts loosely typed values into the exact Go types abi.Pack expects
// for inputs. Integers may be given as *big.Int, any Go integer or a decimal string;
// addresses as common.Address or a hex string. Other types pass through unchanged.
func CoerceArgs(inputs abi.Arguments, args []any) ([]any, error) {
	if len(inputs) != len(args) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(inputs), len(args))
	}

	out := make([]any, len(args))
	for i, in := range inputs {
		v, err := coerce(in.Type, args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s %s): %w", i, in.Type.String(), in.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

func coerce(t abi.Type, v any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		switch x := v.(type) {
		case common.Address:
			return x, nil
		case *common.Address:
			if x == nil {
				return nil, fmt.Errorf("nil address")
			}
			return *x, nil
		case string:
			if !common.IsHexAddress(x) {
				return nil, fmt.Errorf("%q is not a hex address", x)
			}
			return common.HexToAddress(x), nil
		}
		return nil, fmt.Errorf("cannot use %T as address", v)

	case abi.UintTy, abi.IntTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		return fitInteger(t, n)
	}
	return v, nil
}

func toBigInt(v any) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return new(big.Int).Set(x), nil
	case big.Int:
		return new(big.Int).Set(&x), nil
	case string:
		n, ok := new(big.Int).SetString(strings.TrimSpace(x), 10)
		if !ok {
			return nil, fmt.Errorf("%q is not a decimal integer", x)
		}
		return n, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("cannot use %T as integer", v)
}

// fitInteger range-checks n against t and returns the Go type abi.Pack wants:
// uintN/intN for the native sizes, *big.Int otherwise.
func fitInteger(t abi.Type, n *big.Int) (any, error) {
	if t.T == abi.UintTy {
		if n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %s for %s", n, t.String())
		}
		if n.BitLen() > t.Size {
			return nil, fmt.Errorf("value %s overflows %s", n, t.String())
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		minVal := new(big.Int).Neg(limit)
		if n.Cmp(minVal) < 0 || n.Cmp(limit) >= 0 {
			return nil, fmt.Errorf("value %s overflows %s", n, t.String())
		}
	}

	target := t.GetType()
	if target == bigIntType {
		return n, nil
	}
	if t.T == abi.UintTy {
		return reflect.ValueOf(n.Uint64()).Convert(target).Interface(), nil
	}
	return reflect.ValueOf(n.Int64()).Convert(target).Interface(), nil
}
