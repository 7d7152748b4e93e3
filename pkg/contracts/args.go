package contracts

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseArguments converts one string per ABI input into packable values.
func ParseArguments(inputs abi.Arguments, raw []string) ([]interface{}, error) {
	if len(raw) != len(inputs) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(inputs), len(raw))
	}

	values := make([]interface{}, 0, len(inputs))
	for i, input := range inputs {
		v, err := ParseArgument(input.Type, raw[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s %s): %w", i, input.Type.String(), input.Name, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// ParseArgument parses s into the Go value go-ethereum packs for ty.
func ParseArgument(ty abi.Type, s string) (interface{}, error) {
	s = strings.TrimSpace(s)

	switch ty.T {
	case abi.UintTy, abi.IntTy:
		n, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return nil, fmt.Errorf("not a number: %q", s)
		}
		if ty.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("number is negative: %q", s)
		}
		return sizedInteger(ty, n)

	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("not an address: %q", s)
		}
		return common.HexToAddress(s), nil

	case abi.BoolTy:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("not a bool: %q", s)
		}
		return b, nil

	case abi.StringTy:
		return s, nil

	case abi.BytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("not a valid hex string: %q", s)
		}
		return b, nil

	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil || len(b) > ty.Size {
			return nil, fmt.Errorf("not a valid bytes%d hex string: %q", ty.Size, s)
		}
		v := reflect.New(ty.GetType()).Elem()
		reflect.Copy(v, reflect.ValueOf(b))
		return v.Interface(), nil

	default:
		return nil, fmt.Errorf("unsupported type %s", ty.String())
	}
}

// sizedInteger range checks n against ty and converts it to the native Go type
// go-ethereum expects for 8, 16, 32 and 64 bit integers.
func sizedInteger(ty abi.Type, n *big.Int) (interface{}, error) {
	if !fitsInteger(ty, n) {
		return nil, fmt.Errorf("%s overflows %s", n, ty.String())
	}
	switch ty.Size {
	case 8, 16, 32, 64:
	default:
		return n, nil
	}

	if ty.T == abi.UintTy {
		u := n.Uint64()
		switch ty.Size {
		case 8:
			return uint8(u), nil
		case 16:
			return uint16(u), nil
		case 32:
			return uint32(u), nil
		default:
			return u, nil
		}
	}

	i := n.Int64()
	switch ty.Size {
	case 8:
		return int8(i), nil
	case 16:
		return int16(i), nil
	case 32:
		return int32(i), nil
	default:
		return i, nil
	}
}

// fitsInteger reports whether n lies in [0, 2^size) for unsigned types and in
// [-2^(size-1), 2^(size-1)) for signed ones.
func fitsInteger(ty abi.Type, n *big.Int) bool {
	if ty.T == abi.UintTy {
		return n.Sign() >= 0 && n.BitLen() <= ty.Size
	}
	abs := new(big.Int).Abs(n)
	if n.Sign() < 0 {
		abs.Sub(abs, big.NewInt(1))
	}
	return abs.BitLen() <= ty.Size-1
}

// FormatValue converts a decoded value to something printable: numbers and
// addresses as strings, bytes as 0x hex, slices recursively.
func FormatValue(ty abi.Type, value interface{}) interface{} {
	switch ty.T {
	case abi.IntTy, abi.UintTy, abi.FixedPointTy:
		return fmt.Sprintf("%v", value)
	case abi.AddressTy:
		if addr, ok := value.(common.Address); ok {
			return addr.Hex()
		}
		return fmt.Sprintf("%v", value)
	case abi.BytesTy, abi.FixedBytesTy, abi.HashTy:
		if h, ok := value.(common.Hash); ok {
			return h.Hex()
		}
		return fmt.Sprintf("0x%x", value)
	case abi.SliceTy, abi.ArrayTy:
		result := make([]interface{}, 0)
		rv := reflect.ValueOf(value)
		for i := 0; i < rv.Len(); i++ {
			result = append(result, FormatValue(*ty.Elem, rv.Index(i).Interface()))
		}
		return result
	default:
		return value
	}
}

// FormatValues applies FormatValue to every named value in args.
func FormatValues(args abi.Arguments, values map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		out[k] = v
	}
	for _, arg := range args {
		if v, ok := values[arg.Name]; ok {
			out[arg.Name] = FormatValue(arg.Type, v)
		}
	}
	return out
}
