package validate

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
)

var hexRegex = regexp.MustCompile(`^0[xX]([0-9a-fA-F]{2})*$`)

// NotEmpty rejects blank input.
func NotEmpty(input string) error {
	if strings.TrimSpace(input) == "" {
		return errors.New("input must not be empty")
	}
	return nil
}

// Address accepts a 20 byte hex address, with or without 0x.
func Address(input string) error {
	if !common.IsHexAddress(strings.TrimSpace(input)) {
		return errors.New("input must be a 20 byte hex address")
	}
	return nil
}

// Integer returns a ValidateFunc accepting decimal or 0x-prefixed integers that
// fit in an ABI integer of the given size.
func Integer(signed bool, bits int) promptui.ValidateFunc {
	return func(input string) error {
		n, ok := new(big.Int).SetString(strings.TrimSpace(input), 0)
		if !ok {
			return errors.New("input must be an integer")
		}
		if !signed && n.Sign() < 0 {
			return errors.New("input must not be negative")
		}

		limit := bits
		if signed {
			limit--
		}
		abs := new(big.Int).Abs(n)
		if signed && n.Sign() < 0 {
			// -2^(bits-1) is the smallest value and has bit length bits.
			abs.Sub(abs, big.NewInt(1))
		}
		if abs.BitLen() > limit {
			return fmt.Errorf("input overflows a %d bit integer", bits)
		}
		return nil
	}
}

func Bool(input string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(input)); err != nil {
		return errors.New("input must be true or false")
	}
	return nil
}

// Hex accepts 0x-prefixed hex of up to max bytes. A max of zero means any
// length.
func Hex(max int) promptui.ValidateFunc {
	return func(input string) error {
		input = strings.TrimSpace(input)
		if !hexRegex.MatchString(input) {
			return errors.New("input must be 0x-prefixed hex")
		}
		if max > 0 && (len(input)-2)/2 > max {
			return fmt.Errorf("input must be at most %d bytes", max)
		}
		return nil
	}
}

// JobID accepts a Chainlink job id: a UUID, with or without dashes.
func JobID(input string) error {
	if _, err := uuid.Parse(strings.TrimSpace(input)); err != nil {
		return fmt.Errorf("input must be a job id UUID: %w", err)
	}
	return nil
}

// ForType returns the validator matching an ABI argument type. Strings accept
// anything.
func ForType(ty abi.Type) promptui.ValidateFunc {
	switch ty.T {
	case abi.UintTy:
		return Integer(false, ty.Size)
	case abi.IntTy:
		return Integer(true, ty.Size)
	case abi.AddressTy:
		return Address
	case abi.BoolTy:
		return Bool
	case abi.BytesTy:
		return Hex(0)
	case abi.FixedBytesTy:
		return Hex(ty.Size)
	default:
		return func(string) error { return nil }
	}
}
