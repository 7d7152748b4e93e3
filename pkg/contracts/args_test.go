package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustType(t *testing.T, s string) abi.Type {
	ty, err := abi.NewType(s, "", nil)
	require.NoError(t, err)
	return ty
}

// 2^255 and 2^255-1.
const (
	int256Limit = "57896044618658097711785492504343953926634992332820282019728792003956564819968"
	int256Max   = "57896044618658097711785492504343953926634992332820282019728792003956564819967"
)

func mustBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return n
}

func TestParseArgument(t *testing.T) {
	tests := []struct {
		ty      string
		in      string
		want    interface{}
		wantErr bool
	}{
		{ty: "uint256", in: "1000000000000000000", want: big.NewInt(1_000_000_000_000_000_000)},
		{ty: "uint256", in: "0x10", want: big.NewInt(16)},
		{ty: "uint256", in: "-1", wantErr: true},
		{ty: "int256", in: "-100", want: big.NewInt(-100)},
		{ty: "uint8", in: "255", want: uint8(255)},
		{ty: "uint8", in: "256", wantErr: true},
		{ty: "int64", in: "-5", want: int64(-5)},
		{ty: "int8", in: "-128", want: int8(-128)},
		{ty: "int8", in: "127", want: int8(127)},
		{ty: "int8", in: "128", wantErr: true},
		{ty: "int8", in: "-129", wantErr: true},
		{ty: "int256", in: int256Max, want: mustBig(int256Max)},
		{ty: "int256", in: "-" + int256Limit, want: mustBig("-" + int256Limit)},
		{ty: "int256", in: int256Limit, wantErr: true},
		{ty: "uint24", in: "16777215", want: big.NewInt(16777215)},
		{ty: "uint24", in: "16777216", wantErr: true},
		{ty: "uint32", in: "abc", wantErr: true},
		{ty: "address", in: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", want: common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")},
		{ty: "address", in: "0x1234", wantErr: true},
		{ty: "bool", in: "true", want: true},
		{ty: "bool", in: "yes", wantErr: true},
		{ty: "string", in: " last ", want: "last"},
		{ty: "bytes", in: "0xcafe", want: []byte{0xca, 0xfe}},
		{ty: "bytes", in: "cafe", wantErr: true},
		{ty: "bytes", in: "0xcaf", wantErr: true},
		{ty: "bytes4", in: "0x01020304", want: [4]byte{1, 2, 3, 4}},
		{ty: "bytes4", in: "0x0102030405", wantErr: true},
		{ty: "bytes32", in: "0x01", want: [32]byte{1}},
	}

	for _, tt := range tests {
		t.Run(tt.ty+"/"+tt.in, func(t *testing.T) {
			got, err := ParseArgument(mustType(t, tt.ty), tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseArgumentsPacks(t *testing.T) {
	artifacts, err := LoadArtifacts("")
	require.NoError(t, err)
	method := artifacts[TestConsumer].ABI.Methods["requestGetUInt256"]

	args, err := ParseArguments(method.Inputs, []string{
		"0x00000000000000000000000000000000000000e0", "abc123", "1", "https://example.org", "last", "-100",
	})
	require.NoError(t, err)

	_, err = artifacts[TestConsumer].ABI.Pack("requestGetUInt256", args...)
	assert.NoError(t, err)

	_, err = ParseArguments(method.Inputs, []string{"0x00000000000000000000000000000000000000e0"})
	assert.Error(t, err)
}

func TestFormatValues(t *testing.T) {
	artifacts, err := LoadArtifacts("")
	require.NoError(t, err)
	ev := artifacts[TestConsumer].ABI.Events["FullfillUInt256"]

	out := FormatValues(ev.Inputs, map[string]interface{}{
		"requestId": [32]byte{0xab},
		"value":     big.NewInt(42),
		"extra":     "kept",
	})
	assert.Equal(t, "0xab00000000000000000000000000000000000000000000000000000000000000", out["requestId"])
	assert.Equal(t, "42", out["value"])
	assert.Equal(t, "kept", out["extra"])
}

func TestFormatValueAddressAndSlice(t *testing.T) {
	addr := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	assert.Equal(t, addr.Hex(), FormatValue(mustType(t, "address"), addr))

	got := FormatValue(mustType(t, "uint256[]"), []*big.Int{big.NewInt(1), big.NewInt(2)})
	assert.Equal(t, []interface{}{"1", "2"}, got)
}
