// Package testchain provides in-process chains for tests: a simulated
// backend for the wallet transports and a fake node for the node-signed one.
package testchain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
)

// SimulatedChainID is the chain id of params.AllEthashProtocolChanges, which
// the simulated backend runs with.
var SimulatedChainID = big.NewInt(1337)

// Chain is a simulated backend that mines a block for every transaction.
type Chain struct {
	*backends.SimulatedBackend

	Key     *ecdsa.PrivateKey
	Address common.Address

	mu     sync.Mutex
	onSend []func(tx *types.Transaction)
}

// NewChain funds a fresh key with 1000 ether.
func NewChain(t testing.TB) *Chain {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	balance := new(big.Int).Mul(big.NewInt(1000), big.NewInt(params.Ether))
	sim := backends.NewSimulatedBackend(core.GenesisAlloc{addr: {Balance: balance}}, 30_000_000)
	t.Cleanup(func() { sim.Close() })

	return &Chain{SimulatedBackend: sim, Key: key, Address: addr}
}

func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(SimulatedChainID), nil
}

// OnSend registers fn to run after each transaction is mined.
func (c *Chain) OnSend(fn func(tx *types.Transaction)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSend = append(c.onSend, fn)
}

func (c *Chain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.SimulatedBackend.SendTransaction(ctx, tx); err != nil {
		return err
	}
	c.Commit()

	c.mu.Lock()
	hooks := append([]func(*types.Transaction){}, c.onSend...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(tx)
	}
	return nil
}
