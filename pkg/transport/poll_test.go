package transport

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	mu      sync.Mutex
	head    uint64
	logs    []types.Log
	queries []ethereum.FilterQuery
}

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

func (c *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, q)

	var out []types.Log
	for _, l := range c.logs {
		if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *fakeChain) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: new(big.Int).Set(number)}, nil
}

func (c *fakeChain) mine(logs ...types.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head++
	for _, l := range logs {
		l.BlockNumber = c.head
		c.logs = append(c.logs, l)
	}
}

func TestPollerDeliversOnlyNewLogs(t *testing.T) {
	chain := &fakeChain{head: 10}
	chain.logs = []types.Log{{BlockNumber: 10, TxHash: common.HexToHash("0x0a")}}

	p := NewPoller(chain, 5*time.Millisecond, nil)
	ch := make(chan types.Log, 4)
	sub, err := p.SubscribeFilterLogs(context.Background(), ethereum.FilterQuery{}, ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	chain.mine(types.Log{TxHash: common.HexToHash("0x0b")})

	select {
	case l := <-ch:
		assert.Equal(t, common.HexToHash("0x0b"), l.TxHash)
		assert.Equal(t, uint64(11), l.BlockNumber)
	case <-time.After(time.Second):
		t.Fatal("no log delivered")
	}

	select {
	case l := <-ch:
		t.Fatalf("unexpected log %v", l.TxHash)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestPollerStreamsHeads(t *testing.T) {
	chain := &fakeChain{head: 3}
	p := NewPoller(chain, 5*time.Millisecond, nil)

	ch := make(chan *types.Header, 4)
	sub, err := p.SubscribeNewHead(context.Background(), ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	chain.mine()
	chain.mine()

	for _, want := range []int64{4, 5} {
		select {
		case h := <-ch:
			assert.Equal(t, big.NewInt(want), h.Number)
		case <-time.After(time.Second):
			t.Fatalf("no header %d", want)
		}
	}
}

func TestPollerStopsOnUnsubscribe(t *testing.T) {
	chain := &fakeChain{}
	p := NewPoller(chain, 5*time.Millisecond, nil)

	sub, err := p.SubscribeFilterLogs(context.Background(), ethereum.FilterQuery{}, make(chan types.Log))
	require.NoError(t, err)
	sub.Unsubscribe()

	_, open := <-sub.Err()
	assert.False(t, open)
}
