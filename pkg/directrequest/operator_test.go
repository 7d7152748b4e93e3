package directrequest

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethstorage/directrequest-cli/internal/testchain"
	"github.com/ethstorage/directrequest-cli/pkg/config"
	"github.com/ethstorage/directrequest-cli/pkg/contracts"
	"github.com/ethstorage/directrequest-cli/pkg/correlate"
	"github.com/ethstorage/directrequest-cli/pkg/stats"
	"github.com/ethstorage/directrequest-cli/pkg/transport"
)

// Deploys a contract with empty runtime code: every call to it succeeds.
var emptyContract = common.FromHex("0x60006000f3")

// fakeFilterer hands each log subscription a channel the test writes to.
type fakeFilterer struct {
	mu   sync.Mutex
	subs map[common.Hash]chan<- types.Log
}

func (f *fakeFilterer) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeFilterer) SubscribeFilterLogs(_ context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[common.Hash]chan<- types.Log)
	}
	f.subs[q.Topics[0][0]] = ch
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	}), nil
}

func (f *fakeFilterer) emit(topic common.Hash, l types.Log) bool {
	f.mu.Lock()
	ch, ok := f.subs[topic]
	f.mu.Unlock()
	if ok {
		ch <- l
	}
	return ok
}

type fakeStats struct {
	actions []stats.Action
}

func (s *fakeStats) Record(_ context.Context, a stats.Action) { s.actions = append(s.actions, a) }
func (s *fakeStats) Close()                                   {}

type fixture struct {
	op       *Operator
	chain    *testchain.Chain
	events   *fakeFilterer
	stats    *fakeStats
	registry *contracts.Registry
}

func deployableArtifacts(t *testing.T) map[contracts.Name]*contracts.Artifact {
	artifacts, err := contracts.LoadArtifacts("")
	require.NoError(t, err)
	for _, a := range artifacts {
		a.Bytecode = emptyContract
	}
	return artifacts
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger
}

func newFixture(t *testing.T, conf config.Config) *fixture {
	chain := testchain.NewChain(t)
	tr := transport.New(transport.Selection{Kind: transport.KindPrivateKeys, Keys: []*ecdsa.PrivateKey{chain.Key}}, chain, nil, common.Address{})
	tr.ReceiptPollInterval = 10 * time.Millisecond
	tr.Logger = quietLogger()

	events := &fakeFilterer{}
	registry, err := contracts.NewRegistry(deployableArtifacts(t), tr, events, common.Address{})
	require.NoError(t, err)

	st := &fakeStats{}
	return &fixture{
		op: &Operator{
			Config:     conf,
			Registry:   registry,
			Transport:  tr,
			Correlator: &correlate.Correlator{Timeout: 5 * time.Second, Logger: quietLogger()},
			Stats:      st,
			Logger:     quietLogger(),
		},
		chain:    chain,
		events:   events,
		stats:    st,
		registry: registry,
	}
}

func TestFundNodeSendsOneEther(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()
	node := common.HexToAddress("0x00000000000000000000000000000000000000b1")

	hash, err := f.op.FundNode(ctx, node)
	require.NoError(t, err)

	tx, _, err := f.chain.TransactionByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000_000_000_000_000), tx.Value())
	assert.Equal(t, node, *tx.To())

	balance, err := f.chain.BalanceAt(ctx, node, nil)
	require.NoError(t, err)
	assert.Equal(t, OneEther, balance)

	require.Len(t, f.stats.actions, 1)
	assert.Equal(t, stats.Action{Name: "fundNode", Kind: "private-keys", TxHash: hash, Address: node}, f.stats.actions[0])
}

func TestFundConsumerTransfersOneUnit(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()

	token, err := f.op.DeployToken(ctx, []string{"Chainlink Token", "LINK", "1000000000000000000", f.chain.Address.Hex()})
	require.NoError(t, err)
	consumer := common.HexToAddress("0x00000000000000000000000000000000000000c0")

	hash, err := f.op.FundConsumer(ctx, token, consumer)
	require.NoError(t, err)

	tx, _, err := f.chain.TransactionByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, token, *tx.To())
	assert.Zero(t, tx.Value().Sign())

	artifact, err := f.registry.Artifact(contracts.Token)
	require.NoError(t, err)
	transfer := artifact.ABI.Methods["transfer"]
	assert.Equal(t, transfer.ID, tx.Data()[:4])

	args, err := transfer.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, consumer, args[0])
	assert.Equal(t, big.NewInt(1), args[1])
}

// Deploys a contract that returns 42 from every call.
var constantContract = common.FromHex("0x600a600c600039600a6000f3602a60005260206000f3")

func TestTokenBalance(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()

	hash, err := f.op.Transport.Send(ctx, transport.Call{Data: constantContract})
	require.NoError(t, err)
	receipt, err := f.op.Transport.WaitMined(ctx, hash)
	require.NoError(t, err)

	balance, err := f.op.TokenBalance(ctx, receipt.ContractAddress, common.HexToAddress("0xc1"))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), balance)

	_, err = f.op.TokenBalance(ctx, common.Address{}, common.HexToAddress("0xc1"))
	assert.ErrorIs(t, err, contracts.ErrNoAddress)
}

func TestDeployOracleAndConsumer(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()
	link := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	oracle, err := f.op.DeployOracle(ctx, link)
	require.NoError(t, err)
	consumer, err := f.op.DeployConsumer(ctx, link)
	require.NoError(t, err)

	assert.Equal(t, crypto.CreateAddress(f.chain.Address, 0), oracle)
	assert.Equal(t, crypto.CreateAddress(f.chain.Address, 1), consumer)
}

func TestSetFulfillmentPermission(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()

	oracle, err := f.op.DeployOracle(ctx, common.Address{})
	require.NoError(t, err)

	node := "0x00000000000000000000000000000000000000d0"
	hash, err := f.op.SetFulfillmentPermission(ctx, oracle, []string{node, "true"})
	require.NoError(t, err)

	tx, _, err := f.chain.TransactionByHash(ctx, hash)
	require.NoError(t, err)
	artifact, _ := f.registry.Artifact(contracts.Oracle)
	args, err := artifact.ABI.Methods["setFulfillmentPermission"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(node), args[0])
	assert.Equal(t, true, args[1])

	_, err = f.op.SetFulfillmentPermission(ctx, oracle, []string{node, "maybe"})
	assert.Error(t, err)
}

func TestRequestUInt256(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()

	consumer, err := f.op.DeployConsumer(ctx, common.Address{})
	require.NoError(t, err)

	artifact, err := f.registry.Artifact(contracts.TestConsumer)
	require.NoError(t, err)
	requested := artifact.ABI.Events["RequestUInt256"].ID
	fulfilled := artifact.ABI.Events["FullfillUInt256"].ID
	requestID := common.HexToHash("0x5eed")

	// The node answers within the block of the request.
	f.chain.OnSend(func(tx *types.Transaction) {
		if tx.To() == nil || *tx.To() != consumer {
			return
		}
		require.True(t, f.events.emit(requested, types.Log{
			Address: consumer, BlockNumber: 3, TxHash: tx.Hash(),
			Topics: []common.Hash{requested, requestID},
		}))
		require.True(t, f.events.emit(fulfilled, types.Log{
			Address: consumer, BlockNumber: 3,
			Topics: []common.Hash{fulfilled, requestID},
			Data:   common.LeftPadBytes(big.NewInt(123456).Bytes(), 32),
		}))
	})

	oracle := "0x00000000000000000000000000000000000000e0"
	raw := []string{oracle, "abc-123-def-456", "1", "https://www.bitstamp.net/api/ticker/", "last", "100"}

	var got []correlate.Record
	hash, err := f.op.RequestUInt256(ctx, consumer, raw, func(r correlate.Record) { got = append(got, r) })
	require.NoError(t, err)
	assert.Equal(t, "abc-123-def-456", raw[1])

	tx, _, err := f.chain.TransactionByHash(ctx, hash)
	require.NoError(t, err)
	args, err := artifact.ABI.Methods["requestGetUInt256"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(oracle), args[0])
	assert.Equal(t, "abc123def456", args[1])
	assert.Equal(t, big.NewInt(1), args[2])
	assert.Equal(t, big.NewInt(100), args[5])

	require.Len(t, got, 2)
	assert.Equal(t, "RequestUInt256", got[0].Event)
	assert.Equal(t, hash, got[0].TxHash)
	assert.Equal(t, requestID.Hex(), got[0].ReturnValues["requestId"])
	assert.Equal(t, "FullfillUInt256", got[1].Event)
	assert.Equal(t, "123456", got[1].ReturnValues["value"])
	assert.Equal(t, requestID.Hex(), got[1].ReturnValues["requestId"])
}

func TestRequestUInt256WithoutConsumer(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()

	raw := []string{common.Address{}.Hex(), NilJobID, "1", "u", "p", "1"}
	_, err := f.op.RequestUInt256(ctx, common.Address{}, raw, func(correlate.Record) {})
	assert.ErrorIs(t, err, contracts.ErrNoAddress)

	nonce, err := f.chain.PendingNonceAt(ctx, f.chain.Address)
	require.NoError(t, err)
	assert.Zero(t, nonce)
}

func TestWatchOracleRequest(t *testing.T) {
	f := newFixture(t, config.Config{})
	oracle := common.HexToAddress("0x00000000000000000000000000000000000000f0")

	artifact, err := f.registry.Artifact(contracts.Oracle)
	require.NoError(t, err)
	ev := artifact.ABI.Events["OracleRequest"]
	specID := common.HexToHash("0x01")

	data, err := ev.Inputs.NonIndexed().Pack(
		common.HexToAddress("0x0a"), [32]byte{2}, big.NewInt(1),
		common.HexToAddress("0x0b"), [4]byte{1, 2, 3, 4}, big.NewInt(300), big.NewInt(1), []byte{0xca, 0xfe},
	)
	require.NoError(t, err)

	go func() {
		for !f.events.emit(ev.ID, types.Log{Address: oracle, BlockNumber: 9, Topics: []common.Hash{ev.ID, specID}, Data: data}) {
			time.Sleep(time.Millisecond)
		}
	}()

	rec, err := f.op.WatchOracleRequest(context.Background(), oracle)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), rec.BlockNumber)
	assert.Equal(t, specID.Hex(), rec.ReturnValues["specId"])
	assert.Equal(t, "0x01020304", rec.ReturnValues["callbackFunctionId"])
	assert.Equal(t, "300", rec.ReturnValues["cancelExpiration"])
}

type fakeHeads struct {
	fakeFilterer
	heads []*types.Header
}

func (f *fakeHeads) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		for _, h := range f.heads {
			select {
			case ch <- h:
			case <-quit:
				return nil
			}
		}
		<-quit
		return nil
	}), nil
}

func (f *fakeHeads) Close() {}

func TestWatchBlocksStopsWithContext(t *testing.T) {
	heads := &fakeHeads{heads: []*types.Header{{Number: big.NewInt(1)}, {Number: big.NewInt(2)}}}
	op := &Operator{Events: heads, Logger: quietLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	var got []uint64
	err := op.WatchBlocks(ctx, func(h *types.Header) {
		got = append(got, h.Number.Uint64())
		if len(got) == 2 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []uint64{1, 2}, got)
}
