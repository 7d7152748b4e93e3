package testchain

import (
	"errors"
	"math/big"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

// SentTx is a transaction the fake node accepted through eth_sendTransaction.
type SentTx struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
	Data  hexutil.Bytes   `json:"data"`

	Nonce uint64 `json:"-"`
}

// Node is a JSON-RPC server that signs for its own accounts, the way a dev
// node does. Every accepted transaction is mined immediately and succeeds.
type Node struct {
	URL      string
	Accounts []common.Address

	mu       sync.Mutex
	sent     []SentTx
	receipts map[common.Hash]*types.Receipt
	nonces   map[common.Address]uint64
}

// NewNode starts a node managing accounts and stops it when the test ends.
func NewNode(t testing.TB, accounts ...common.Address) *Node {
	t.Helper()

	n := &Node{
		Accounts: accounts,
		receipts: make(map[common.Hash]*types.Receipt),
		nonces:   make(map[common.Address]uint64),
	}

	server := rpc.NewServer()
	if err := server.RegisterName("eth", &ethService{node: n}); err != nil {
		t.Fatal(err)
	}
	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		httpServer.Close()
		server.Stop()
	})

	n.URL = httpServer.URL
	return n
}

// Sent returns the accepted transactions in order.
func (n *Node) Sent() []SentTx {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SentTx(nil), n.sent...)
}

type ethService struct {
	node *Node
}

func (s *ethService) Accounts() []common.Address {
	return s.node.Accounts
}

func (s *ethService) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(1337))
}

func (s *ethService) BlockNumber() hexutil.Uint64 {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	return hexutil.Uint64(len(s.node.sent))
}

func (s *ethService) SendTransaction(args SentTx) (common.Hash, error) {
	n := s.node
	n.mu.Lock()
	defer n.mu.Unlock()

	known := false
	for _, a := range n.Accounts {
		if a == args.From {
			known = true
		}
	}
	if !known {
		return common.Hash{}, errors.New("unknown account")
	}

	args.Nonce = n.nonces[args.From]
	n.nonces[args.From]++
	n.sent = append(n.sent, args)

	hash := crypto.Keccak256Hash(args.From.Bytes(), new(big.Int).SetUint64(args.Nonce).Bytes())
	receipt := &types.Receipt{
		Type:              types.LegacyTxType,
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: 21000,
		GasUsed:           21000,
		Logs:              []*types.Log{},
		TxHash:            hash,
		BlockNumber:       big.NewInt(int64(len(n.sent))),
	}
	if args.To == nil {
		receipt.ContractAddress = crypto.CreateAddress(args.From, args.Nonce)
	}
	n.receipts[hash] = receipt
	return hash, nil
}

func (s *ethService) GetTransactionReceipt(hash common.Hash) *types.Receipt {
	s.node.mu.Lock()
	defer s.node.mu.Unlock()
	return s.node.receipts[hash]
}
