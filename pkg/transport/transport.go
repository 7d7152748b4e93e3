package transport

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	log "github.com/sirupsen/logrus"

	"github.com/ethstorage/directrequest-cli/pkg/config"
)

const defaultReceiptPollInterval = time.Second

var (
	ErrNoAccounts     = errors.New("no accounts available")
	ErrUnknownAccount = errors.New("no signing key for account")
)

// Backend is the chain access a Transport needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// RPCCaller issues raw JSON-RPC calls. Only the node-signed kind uses it.
type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Call describes a transaction to submit. A nil To creates a contract.
type Call struct {
	From  common.Address
	To    *common.Address
	Value *big.Int
	Data  []byte
}

// TxError is returned for transactions that were mined but reverted.
type TxError struct {
	Hash    common.Hash
	Receipt *types.Receipt
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction %s reverted", e.Hash.Hex())
}

// Transport is the process-wide signing connection. It is built once and is
// safe for concurrent use; nothing mutates it after construction except the
// lazily fetched chain id.
type Transport struct {
	Kind   Kind
	Logger *log.Logger

	// ReceiptPollInterval controls WaitMined.
	ReceiptPollInterval time.Duration

	backend Backend
	rpc     RPCCaller
	closer  func()
	account common.Address
	keys    map[common.Address]*ecdsa.PrivateKey
	order   []common.Address

	mu      sync.Mutex
	chainID *big.Int
}

// Dial builds the signing transport for rpcURL. No request is sent until the
// first transaction or call.
func Dial(ctx context.Context, sel Selection, rpcURL string, account common.Address) (*Transport, error) {
	if rpcURL == "" {
		return nil, config.ErrMissingRPCURL
	}
	client, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	t := New(sel, ethclient.NewClient(client), client, account)
	t.closer = client.Close
	return t, nil
}

// New wraps an existing backend. rpcCaller may be nil for the wallet kinds.
func New(sel Selection, backend Backend, rpcCaller RPCCaller, account common.Address) *Transport {
	t := &Transport{
		Kind:                sel.Kind,
		Logger:              log.StandardLogger(),
		ReceiptPollInterval: defaultReceiptPollInterval,
		backend:             backend,
		rpc:                 rpcCaller,
		account:             account,
		keys:                make(map[common.Address]*ecdsa.PrivateKey, len(sel.Keys)),
	}
	for _, key := range sel.Keys {
		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, ok := t.keys[addr]; ok {
			continue
		}
		t.keys[addr] = key
		t.order = append(t.order, addr)
	}
	return t
}

func (t *Transport) Close() {
	if t.closer != nil {
		t.closer()
	}
}

// Accounts lists the accounts this transport can send from. Wallet kinds list
// their own keys; the node-signed kind asks the node.
func (t *Transport) Accounts(ctx context.Context) ([]common.Address, error) {
	if t.Kind != KindHTTP {
		return append([]common.Address(nil), t.order...), nil
	}
	if t.rpc == nil {
		return nil, ErrNoAccounts
	}

	var accounts []common.Address
	if err := t.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

// From returns the default sender: the configured account, else the first
// available account.
func (t *Transport) From(ctx context.Context) (common.Address, error) {
	if t.account != (common.Address{}) {
		return t.account, nil
	}

	accounts, err := t.Accounts(ctx)
	if err != nil {
		return common.Address{}, err
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNoAccounts
	}
	return accounts[0], nil
}

// Send submits call and returns the transaction hash without waiting for it
// to be mined.
func (t *Transport) Send(ctx context.Context, call Call) (common.Hash, error) {
	if call.From == (common.Address{}) {
		from, err := t.From(ctx)
		if err != nil {
			return common.Hash{}, err
		}
		call.From = from
	}
	if call.Value == nil {
		call.Value = new(big.Int)
	}

	if t.Kind == KindHTTP {
		return t.sendUnsigned(ctx, call)
	}
	return t.sendSigned(ctx, call)
}

type sendTxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
}

func (t *Transport) sendUnsigned(ctx context.Context, call Call) (common.Hash, error) {
	if t.rpc == nil {
		return common.Hash{}, errors.New("node-signed transport has no rpc client")
	}

	args := sendTxArgs{
		From:  call.From,
		To:    call.To,
		Value: (*hexutil.Big)(call.Value),
		Data:  call.Data,
	}

	var hash common.Hash
	if err := t.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	t.Logger.Debugf("eth_sendTransaction from %s: %s", call.From.Hex(), hash.Hex())
	return hash, nil
}

func (t *Transport) sendSigned(ctx context.Context, call Call) (common.Hash, error) {
	key, ok := t.keys[call.From]
	if !ok {
		return common.Hash{}, fmt.Errorf("%w %s", ErrUnknownAccount, call.From.Hex())
	}

	chainID, err := t.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := t.backend.PendingNonceAt(ctx, call.From)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}

	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}

	gas, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     call.From,
		To:       call.To,
		GasPrice: gasPrice,
		Value:    call.Value,
		Data:     call.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       call.To,
		Value:    call.Value,
		Data:     call.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return common.Hash{}, err
	}

	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	t.Logger.Debugf("sent tx %s from %s nonce=%d gas=%d", signed.Hash().Hex(), call.From.Hex(), nonce, gas)
	return signed.Hash(), nil
}

// ChainID is fetched on first use and cached.
func (t *Transport) ChainID(ctx context.Context) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.chainID != nil {
		return t.chainID, nil
	}
	id, err := t.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	t.chainID = id
	return id, nil
}

// WaitMined polls for the receipt of hash. A reverted transaction yields a
// *TxError alongside the receipt.
func (t *Transport) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	interval := t.ReceiptPollInterval
	if interval <= 0 {
		interval = defaultReceiptPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := t.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, &TxError{Hash: hash, Receipt: receipt}
			}
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			t.Logger.Debugf("receipt for %s: %v", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Transport) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return t.backend.CodeAt(ctx, contract, blockNumber)
}

func (t *Transport) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return t.backend.CallContract(ctx, call, blockNumber)
}
