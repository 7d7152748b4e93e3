package contracts

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethstorage/directrequest-cli/pkg/transport"
)

var (
	ErrNoAddress       = errors.New("contract address is not set")
	ErrUnknownContract = errors.New("unknown contract")
)

// Sender submits transactions and performs read calls. *transport.Transport
// implements it.
type Sender interface {
	bind.ContractCaller
	Send(ctx context.Context, call transport.Call) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type bindingKey struct {
	name Name
	addr common.Address
}

// Registry binds the contract artifacts to the signing transport and to the
// unsigned events connection.
type Registry struct {
	artifacts map[Name]*Artifact
	sender    Sender
	events    bind.ContractFilterer
	from      common.Address
	bindings  *lru.Cache[bindingKey, *bind.BoundContract]
}

// NewRegistry returns a registry whose transacting bindings send from the
// operator account. A zero from leaves the choice of sender to the transport.
func NewRegistry(artifacts map[Name]*Artifact, sender Sender, events bind.ContractFilterer, from common.Address) (*Registry, error) {
	cache, err := lru.New[bindingKey, *bind.BoundContract](64)
	if err != nil {
		return nil, err
	}
	return &Registry{
		artifacts: artifacts,
		sender:    sender,
		events:    events,
		from:      from,
		bindings:  cache,
	}, nil
}

func (r *Registry) Artifact(name Name) (*Artifact, error) {
	artifact, ok := r.artifacts[name]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownContract, name)
	}
	return artifact, nil
}

// Contract returns an undeployed transacting binding. Use At to point it at a
// deployed instance.
func (r *Registry) Contract(name Name) (*Contract, error) {
	artifact, err := r.Artifact(name)
	if err != nil {
		return nil, err
	}
	return &Contract{Artifact: artifact, sender: r.sender, from: r.from}, nil
}

// Events returns an event-only binding for the contract deployed at addr. It
// fails before any subscription is attempted if addr is the zero address.
func (r *Registry) Events(name Name, addr common.Address) (*bind.BoundContract, error) {
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("%s events: %w", name, ErrNoAddress)
	}
	if r.events == nil {
		return nil, errors.New("no events connection")
	}

	key := bindingKey{name: name, addr: addr}
	if bound, ok := r.bindings.Get(key); ok {
		return bound, nil
	}

	artifact, err := r.Artifact(name)
	if err != nil {
		return nil, err
	}
	bound := bind.NewBoundContract(addr, artifact.ABI, nil, nil, r.events)
	r.bindings.Add(key, bound)
	return bound, nil
}

// Contract is a transacting binding: it deploys, sends and calls through the
// signing transport.
type Contract struct {
	Artifact *Artifact
	Address  common.Address

	sender Sender
	from   common.Address
}

// At returns a copy of the binding pointed at addr.
func (c *Contract) At(addr common.Address) *Contract {
	cp := *c
	cp.Address = addr
	return &cp
}

// Deploy creates the contract with the given constructor arguments and waits
// for the receipt. The binding's address is set on success.
func (c *Contract) Deploy(ctx context.Context, args ...interface{}) (common.Address, *types.Receipt, error) {
	if len(c.Artifact.Bytecode) == 0 {
		return common.Address{}, nil, fmt.Errorf("deploy %s: %w", c.Artifact.Name, ErrNoBytecode)
	}

	input, err := c.Artifact.ABI.Pack("", args...)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("pack %s constructor: %w", c.Artifact.Name, err)
	}
	data := append(append([]byte{}, c.Artifact.Bytecode...), input...)

	hash, err := c.sender.Send(ctx, transport.Call{From: c.from, Data: data})
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("deploy %s: %w", c.Artifact.Name, err)
	}

	receipt, err := c.sender.WaitMined(ctx, hash)
	if err != nil {
		return common.Address{}, receipt, err
	}
	if receipt.ContractAddress == (common.Address{}) {
		return common.Address{}, receipt, fmt.Errorf("deploy %s: receipt for %s has no contract address", c.Artifact.Name, hash.Hex())
	}

	c.Address = receipt.ContractAddress
	return receipt.ContractAddress, receipt, nil
}

// Submit sends a method call without waiting for it to be mined.
func (c *Contract) Submit(ctx context.Context, method string, args ...interface{}) (common.Hash, error) {
	if c.Address == (common.Address{}) {
		return common.Hash{}, fmt.Errorf("%s.%s: %w", c.Artifact.Name, method, ErrNoAddress)
	}

	input, err := c.Artifact.ABI.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s.%s: %w", c.Artifact.Name, method, err)
	}

	to := c.Address
	return c.sender.Send(ctx, transport.Call{From: c.from, To: &to, Data: input})
}

// Transact sends a method call and waits for its receipt.
func (c *Contract) Transact(ctx context.Context, method string, args ...interface{}) (*types.Receipt, error) {
	hash, err := c.Submit(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return c.sender.WaitMined(ctx, hash)
}

// Call performs a read-only call against the latest block.
func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	if c.Address == (common.Address{}) {
		return nil, fmt.Errorf("%s.%s: %w", c.Artifact.Name, method, ErrNoAddress)
	}

	input, err := c.Artifact.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s.%s: %w", c.Artifact.Name, method, err)
	}

	to := c.Address
	output, err := c.sender.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: input}, nil)
	if err != nil {
		return nil, err
	}
	return c.Artifact.ABI.Unpack(method, output)
}
