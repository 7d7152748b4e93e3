package directrequest

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	log "github.com/sirupsen/logrus"

	"github.com/ethstorage/directrequest-cli/pkg/config"
	"github.com/ethstorage/directrequest-cli/pkg/contracts"
	"github.com/ethstorage/directrequest-cli/pkg/correlate"
	"github.com/ethstorage/directrequest-cli/pkg/stats"
	"github.com/ethstorage/directrequest-cli/pkg/transport"
)

var (
	// OneEther is what FundNode sends, in wei.
	OneEther = big.NewInt(params.Ether)
	// OneTokenUnit is what FundConsumer transfers, in the token's smallest unit.
	OneTokenUnit = big.NewInt(1)
)

const (
	eventRequested = "RequestUInt256"
	eventFulfilled = "FullfillUInt256"
	eventOracle    = "OracleRequest"
)

// Operator runs the direct-request actions. All collaborators are built once
// at startup and shared by every action.
type Operator struct {
	Config     config.Config
	Registry   *contracts.Registry
	Transport  *transport.Transport
	Events     transport.EventClient
	Correlator *correlate.Correlator
	Stats      stats.Recorder
	Logger     *log.Logger
}

func (o *Operator) logger() *log.Logger {
	if o.Logger == nil {
		return log.StandardLogger()
	}
	return o.Logger
}

// DeployToken deploys the ERC-677 token. raw holds one string per
// constructor input.
func (o *Operator) DeployToken(ctx context.Context, raw []string) (common.Address, error) {
	token, err := o.Registry.Contract(contracts.Token)
	if err != nil {
		return common.Address{}, err
	}
	args, err := contracts.ParseArguments(token.Artifact.ABI.Constructor.Inputs, raw)
	if err != nil {
		return common.Address{}, err
	}
	return o.deploy(ctx, DeployToken, token, args...)
}

func (o *Operator) DeployOracle(ctx context.Context, link common.Address) (common.Address, error) {
	oracle, err := o.Registry.Contract(contracts.Oracle)
	if err != nil {
		return common.Address{}, err
	}
	return o.deploy(ctx, DeployOracle, oracle, link)
}

func (o *Operator) DeployConsumer(ctx context.Context, link common.Address) (common.Address, error) {
	consumer, err := o.Registry.Contract(contracts.TestConsumer)
	if err != nil {
		return common.Address{}, err
	}
	return o.deploy(ctx, DeployConsumer, consumer, link)
}

func (o *Operator) deploy(ctx context.Context, action Action, c *contracts.Contract, args ...interface{}) (common.Address, error) {
	addr, receipt, err := c.Deploy(ctx, args...)
	if err != nil {
		return common.Address{}, err
	}
	o.logger().Debugf("%s deployed at %s in tx %s", c.Artifact.Name, addr.Hex(), receipt.TxHash.Hex())
	o.record(ctx, action, receipt.TxHash, addr)
	return addr, nil
}

// SetFulfillmentPermission calls Oracle.setFulfillmentPermission with raw
// parsed against the method inputs.
func (o *Operator) SetFulfillmentPermission(ctx context.Context, oracle common.Address, raw []string) (common.Hash, error) {
	c, err := o.Registry.Contract(contracts.Oracle)
	if err != nil {
		return common.Hash{}, err
	}
	args, err := contracts.ParseArguments(c.Artifact.ABI.Methods["setFulfillmentPermission"].Inputs, raw)
	if err != nil {
		return common.Hash{}, err
	}

	receipt, err := c.At(oracle).Transact(ctx, "setFulfillmentPermission", args...)
	if err != nil {
		return common.Hash{}, err
	}
	o.record(ctx, SetFulfillmentPermission, receipt.TxHash, oracle)
	return receipt.TxHash, nil
}

// FundNode sends exactly OneEther from the first available account to node.
func (o *Operator) FundNode(ctx context.Context, node common.Address) (common.Hash, error) {
	accounts, err := o.Transport.Accounts(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	if len(accounts) == 0 {
		return common.Hash{}, transport.ErrNoAccounts
	}

	hash, err := o.Transport.Send(ctx, transport.Call{
		From:  accounts[0],
		To:    &node,
		Value: new(big.Int).Set(OneEther),
	})
	if err != nil {
		return common.Hash{}, err
	}
	if _, err := o.Transport.WaitMined(ctx, hash); err != nil {
		return hash, err
	}
	o.record(ctx, FundNode, hash, node)
	return hash, nil
}

// FundConsumer transfers exactly OneTokenUnit of the token at token to
// consumer.
func (o *Operator) FundConsumer(ctx context.Context, token, consumer common.Address) (common.Hash, error) {
	c, err := o.Registry.Contract(contracts.Token)
	if err != nil {
		return common.Hash{}, err
	}

	receipt, err := c.At(token).Transact(ctx, "transfer", consumer, new(big.Int).Set(OneTokenUnit))
	if err != nil {
		return common.Hash{}, err
	}
	o.record(ctx, FundConsumer, receipt.TxHash, consumer)
	return receipt.TxHash, nil
}

// TokenBalance reads the token balance of holder.
func (o *Operator) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	c, err := o.Registry.Contract(contracts.Token)
	if err != nil {
		return nil, err
	}
	out, err := c.At(token).Call(ctx, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf returned %T", out[0])
	}
	return balance, nil
}

// RequestUInt256 calls OracleTestConsumer.requestGetUInt256 and reports the
// consumer's RequestUInt256 and FullfillUInt256 events, in that order. The
// job id, the second input, is sent without dashes. The returned hash is set
// as soon as the request is mined, even if waiting for the events fails.
func (o *Operator) RequestUInt256(ctx context.Context, consumer common.Address, raw []string, report func(correlate.Record)) (common.Hash, error) {
	c, err := o.Registry.Contract(contracts.TestConsumer)
	if err != nil {
		return common.Hash{}, err
	}

	raw = append([]string(nil), raw...)
	if len(raw) > 1 {
		raw[1] = StripJobID(raw[1])
		o.logger().Debugf("job id %s", raw[1])
	}
	args, err := contracts.ParseArguments(c.Artifact.ABI.Methods["requestGetUInt256"].Inputs, raw)
	if err != nil {
		return common.Hash{}, err
	}

	events, err := o.Registry.Events(contracts.TestConsumer, consumer)
	if err != nil {
		return common.Hash{}, err
	}

	bound := c.At(consumer)
	pending, err := o.Correlator.Submit(ctx, events, eventRequested, eventFulfilled, func(ctx context.Context) (common.Hash, error) {
		receipt, err := bound.Transact(ctx, "requestGetUInt256", args...)
		if err != nil {
			return common.Hash{}, err
		}
		return receipt.TxHash, nil
	})
	if err != nil {
		return common.Hash{}, err
	}

	o.logger().Infof("Request sent. %s", pending.TxHash.Hex())
	o.logger().Info("Awaiting events...")
	o.record(ctx, RequestUInt256, pending.TxHash, consumer)

	err = pending.Await(ctx, func(r correlate.Record) {
		report(o.format(c.Artifact, r))
	})
	return pending.TxHash, err
}

// WatchOracleRequest waits for the next OracleRequest event emitted by
// oracle.
func (o *Operator) WatchOracleRequest(ctx context.Context, oracle common.Address) (correlate.Record, error) {
	events, err := o.Registry.Events(contracts.Oracle, oracle)
	if err != nil {
		return correlate.Record{}, err
	}
	artifact, err := o.Registry.Artifact(contracts.Oracle)
	if err != nil {
		return correlate.Record{}, err
	}

	o.logger().Infof("Awaiting %s on %s...", eventOracle, oracle.Hex())
	rec, err := o.Correlator.Wait(ctx, events, eventOracle)
	if err != nil {
		return correlate.Record{}, err
	}
	return o.format(artifact, rec), nil
}

// WatchBlocks reports every new block header until ctx is done or the
// subscription fails.
func (o *Operator) WatchBlocks(ctx context.Context, report func(*types.Header)) error {
	heads := make(chan *types.Header, 16)
	sub, err := o.Events.SubscribeNewHead(ctx, heads)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case h := <-heads:
			report(h)
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (o *Operator) format(artifact *contracts.Artifact, r correlate.Record) correlate.Record {
	if ev, ok := artifact.ABI.Events[r.Event]; ok {
		r.ReturnValues = contracts.FormatValues(ev.Inputs, r.ReturnValues)
	}
	return r
}

func (o *Operator) record(ctx context.Context, action Action, hash common.Hash, addr common.Address) {
	if o.Stats == nil {
		return
	}
	o.Stats.Record(ctx, stats.Action{
		Name:    string(action),
		Kind:    o.Transport.Kind.String(),
		TxHash:  hash,
		Address: addr,
	})
}
