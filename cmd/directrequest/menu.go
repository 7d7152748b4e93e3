package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/manifoldco/promptui"

	"github.com/ethstorage/directrequest-cli/pkg/correlate"
	"github.com/ethstorage/directrequest-cli/pkg/directrequest"
	"github.com/ethstorage/directrequest-cli/pkg/prompt"
	"github.com/ethstorage/directrequest-cli/pkg/validate"
)

var errQuit = errors.New("quit")

var emojis = map[directrequest.Action]string{
	directrequest.DeployToken:              "🪙",
	directrequest.DeployOracle:             "🔮",
	directrequest.DeployConsumer:           "📦",
	directrequest.FundNode:                 "⛽",
	directrequest.SetFulfillmentPermission: "🔑",
	directrequest.FundConsumer:             "💸",
	directrequest.RequestUInt256:           "📨",
	directrequest.WatchOracleRequest:       "👀",
	directrequest.WatchBlocks:              "🧱",
}

type menu struct {
	ctx context.Context
	op  *directrequest.Operator
}

func (m *menu) open() error {
	options := make([]prompt.SelectOption, 0, len(directrequest.Actions)+1)
	for _, action := range directrequest.Actions {
		action := action
		options = append(options, prompt.NewSelectOption(action.Label(), emojis[action], func() error {
			return m.run(action)
		}))
	}
	options = append(options, prompt.NewSelectOption("Quit", "❌", func() error { return errQuit }))

	return prompt.SelectAndExecute("What would you like to do?", options...)
}

func (m *menu) run(action directrequest.Action) error {
	addrs, err := m.askAddresses(action)
	if err != nil {
		return err
	}
	inputs, err := m.op.Inputs(action)
	if err != nil {
		return err
	}
	raw, err := askInputs(action, inputs)
	if err != nil {
		return err
	}

	switch action {
	case directrequest.DeployToken:
		addr, err := m.op.DeployToken(m.ctx, raw)
		if err != nil {
			return err
		}
		prompt.Display("LINK ERC677.sol deployed at", addr.Hex())

	case directrequest.DeployOracle:
		addr, err := m.op.DeployOracle(m.ctx, addrs[0])
		if err != nil {
			return err
		}
		prompt.Display("Oracle.sol deployed at", addr.Hex())

	case directrequest.DeployConsumer:
		addr, err := m.op.DeployConsumer(m.ctx, addrs[0])
		if err != nil {
			return err
		}
		prompt.Display("OracleTestConsumer.sol deployed at", addr.Hex())

	case directrequest.SetFulfillmentPermission:
		hash, err := m.op.SetFulfillmentPermission(m.ctx, addrs[0], raw)
		if err != nil {
			return err
		}
		prompt.Display("Fulfillment permission set.", hash.Hex())

	case directrequest.FundNode:
		hash, err := m.op.FundNode(m.ctx, addrs[0])
		if err != nil {
			return err
		}
		prompt.Display(fmt.Sprintf("Sent 1 ETH to %s.", addrs[0].Hex()), hash.Hex())

	case directrequest.FundConsumer:
		hash, err := m.op.FundConsumer(m.ctx, addrs[0], addrs[1])
		if err != nil {
			return err
		}
		prompt.Display(fmt.Sprintf("Sent 1 LINK to %s.", addrs[1].Hex()), hash.Hex())
		balance, err := m.op.TokenBalance(m.ctx, addrs[0], addrs[1])
		if err != nil {
			m.op.Logger.Warnf("Cannot read LINK balance: %v", err)
			break
		}
		prompt.Display("LINK balance", balance.String())

	case directrequest.RequestUInt256:
		ctx, stop := interruptible(m.ctx)
		defer stop()
		_, err := m.op.RequestUInt256(ctx, addrs[0], raw, func(r correlate.Record) {
			if err := prompt.DisplayJSON(r.Event, r); err != nil {
				m.op.Logger.Error(err)
			}
		})
		return ignoreInterrupt(err)

	case directrequest.WatchOracleRequest:
		ctx, stop := interruptible(m.ctx)
		defer stop()
		rec, err := m.op.WatchOracleRequest(ctx, addrs[0])
		if err != nil {
			return ignoreInterrupt(err)
		}
		return prompt.DisplayJSON(rec.Event, rec)

	case directrequest.WatchBlocks:
		ctx, stop := interruptible(m.ctx)
		defer stop()
		fmt.Fprintln(prompt.Output, "Watching new blocks, press Ctrl-C to return to the menu")
		err := m.op.WatchBlocks(ctx, func(h *types.Header) {
			fmt.Fprintln(prompt.Output, formatHeader(h))
		})
		return ignoreInterrupt(err)

	default:
		return fmt.Errorf("unknown action %s", action)
	}
	return nil
}

func (m *menu) askAddresses(action directrequest.Action) ([]common.Address, error) {
	prompts, err := m.op.Addresses(action)
	if err != nil {
		return nil, err
	}

	addrs := make([]common.Address, 0, len(prompts))
	for _, p := range prompts {
		answer, err := prompt.TextWithDefault(p.Label, p.Default.Hex(), validate.Address)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, common.HexToAddress(strings.TrimSpace(answer)))
	}
	return addrs, nil
}

func askInputs(action directrequest.Action, inputs []directrequest.Input) ([]string, error) {
	raw := make([]string, 0, len(inputs))
	for i, in := range inputs {
		answer, err := prompt.TextWithDefault(inputLabel(in), in.Default, validatorFor(action, i, in))
		if err != nil {
			return nil, err
		}
		raw = append(raw, answer)
	}
	return raw, nil
}

func inputLabel(in directrequest.Input) string {
	if in.Name == "" {
		return in.Type.String()
	}
	return fmt.Sprintf("%s (%s)", in.Name, in.Type.String())
}

// validatorFor checks the job id of a request as a UUID; everything else is
// checked against its ABI type.
func validatorFor(action directrequest.Action, i int, in directrequest.Input) promptui.ValidateFunc {
	if action == directrequest.RequestUInt256 && i == 1 {
		return validate.JobID
	}
	if action == directrequest.RequestUInt256 && in.Type.T == abi.StringTy {
		return validate.NotEmpty
	}
	return validate.ForType(in.Type)
}

func formatHeader(h *types.Header) string {
	return fmt.Sprintf("block %s %s time=%d txroot=%s", h.Number, h.Hash().Hex(), h.Time, h.TxHash.Hex())
}

// interruptible returns a context cancelled by Ctrl-C, so a long wait returns
// to the menu instead of killing the process.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt)
}

func ignoreInterrupt(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
