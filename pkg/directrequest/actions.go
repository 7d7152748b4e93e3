package directrequest

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ethstorage/directrequest-cli/pkg/contracts"
)

type Action string

const (
	DeployToken              Action = "deployLINK"
	DeployOracle             Action = "deployOracle"
	DeployConsumer           Action = "deployOracleTestConsumer"
	FundNode                 Action = "fundNode"
	SetFulfillmentPermission Action = "setFulfillmentPermission"
	FundConsumer             Action = "fundOracleTestConsumer"
	RequestUInt256           Action = "requestGetUInt256"
	WatchOracleRequest       Action = "watchOracleRequest"
	WatchBlocks              Action = "watchBlocks"
)

// Actions lists the menu in display order.
var Actions = []Action{
	DeployToken,
	DeployOracle,
	DeployConsumer,
	FundNode,
	SetFulfillmentPermission,
	FundConsumer,
	RequestUInt256,
	WatchOracleRequest,
	WatchBlocks,
}

var labels = map[Action]string{
	DeployToken:              "Deploy LINK token",
	DeployOracle:             "Deploy Oracle contract (directrequest)",
	DeployConsumer:           "Deploy Oracle Test Consumer contract (directrequest)",
	FundNode:                 "Fund ETH Chainlink node",
	SetFulfillmentPermission: "Oracle.setFulfillmentPermission (directrequest)",
	FundConsumer:             "Fund LINK Oracle Test Consumer contract (directrequest)",
	RequestUInt256:           "OracleTestConsumer.requestGetUInt256() (directrequest)",
	WatchOracleRequest:       "Await one Oracle.OracleRequest event",
	WatchBlocks:              "Watch new block headers",
}

func (a Action) Label() string {
	if l, ok := labels[a]; ok {
		return l
	}
	return string(a)
}

const (
	defaultTokenName   = "Chainlink Token"
	defaultTokenSymbol = "LINK"
	defaultTokenSupply = "1000000000000000000"
	defaultPayment     = "1"
	defaultURL         = "https://www.bitstamp.net/api/ticker/"
	defaultPath        = "last"
	defaultTimes       = "100"

	// NilJobID is offered when no job id is configured.
	NilJobID = "00000000-0000-0000-0000-000000000000"
)

// AddressPrompt asks for the address of a contract or account an action
// operates on.
type AddressPrompt struct {
	Label   string
	Default common.Address
}

// Input is one ABI argument to ask for, with the value offered by default.
type Input struct {
	Name    string
	Type    abi.Type
	Default string
}

// Addresses returns the address prompts of action, defaulting to the
// configured addresses or the zero address.
func (o *Operator) Addresses(action Action) ([]AddressPrompt, error) {
	link, err := o.Config.LinkAddress()
	if err != nil {
		return nil, err
	}
	oracle, err := o.Config.OracleAddress()
	if err != nil {
		return nil, err
	}
	consumer, err := o.Config.TestConsumerAddress()
	if err != nil {
		return nil, err
	}
	node, err := o.Config.NodeAddress()
	if err != nil {
		return nil, err
	}

	switch action {
	case DeployOracle, DeployConsumer:
		return []AddressPrompt{{Label: "LINK token address", Default: link}}, nil
	case SetFulfillmentPermission, WatchOracleRequest:
		return []AddressPrompt{{Label: "Oracle contract address", Default: oracle}}, nil
	case RequestUInt256:
		return []AddressPrompt{{Label: "OracleTestConsumer contract address", Default: consumer}}, nil
	case FundNode:
		return []AddressPrompt{{Label: "Node address (http://localhost:6688/keys)", Default: node}}, nil
	case FundConsumer:
		return []AddressPrompt{
			{Label: "LINK token address", Default: link},
			{Label: "OracleTestConsumer contract address", Default: consumer},
		}, nil
	default:
		return nil, nil
	}
}

// Inputs returns the ABI arguments action asks for, with defaults filled in.
func (o *Operator) Inputs(action Action) ([]Input, error) {
	switch action {
	case DeployToken:
		artifact, err := o.Registry.Artifact(contracts.Token)
		if err != nil {
			return nil, err
		}
		account, err := o.Config.Account()
		if err != nil {
			return nil, err
		}
		return withDefaults(artifact.ABI.Constructor.Inputs, defaultTokenName, defaultTokenSymbol, defaultTokenSupply, account.Hex())

	case SetFulfillmentPermission:
		method, err := o.method(contracts.Oracle, "setFulfillmentPermission")
		if err != nil {
			return nil, err
		}
		node, err := o.Config.NodeAddress()
		if err != nil {
			return nil, err
		}
		return withDefaults(method.Inputs, node.Hex(), "true")

	case RequestUInt256:
		method, err := o.method(contracts.TestConsumer, "requestGetUInt256")
		if err != nil {
			return nil, err
		}
		oracle, err := o.Config.OracleAddress()
		if err != nil {
			return nil, err
		}
		jobID := o.Config.Node.JobID
		if jobID == "" {
			jobID = NilJobID
		}
		return withDefaults(method.Inputs, oracle.Hex(), jobID, defaultPayment, defaultURL, defaultPath, defaultTimes)

	default:
		return nil, nil
	}
}

func (o *Operator) method(name contracts.Name, method string) (abi.Method, error) {
	artifact, err := o.Registry.Artifact(name)
	if err != nil {
		return abi.Method{}, err
	}
	m, ok := artifact.ABI.Methods[method]
	if !ok {
		return abi.Method{}, fmt.Errorf("%s has no method %s", name, method)
	}
	return m, nil
}

func withDefaults(args abi.Arguments, defaults ...string) ([]Input, error) {
	if len(args) != len(defaults) {
		return nil, fmt.Errorf("expected %d inputs, artifact has %d", len(defaults), len(args))
	}
	inputs := make([]Input, len(args))
	for i, arg := range args {
		inputs[i] = Input{Name: arg.Name, Type: arg.Type, Default: defaults[i]}
	}
	return inputs, nil
}

// StripJobID removes the dashes of a UUID formatted job id; the consumer
// contract expects the bare 32 hex characters.
func StripJobID(jobID string) string {
	return strings.ReplaceAll(jobID, "-", "")
}
