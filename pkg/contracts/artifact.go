package contracts

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Name identifies one of the contracts the tool operates.
type Name string

const (
	Token        Name = "ERC677FixedSupply"
	Oracle       Name = "Oracle"
	TestConsumer Name = "OracleTestConsumer"
)

var Names = []Name{Token, Oracle, TestConsumer}

var ErrNoBytecode = errors.New("artifact has no bytecode, set ARTIFACTS_DIR to a directory of compiled artifacts")

//go:embed abi/*.json
var embedded embed.FS

// Artifact is a compiled contract: its ABI and creation bytecode.
type Artifact struct {
	Name     Name
	ABI      abi.ABI
	Bytecode []byte
}

type artifactJSON struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode json.RawMessage `json:"bytecode"`
}

// ParseArtifact decodes a Truffle/Hardhat artifact ({"abi": [...], "bytecode": "0x.."}).
// Foundry style {"bytecode": {"object": "0x.."}} is accepted as well.
func ParseArtifact(name Name, data []byte) (*Artifact, error) {
	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("artifact %s: %w", name, err)
	}
	if len(raw.ABI) == 0 {
		return nil, fmt.Errorf("artifact %s: missing abi", name)
	}

	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("artifact %s abi: %w", name, err)
	}

	code, err := parseBytecode(raw.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("artifact %s bytecode: %w", name, err)
	}

	return &Artifact{Name: name, ABI: parsed, Bytecode: code}, nil
}

func parseBytecode(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		var obj struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		hex = obj.Object
	}

	hex = strings.TrimSpace(hex)
	if hex == "" || hex == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(hex, "0x") && !strings.HasPrefix(hex, "0X") {
		hex = "0x" + hex
	}
	return hexutil.Decode(hex)
}

// LoadArtifacts returns the artifacts for every known contract. The ABIs
// shipped with the binary are used unless dir holds <Name>.json, which then
// replaces them. Deploying needs the bytecode only a real artifact carries.
func LoadArtifacts(dir string) (map[Name]*Artifact, error) {
	artifacts := make(map[Name]*Artifact, len(Names))
	for _, name := range Names {
		data, err := embedded.ReadFile("abi/" + string(name) + ".json")
		if err != nil {
			return nil, err
		}

		if dir != "" {
			override, err := os.ReadFile(filepath.Join(dir, string(name)+".json"))
			if err == nil {
				data = override
			} else if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}

		artifact, err := ParseArtifact(name, data)
		if err != nil {
			return nil, err
		}
		artifacts[name] = artifact
	}
	return artifacts, nil
}
