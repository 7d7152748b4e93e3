package transport

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ethstorage/directrequest-cli/pkg/config"
)

// Kind identifies how transactions get signed.
type Kind int

const (
	// KindHTTP leaves signing to the node: eth_sendTransaction from an
	// account the node manages.
	KindHTTP Kind = iota
	KindPrivateKeys
	KindMnemonic
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindPrivateKeys:
		return "private-keys"
	case KindMnemonic:
		return "mnemonic"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Selection is the outcome of Select. It is resolved once at startup and
// never re-evaluated.
type Selection struct {
	Kind Kind
	Keys []*ecdsa.PrivateKey
}

// Select picks the signing strategy from the configuration. A non-empty
// mnemonic wins over a key list; with neither the node signs.
func Select(conf config.Config) (Selection, error) {
	if mnemonic := strings.TrimSpace(conf.Mnemonic); mnemonic != "" {
		key, err := DeriveKey(mnemonic, conf.DerivationPath)
		if err != nil {
			return Selection{}, err
		}
		return Selection{Kind: KindMnemonic, Keys: []*ecdsa.PrivateKey{key}}, nil
	}

	hexKeys, err := conf.PrivateKeyList()
	if err != nil {
		return Selection{}, err
	}
	if len(hexKeys) > 0 {
		keys := make([]*ecdsa.PrivateKey, 0, len(hexKeys))
		for i, hexKey := range hexKeys {
			key, err := crypto.HexToECDSA(hexKey)
			if err != nil {
				return Selection{}, fmt.Errorf("%w: entry %d: %v", config.ErrMalformedKeyList, i, err)
			}
			keys = append(keys, key)
		}
		return Selection{Kind: KindPrivateKeys, Keys: keys}, nil
	}

	return Selection{Kind: KindHTTP}, nil
}
