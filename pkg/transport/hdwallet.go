package transport

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// DeriveKey derives the secp256k1 key at path from a BIP-39 mnemonic. An empty
// path means the first account, m/44'/60'/0'/0/0.
func DeriveKey(mnemonic, path string) (*ecdsa.PrivateKey, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}

	derivation := accounts.DefaultBaseDerivationPath
	if path != "" {
		if derivation, err = accounts.ParseDerivationPath(path); err != nil {
			return nil, fmt.Errorf("derivation path %q: %w", path, err)
		}
	}

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}
	for _, n := range derivation {
		if key, err = key.Derive(n); err != nil {
			return nil, err
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return crypto.ToECDSA(priv.Serialize())
}
