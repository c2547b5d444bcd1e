// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package util

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xai-foundation/sentry-operator/cmd/genericconf"
)

// Prompt asks the user for a secret.
type Prompt func(label string) (string, error)

// TerminalPrompt reads a secret from stdin without echoing it.
func TerminalPrompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label+": ")
	secret, err := term.ReadPassword(int(os.Stdin.Fd())) // #nosec G115
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, "reading from terminal")
	}
	return strings.TrimSpace(string(secret)), nil
}

// OpenWallet returns transact options for the operator key. A configured
// private key wins, then a keystore directory. Otherwise the private key is
// prompted for; it is held in memory only.
func OpenWallet(config *genericconf.WalletConfig, chainID *big.Int, prompt Prompt) (*bind.TransactOpts, error) {
	if config.PrivateKey != "" {
		return transactorFromHex(config.PrivateKey, chainID)
	}
	if config.Pathname != "" {
		passphrase := config.Pwd()
		if passphrase == nil {
			if prompt == nil {
				return nil, errors.New("keystore passphrase not set and no prompt available")
			}
			read, err := prompt("Keystore passphrase")
			if err != nil {
				return nil, err
			}
			passphrase = &read
		}
		return TransactOptsFromKeystore(config.Pathname, config.Account, *passphrase, chainID)
	}
	if prompt == nil {
		return nil, errors.New("no operator key configured")
	}
	key, err := prompt("Operator private key")
	if err != nil {
		return nil, err
	}
	return transactorFromHex(key, chainID)
}

func transactorFromHex(key string, chainID *big.Int) (*bind.TransactOpts, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(key), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return bind.NewKeyedTransactorWithChainID(privateKey, chainID)
}

func TransactOptsFromKeystore(keystorePath, accountAddress, passphrase string, chainID *big.Int) (*bind.TransactOpts, error) {
	if keystorePath == "" {
		return nil, errors.New("keystore path empty")
	}
	ks := keystore.NewKeyStore(keystorePath, keystore.StandardScryptN, keystore.StandardScryptP)
	var account accounts.Account
	if accountAddress == "" {
		if len(ks.Accounts()) == 0 {
			return nil, errors.New("keystore empty")
		}
		account = ks.Accounts()[0]
	} else {
		var err error
		account, err = ks.Find(accounts.Account{Address: common.HexToAddress(accountAddress)})
		if err != nil {
			return nil, errors.Wrapf(err, "finding account %s", accountAddress)
		}
	}
	if err := ks.Unlock(account, passphrase); err != nil {
		return nil, errors.Wrap(err, "unlocking keystore account")
	}
	return bind.NewKeyStoreTransactorWithChainID(ks, account, chainID)
}
