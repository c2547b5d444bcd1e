// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package util

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xai-foundation/sentry-operator/cmd/genericconf"
)

var chainID = big.NewInt(42161)

func noPrompt(t *testing.T) Prompt {
	return func(label string) (string, error) {
		t.Fatalf("unexpected prompt %q", label)
		return "", nil
	}
}

func TestOpenWalletPrivateKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	config := genericconf.WalletConfigDefault
	config.PrivateKey = hexutil.Encode(crypto.FromECDSA(key))

	opts, err := OpenWallet(&config, chainID, noPrompt(t))
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), opts.From)
	require.NotNil(t, opts.Signer)
}

func TestOpenWalletPromptsForKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	config := genericconf.WalletConfigDefault
	prompted := 0
	opts, err := OpenWallet(&config, chainID, func(string) (string, error) {
		prompted++
		return hexutil.Encode(crypto.FromECDSA(key))[2:], nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, prompted)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), opts.From)

	_, err = OpenWallet(&config, chainID, func(string) (string, error) { return "not a key", nil })
	require.Error(t, err)

	_, err = OpenWallet(&config, chainID, func(string) (string, error) { return "", errors.New("closed") })
	require.Error(t, err)

	_, err = OpenWallet(&config, chainID, nil)
	require.Error(t, err)
}

func TestOpenWalletKeystore(t *testing.T) {
	dir := t.TempDir()
	ks := keystore.NewKeyStore(dir, keystore.LightScryptN, keystore.LightScryptP)
	account, err := ks.NewAccount("secret")
	require.NoError(t, err)

	config := genericconf.WalletConfigDefault
	config.Pathname = dir
	config.Password = "secret"
	opts, err := OpenWallet(&config, chainID, noPrompt(t))
	require.NoError(t, err)
	require.Equal(t, account.Address, opts.From)

	config.Password = genericconf.PASSWORD_NOT_SET
	opts, err = OpenWallet(&config, chainID, func(string) (string, error) { return "secret", nil })
	require.NoError(t, err)
	require.Equal(t, account.Address, opts.From)

	config.Password = "wrong"
	_, err = OpenWallet(&config, chainID, noPrompt(t))
	require.Error(t, err)

	config.Password = "secret"
	config.Account = "0x0000000000000000000000000000000000000001"
	_, err = OpenWallet(&config, chainID, noPrompt(t))
	require.Error(t, err)
}
