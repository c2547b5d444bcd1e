// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package genericconf

import (
	flag "github.com/spf13/pflag"
)

const PASSWORD_NOT_SET = "PASSWORD_NOT_SET"

// WalletConfig selects the operator key: a raw private key, or an account
// in a keystore directory. With neither set the key is prompted for.
type WalletConfig struct {
	Pathname   string `koanf:"pathname"`
	Password   string `koanf:"password"`
	PrivateKey string `koanf:"private-key"`
	Account    string `koanf:"account"`
}

func (w *WalletConfig) Pwd() *string {
	if w.Password == PASSWORD_NOT_SET {
		return nil
	}
	return &w.Password
}

var WalletConfigDefault = WalletConfig{
	Pathname:   "",
	Password:   PASSWORD_NOT_SET,
	PrivateKey: "",
	Account:    "",
}

func WalletConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".pathname", WalletConfigDefault.Pathname, "keystore directory of the operator wallet")
	f.String(prefix+".password", WalletConfigDefault.Password, "keystore passphrase")
	f.String(prefix+".private-key", WalletConfigDefault.PrivateKey, "operator private key; prompted for when neither this nor a keystore is given")
	f.String(prefix+".account", WalletConfigDefault.Account, "account to use (default is first account in keystore)")
}
