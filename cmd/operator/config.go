// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package main

import (
	"math/big"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xai-foundation/sentry-operator/cdn"
	"github.com/xai-foundation/sentry-operator/cmd/genericconf"
	"github.com/xai-foundation/sentry-operator/cmd/util/confighelpers"
	"github.com/xai-foundation/sentry-operator/datasource"
	"github.com/xai-foundation/sentry-operator/gateway"
	"github.com/xai-foundation/sentry-operator/listener"
	"github.com/xai-foundation/sentry-operator/operator"
	"github.com/xai-foundation/sentry-operator/recorder"
	"github.com/xai-foundation/sentry-operator/statusfeed"
)

type ChainConfig struct {
	URL            string `koanf:"url"`
	ID             uint64 `koanf:"id"`
	RefereeAddress string `koanf:"referee-address"`
	ReaderAddress  string `koanf:"reader-address"`
	RollupAddress  string `koanf:"rollup-address"`
}

var DefaultChainConfig = ChainConfig{
	URL:            "",
	ID:             42161,
	RefereeAddress: "0xfD41041180571C5D371BEA3D9550E55653671198",
	ReaderAddress:  "",
	RollupAddress:  "",
}

func ChainConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".url", DefaultChainConfig.URL, "Arbitrum One RPC url; a websocket url enables event subscriptions")
	f.Uint64(prefix+".id", DefaultChainConfig.ID, "chain id transactions are signed for")
	f.String(prefix+".referee-address", DefaultChainConfig.RefereeAddress, "address of the referee contract")
	f.String(prefix+".reader-address", DefaultChainConfig.ReaderAddress, "address of the operator reader contract used for chain reads")
	f.String(prefix+".rollup-address", DefaultChainConfig.RollupAddress, "rollup whose assertions are compared against the public node bucket")
}

func (c *ChainConfig) Validate() error {
	if c.URL == "" {
		return errors.New("chain.url is required")
	}
	if c.ID == 0 {
		return errors.New("chain.id is required")
	}
	for name, addr := range map[string]string{
		"referee-address": c.RefereeAddress,
		"reader-address":  c.ReaderAddress,
		"rollup-address":  c.RollupAddress,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return errors.Errorf("chain.%s %q is not an address", name, addr)
		}
	}
	if c.RefereeAddress == "" {
		return errors.New("chain.referee-address is required")
	}
	return nil
}

func (c *ChainConfig) ChainID() *big.Int {
	return new(big.Int).SetUint64(c.ID)
}

func optionalAddress(addr string) common.Address {
	if addr == "" {
		return common.Address{}
	}
	return common.HexToAddress(addr)
}

type OperatorConfig struct {
	Chain       ChainConfig                   `koanf:"chain"`
	DataSource  datasource.Config             `koanf:"data-source"`
	CDN         cdn.Config                    `koanf:"cdn"`
	Gateway     gateway.Config                `koanf:"gateway"`
	Listener    listener.Config               `koanf:"listener"`
	Runtime     operator.Config               `koanf:"runtime"`
	Recorder    recorder.Config               `koanf:"recorder"`
	StatusFeed  statusfeed.Config             `koanf:"status-feed"`
	Owners      []string                      `koanf:"owners"`
	Wallet      genericconf.WalletConfig      `koanf:"wallet"`
	Conf        genericconf.ConfConfig        `koanf:"conf"`
	LogLevel    string                        `koanf:"log-level"`
	LogType     string                        `koanf:"log-type"`
	FileLogging genericconf.FileLoggingConfig `koanf:"file-logging"`

	Metrics       bool                            `koanf:"metrics"`
	MetricsServer genericconf.MetricsServerConfig `koanf:"metrics-server"`
}

var DefaultOperatorConfig = OperatorConfig{
	Chain:         DefaultChainConfig,
	DataSource:    datasource.DefaultConfig,
	CDN:           cdn.DefaultConfig,
	Gateway:       gateway.DefaultConfig,
	Listener:      listener.DefaultConfig,
	Runtime:       operator.DefaultConfig,
	Recorder:      recorder.DefaultConfig,
	StatusFeed:    statusfeed.DefaultConfig,
	Owners:        nil,
	Wallet:        genericconf.WalletConfigDefault,
	Conf:          genericconf.ConfConfigDefault,
	LogLevel:      "INFO",
	LogType:       "plaintext",
	FileLogging:   genericconf.DefaultFileLoggingConfig,
	Metrics:       false,
	MetricsServer: genericconf.MetricsServerConfigDefault,
}

func OperatorConfigAddOptions(f *flag.FlagSet) {
	ChainConfigAddOptions("chain", f)
	datasource.ConfigAddOptions("data-source", f)
	cdn.ConfigAddOptions("cdn", f)
	gateway.ConfigAddOptions("gateway", f)
	listener.ConfigAddOptions("listener", f)
	operator.ConfigAddOptions("runtime", f)
	recorder.ConfigAddOptions("recorder", f)
	statusfeed.ConfigAddOptions("status-feed", f)
	f.StringSlice("owners", DefaultOperatorConfig.Owners, "restrict operation to these key owners and pools")
	genericconf.WalletConfigAddOptions("wallet", f)
	genericconf.ConfConfigAddOptions("conf", f)
	f.String("log-level", DefaultOperatorConfig.LogLevel, "log level, valid values are CRIT, ERROR, WARN, INFO, DEBUG, TRACE")
	f.String("log-type", DefaultOperatorConfig.LogType, "log type (plaintext or json)")
	genericconf.FileLoggingConfigAddOptions("file-logging", f)
	f.Bool("metrics", DefaultOperatorConfig.Metrics, "enable metrics")
	genericconf.MetricsServerAddOptions("metrics-server", f)
}

func (c *OperatorConfig) Validate() error {
	if err := c.Chain.Validate(); err != nil {
		return err
	}
	if err := c.DataSource.Validate(); err != nil {
		return err
	}
	if err := c.CDN.Validate(); err != nil {
		return err
	}
	if err := c.Gateway.Validate(); err != nil {
		return err
	}
	if err := c.Listener.Validate(); err != nil {
		return err
	}
	if err := c.Runtime.Validate(); err != nil {
		return err
	}
	if err := c.Recorder.Validate(); err != nil {
		return err
	}
	if err := c.StatusFeed.Validate(); err != nil {
		return err
	}
	_, err := c.OwnerAddresses()
	return err
}

func (c *OperatorConfig) OwnerAddresses() ([]common.Address, error) {
	owners := make([]common.Address, 0, len(c.Owners))
	for _, owner := range c.Owners {
		if !common.IsHexAddress(owner) {
			return nil, errors.Errorf("owners entry %q is not an address", owner)
		}
		owners = append(owners, common.HexToAddress(owner))
	}
	return owners, nil
}

func parseOperatorConfig(args []string) (*OperatorConfig, error) {
	f := flag.NewFlagSet("sentry-operator", flag.ContinueOnError)
	OperatorConfigAddOptions(f)

	k, err := confighelpers.BeginCommonParse(f, args)
	if err != nil {
		return nil, err
	}
	var config OperatorConfig
	if err := confighelpers.EndCommonParse(k, &config); err != nil {
		return nil, err
	}
	if config.Conf.Dump {
		err = confighelpers.DumpConfig(k, map[string]interface{}{
			"wallet.password":    "",
			"wallet.private-key": "",
			"recorder.redis-url": "",
		})
		if err != nil {
			return nil, err
		}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
