// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package confighelpers layers command line flags, config files, a JSON
// config string and environment variables into one koanf tree. Precedence,
// lowest first: flag defaults, files, string, environment, explicit flags.
package confighelpers

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
)

func BeginCommonParse(f *flag.FlagSet, args []string) (*koanf.Koanf, error) {
	if err := f.Parse(args); err != nil {
		return nil, err
	}
	if f.NArg() != 0 {
		// Unexpected number of parameters
		return nil, errors.Errorf("unexpected parameters %v", f.Args())
	}

	k := koanf.New(".")
	// Initial application of command line parameters and defaults
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, errors.Wrap(err, "error loading command line parameters")
	}

	for _, configFile := range k.Strings("conf.file") {
		if err := k.Load(file.Provider(configFile), json.Parser()); err != nil {
			return nil, errors.Wrapf(err, "error loading config file %s", configFile)
		}
	}

	if configString := k.String("conf.string"); configString != "" {
		if err := k.Load(rawbytes.Provider([]byte(configString)), json.Parser()); err != nil {
			return nil, errors.Wrap(err, "error loading config string")
		}
	}

	if envPrefix := k.String("conf.env-prefix"); envPrefix != "" {
		if err := k.Load(env.Provider(envPrefix+"_", ".", EnvKeyMapper(envPrefix)), nil); err != nil {
			return nil, errors.Wrap(err, "error loading environment variables")
		}
	}

	// Explicitly set flags win over everything loaded above
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, errors.Wrap(err, "error loading command line parameters")
	}
	return k, nil
}

// EnvKeyMapper turns PREFIX_DATA_SOURCE__MAX_KEYS into data-source.max-keys:
// a double underscore is a dash, a single one a level separator.
func EnvKeyMapper(envPrefix string) func(string) string {
	return func(s string) string {
		s = strings.TrimPrefix(s, envPrefix+"_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", "-")
		return strings.ReplaceAll(s, "_", ".")
	}
}

func EndCommonParse(k *koanf.Koanf, config interface{}) error {
	decoderConfig := mapstructure.DecoderConfig{
		ErrorUnused: true,

		// Default values
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		Metadata:         nil,
		Result:           config,
		WeaklyTypedInput: true,
	}
	return k.UnmarshalWithConf("", config, koanf.UnmarshalConf{DecoderConfig: &decoderConfig})
}

// DumpConfig prints the active configuration as JSON with overrides applied,
// typically blanking secrets, then exits.
func DumpConfig(k *koanf.Koanf, overrides map[string]interface{}) error {
	if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
		return errors.Wrap(err, "error removing extra parameters before dump")
	}
	c, err := k.Marshal(json.Parser())
	if err != nil {
		return errors.Wrap(err, "unable to marshal config file to JSON")
	}
	fmt.Println(string(c))
	os.Exit(0)
	return nil
}

func PrintErrorAndExit(err error, usage func(string)) {
	if errors.Is(err, flag.ErrHelp) {
		usage(os.Args[0])
		os.Exit(0)
	}
	fmt.Fprintf(os.Stderr, "%s\n", err.Error())
	usage(os.Args[0])
	os.Exit(1)
}
