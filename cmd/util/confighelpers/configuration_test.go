// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package confighelpers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Conf struct {
		EnvPrefix string   `koanf:"env-prefix"`
		File      []string `koanf:"file"`
		String    string   `koanf:"string"`
	} `koanf:"conf"`
	Name     string        `koanf:"name"`
	Interval time.Duration `koanf:"interval"`
	Nested   struct {
		MaxKeys int `koanf:"max-keys"`
	} `koanf:"nested"`
}

func testFlags() *flag.FlagSet {
	f := flag.NewFlagSet("test", flag.ContinueOnError)
	f.String("conf.env-prefix", "", "")
	f.StringSlice("conf.file", nil, "")
	f.String("conf.string", "", "")
	f.String("name", "default", "")
	f.Duration("interval", time.Minute, "")
	f.Int("nested.max-keys", 10, "")
	return f
}

func parse(t *testing.T, args ...string) *testConfig {
	t.Helper()
	k, err := BeginCommonParse(testFlags(), args)
	require.NoError(t, err)
	var config testConfig
	require.NoError(t, EndCommonParse(k, &config))
	return &config
}

func TestDefaults(t *testing.T) {
	config := parse(t)
	require.Equal(t, "default", config.Name)
	require.Equal(t, time.Minute, config.Interval)
	require.Equal(t, 10, config.Nested.MaxKeys)
}

func TestPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"file","interval":"5s","nested":{"max-keys":20}}`), 0o600))

	config := parse(t, "--conf.file", path)
	require.Equal(t, "file", config.Name)
	require.Equal(t, 5*time.Second, config.Interval)
	require.Equal(t, 20, config.Nested.MaxKeys)

	config = parse(t, "--conf.file", path, "--conf.string", `{"name":"string"}`)
	require.Equal(t, "string", config.Name)
	require.Equal(t, 20, config.Nested.MaxKeys)

	t.Setenv("SENTRYTEST_NESTED_MAX__KEYS", "30")
	config = parse(t, "--conf.file", path, "--conf.env-prefix", "SENTRYTEST")
	require.Equal(t, 30, config.Nested.MaxKeys)

	config = parse(t, "--conf.file", path, "--conf.env-prefix", "SENTRYTEST", "--nested.max-keys", "40", "--name", "flag")
	require.Equal(t, 40, config.Nested.MaxKeys)
	require.Equal(t, "flag", config.Name)
}

func TestRejectsExtraArguments(t *testing.T) {
	_, err := BeginCommonParse(testFlags(), []string{"stray"})
	require.Error(t, err)
}

func TestRejectsUnknownConfigKeys(t *testing.T) {
	k, err := BeginCommonParse(testFlags(), []string{"--conf.string", `{"unknown":1}`})
	require.NoError(t, err)
	var config testConfig
	require.Error(t, EndCommonParse(k, &config))
}

func TestEnvKeyMapper(t *testing.T) {
	mapper := EnvKeyMapper("OP")
	require.Equal(t, "data-source.max-keys", mapper("OP_DATA__SOURCE_MAX__KEYS"))
	require.Equal(t, "chain.url", mapper("OP_CHAIN_URL"))
}
