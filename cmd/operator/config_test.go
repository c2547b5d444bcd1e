// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseOperatorConfigDefaults(t *testing.T) {
	config, err := parseOperatorConfig([]string{"--chain.url", "ws://localhost:8548"})
	require.NoError(t, err)
	require.Equal(t, uint64(42161), config.Chain.ID)
	require.Equal(t, common.HexToAddress("0xfD41041180571C5D371BEA3D9550E55653671198"), common.HexToAddress(config.Chain.RefereeAddress))
	require.Equal(t, 100, config.Gateway.BatchSize)
	require.Equal(t, 3, config.Gateway.Attempts)
	require.Equal(t, time.Minute, config.Listener.PollInterval)
	require.Equal(t, 5*time.Minute, config.Runtime.LivenessInterval)
	require.Equal(t, uint64(6480), config.Runtime.ClaimWindow)
	require.Equal(t, 270*24*time.Hour, config.DataSource.Subgraph.ClaimLookback)
	require.False(t, config.Recorder.Enabled())
	require.False(t, config.StatusFeed.Enable)
	require.Empty(t, config.Owners)
}

func TestParseOperatorConfigOverrides(t *testing.T) {
	owner := "0x00000000000000000000000000000000000000aa"
	config, err := parseOperatorConfig([]string{
		"--chain.url", "ws://localhost:8548",
		"--conf.string", `{"gateway":{"batch-size":50},"listener":{"poll-interval":"30s"}}`,
		"--owners", owner,
		"--runtime.backward-sweep=false",
	})
	require.NoError(t, err)
	require.Equal(t, 50, config.Gateway.BatchSize)
	require.Equal(t, 30*time.Second, config.Listener.PollInterval)
	require.False(t, config.Runtime.BackwardSweep)
	owners, err := config.OwnerAddresses()
	require.NoError(t, err)
	require.Equal(t, []common.Address{common.HexToAddress(owner)}, owners)
}

func TestParseOperatorConfigRejects(t *testing.T) {
	for name, args := range map[string][]string{
		"missing url":     {},
		"bad referee":     {"--chain.url", "ws://x", "--chain.referee-address", "0x1234"},
		"bad owner":       {"--chain.url", "ws://x", "--owners", "alice"},
		"zero batch size": {"--chain.url", "ws://x", "--gateway.batch-size", "0"},
		"unknown key":     {"--chain.url", "ws://x", "--conf.string", `{"nope":true}`},
		"extra argument":  {"--chain.url", "ws://x", "stray"},
		"feed no workers": {"--chain.url", "ws://x", "--status-feed.enable", "--status-feed.workers", "0"},
		"two recorders":   {"--chain.url", "ws://x", "--recorder.redis-url", "redis://x", "--recorder.leveldb-path", "/tmp/x"},
	} {
		_, err := parseOperatorConfig(args)
		require.Error(t, err, name)
	}
}
