// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// sentry-operator runs Xai sentry node licenses: it answers every new
// challenge with assertions for the winning keys it operates and claims their
// rewards once the challenge closes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/xai-foundation/sentry-operator/cdn"
	"github.com/xai-foundation/sentry-operator/cmd/genericconf"
	"github.com/xai-foundation/sentry-operator/cmd/util"
	"github.com/xai-foundation/sentry-operator/cmd/util/confighelpers"
	"github.com/xai-foundation/sentry-operator/datasource"
	"github.com/xai-foundation/sentry-operator/gateway"
	"github.com/xai-foundation/sentry-operator/listener"
	"github.com/xai-foundation/sentry-operator/operator"
	"github.com/xai-foundation/sentry-operator/recorder"
	"github.com/xai-foundation/sentry-operator/referee"
	"github.com/xai-foundation/sentry-operator/sentry"
	"github.com/xai-foundation/sentry-operator/status"
	"github.com/xai-foundation/sentry-operator/statusfeed"
)

func printSampleUsage(progname string) {
	fmt.Printf("\n")
	fmt.Printf("Sample usage:                  %s --chain.url wss://arb1.example/ws --wallet.pathname ./keystore\n", progname)
}

func main() {
	os.Exit(mainImpl())
}

func mainImpl() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config, err := parseOperatorConfig(os.Args[1:])
	if err != nil {
		confighelpers.PrintErrorAndExit(err, printSampleUsage)
	}
	if err := genericconf.InitLog(config.LogType, config.LogLevel, &config.FileLogging, genericconf.DefaultPathResolver(""), nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		return 1
	}
	if err := util.StartMetrics(&util.MetricsOpts{Metrics: config.Metrics, MetricsServer: config.MetricsServer}); err != nil {
		log.Error("Error starting metrics", "err", err)
		return 1
	}

	signer, err := util.OpenWallet(&config.Wallet, config.Chain.ChainID(), util.TerminalPrompt)
	if err != nil {
		log.Error("Error opening operator wallet", "err", err)
		return 1
	}

	client, err := ethclient.DialContext(ctx, config.Chain.URL)
	if err != nil {
		log.Error("Error connecting to chain", "url", config.Chain.URL, "err", err)
		return 1
	}
	defer client.Close()
	chainID, err := client.ChainID(ctx)
	if err != nil {
		log.Error("Error reading chain id", "err", err)
		return 1
	}
	if chainID.Uint64() != config.Chain.ID {
		log.Error("Chain id mismatch", "configured", config.Chain.ID, "rpc", chainID)
		return 1
	}

	binding := referee.NewBinding(
		common.HexToAddress(config.Chain.RefereeAddress),
		optionalAddress(config.Chain.ReaderAddress),
		client,
	)
	dataSourceConfig := func() *datasource.Config { return &config.DataSource }
	source := datasource.NewFacade(
		datasource.NewSubgraphSource(&config.DataSource.Subgraph),
		datasource.NewChainSource(binding, dataSourceConfig),
		dataSourceConfig,
	)

	owners, err := config.OwnerAddresses()
	if err != nil {
		log.Error("Invalid owners", "err", err)
		return 1
	}
	deps := operator.Deps{
		Source:     source,
		Contract:   binding,
		Receipts:   client,
		Chain:      client,
		Rollup:     optionalAddress(config.Chain.RollupAddress),
		Owners:     owners,
		OnStatus:   logStatus,
		OnMismatch: logMismatch,
	}
	if config.Listener.Subscribe {
		deps.Watcher = binding
	}
	if config.StatusFeed.Enable {
		feed, err := statusfeed.NewServer(func() *statusfeed.Config { return &config.StatusFeed })
		if err != nil {
			log.Error("Error creating status feed", "err", err)
			return 1
		}
		if err := feed.Start(ctx); err != nil {
			log.Error("Error starting status feed", "err", err)
			return 1
		}
		defer feed.StopAndWait()
		deps.OnStatus = func(snapshot status.Snapshot) {
			logStatus(snapshot)
			feed.PublishStatus(snapshot)
		}
		deps.OnLog = feed.PublishLog
	}
	if config.CDN.Enable {
		deps.Comparer = cdn.NewClient(func() *cdn.Config { return &config.CDN })
	}
	rec, err := recorder.FromConfig(func() *recorder.Config { return &config.Recorder })
	if err != nil {
		log.Error("Error opening recorder", "err", err)
		return 1
	}
	if rec != nil {
		defer func() {
			if err := rec.Close(); err != nil {
				log.Warn("Error closing recorder", "err", err)
			}
		}()
		deps.Recorder = rec
	}

	runtime, err := operator.NewRuntime(
		func() *operator.Config { return &config.Runtime },
		func() *gateway.Config { return &config.Gateway },
		func() *listener.Config { return &config.Listener },
		signer,
		deps,
	)
	if err != nil {
		log.Error("Error creating operator runtime", "err", err)
		return 1
	}

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)

	if err := runtime.Start(ctx); err != nil {
		log.Error("Error starting operator runtime", "err", err)
		return 1
	}
	<-sigint
	log.Info("shutting down on signal")
	// cycles in flight finish their transactions before Stop returns
	runtime.Stop()
	return 0
}

func logStatus(snapshot status.Snapshot) {
	counts := make(map[status.Phase]int)
	for _, entry := range snapshot {
		counts[entry.Status]++
	}
	phases := make([]status.Phase, 0, len(counts))
	for phase := range counts {
		phases = append(phases, phase)
	}
	sort.Slice(phases, func(i, j int) bool { return phases[i] < phases[j] })
	ctx := make([]interface{}, 0, 2*len(phases)+2)
	ctx = append(ctx, "keys", len(snapshot))
	for _, phase := range phases {
		ctx = append(ctx, string(phase), counts[phase])
	}
	log.Debug("key status", ctx...)
}

func logMismatch(bundle *cdn.Bundle, challenge *sentry.Challenge, message string) {
	log.Error("assertion mismatch", "challenge", challenge.Number, "message", message, "bundle", fmt.Sprintf("%+v", bundle), "challengeData", fmt.Sprintf("%+v", challenge))
}
