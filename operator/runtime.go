// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package operator supervises a running sentry operator: the boot pass over
// the open challenge, the one time backward claim sweep, the challenge
// listener and the RPC liveness probe.
package operator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"

	"github.com/xai-foundation/sentry-operator/datasource"
	"github.com/xai-foundation/sentry-operator/gateway"
	"github.com/xai-foundation/sentry-operator/listener"
	"github.com/xai-foundation/sentry-operator/processor"
	"github.com/xai-foundation/sentry-operator/sentry"
	"github.com/xai-foundation/sentry-operator/status"
	"github.com/xai-foundation/sentry-operator/util/ethutil"
	"github.com/xai-foundation/sentry-operator/util/stopwaiter"
)

// ErrNoSigner is returned by NewRuntime when no usable signer is given.
var ErrNoSigner = errors.New("operator signer is missing")

type Config struct {
	LivenessInterval time.Duration `koanf:"liveness-interval"`
	BackwardSweep    bool          `koanf:"backward-sweep"`
	ClaimWindow      uint64        `koanf:"claim-window"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	LivenessInterval: 5 * time.Minute,
	BackwardSweep:    true,
	ClaimWindow:      6480,
}

var TestConfig = Config{
	LivenessInterval: 10 * time.Millisecond,
	BackwardSweep:    true,
	ClaimWindow:      6480,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Duration(prefix+".liveness-interval", DefaultConfig.LivenessInterval, "how often to log an RPC health check")
	f.Bool(prefix+".backward-sweep", DefaultConfig.BackwardSweep, "claim unclaimed rewards of past challenges once at startup")
	f.Uint64(prefix+".claim-window", DefaultConfig.ClaimWindow, "how many past challenges the startup sweep looks at")
}

func (c *Config) Validate() error {
	if c.LivenessInterval <= 0 {
		return errors.New("runtime liveness-interval must be positive")
	}
	if c.BackwardSweep && c.ClaimWindow == 0 {
		return errors.New("runtime claim-window must be positive")
	}
	return nil
}

// BlockNumberReader is probed for liveness. *ethclient.Client satisfies it.
type BlockNumberReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Deps are what a Runtime runs on. Watcher, Comparer, Recorder and the
// callbacks are optional.
type Deps struct {
	Source     datasource.Source
	Contract   gateway.Transactor
	Receipts   ethutil.ReceiptBackend
	Chain      BlockNumberReader
	Watcher    listener.ChallengeWatcher
	Comparer   processor.Comparer
	Recorder   processor.Recorder
	Rollup     common.Address
	Owners     []common.Address
	OnStatus   status.Func
	OnLog      status.LogFunc
	OnMismatch processor.MismatchFunc
}

type Runtime struct {
	stopwaiter.StopWaiter
	config    ConfigFetcher
	signer    *bind.TransactOpts
	source    datasource.Source
	chain     BlockNumberReader
	processor *processor.Processor
	listener  *listener.Listener
	reporter  *status.Reporter

	sweepOnce    sync.Once
	sweepStarted atomic.Bool
}

// NewRuntime wires the operator for signer. Identity and wiring errors are
// returned here, before anything is started.
func NewRuntime(config ConfigFetcher, gatewayConfig gateway.ConfigFetcher, listenerConfig listener.ConfigFetcher, signer *bind.TransactOpts, deps Deps) (*Runtime, error) {
	if signer == nil || signer.Signer == nil || signer.From == (common.Address{}) {
		return nil, ErrNoSigner
	}
	if deps.Source == nil || deps.Contract == nil || deps.Receipts == nil || deps.Chain == nil {
		return nil, errors.New("operator runtime needs a data source, a contract, a receipt backend and a chain reader")
	}
	if err := config().Validate(); err != nil {
		return nil, err
	}
	reporter := status.NewReporter(nil, deps.OnLog)
	proc, err := processor.New(processor.Deps{
		Source:     deps.Source,
		Gateway:    gateway.New(deps.Contract, deps.Receipts, signer, gatewayConfig, reporter),
		Comparer:   deps.Comparer,
		Recorder:   deps.Recorder,
		Statuses:   status.NewMap(deps.OnStatus),
		Reporter:   reporter,
		Query:      datasource.Query{Operator: signer.From, Owners: deps.Owners},
		Rollup:     deps.Rollup,
		OnMismatch: deps.OnMismatch,
	})
	if err != nil {
		return nil, err
	}
	r := &Runtime{
		config:    config,
		signer:    signer,
		source:    deps.Source,
		chain:     deps.Chain,
		processor: proc,
		reporter:  reporter,
	}
	r.listener = listener.New(listenerConfig, deps.Watcher, deps.Source, r.dispatch, reporter)
	return r, nil
}

// Operator is the address the runtime operates for.
func (r *Runtime) Operator() common.Address {
	return r.signer.From
}

// Status returns the latest published status map.
func (r *Runtime) Status() status.Snapshot {
	return r.processor.Statuses().Latest()
}

// Start processes the open challenge before returning, then leaves the
// backward sweep, the listener and the liveness probe running. When the boot
// pass fails the sweep starts after the first cycle that succeeds.
func (r *Runtime) Start(ctxIn context.Context) error {
	r.StopWaiter.Start(ctxIn, r)
	r.reporter.Info("booting operator runtime", "operator", r.Operator())

	latest, processed := r.boot(ctxIn)
	if latest != nil {
		r.listener.SetLastProcessed(latest.Number)
	}
	if processed {
		r.startSweep(latest)
	}
	if err := r.listener.Start(ctxIn); err != nil {
		return errors.Wrap(err, "starting challenge listener")
	}
	r.CallIteratively(r.probeLiveness)
	return nil
}

// Stop unsubscribes the listener and stops the liveness probe. A cycle or
// transaction in flight is finished first.
func (r *Runtime) Stop() {
	r.listener.StopAndWait()
	r.reporter.Info("challenge listener stopped")
	r.StopAndWait()
}

func (r *Runtime) boot(ctx context.Context) (*sentry.Challenge, bool) {
	latest, err := r.source.LatestChallenge(ctx)
	if err != nil {
		r.reporter.Error("failed to load the open challenge at boot, waiting for the next one", "err", err)
		return nil, false
	}
	r.reporter.Info("processing open challenge", "challenge", latest.Number)
	_, err = r.processor.Process(ctx, processor.Request{Challenge: latest, SkipPrior: r.sweepPending()})
	if err != nil {
		r.reporter.Error("boot pass failed, waiting for the next challenge", "challenge", latest.Number, "err", err)
		return latest, false
	}
	return latest, true
}

// sweepPending reports whether the backward sweep will still cover the
// challenge before the next one processed.
func (r *Runtime) sweepPending() bool {
	return r.config().BackwardSweep && !r.sweepStarted.Load()
}

// startSweep launches the backward sweep below latest, at most once per
// runtime.
func (r *Runtime) startSweep(latest *sentry.Challenge) {
	if !r.config().BackwardSweep {
		return
	}
	r.sweepOnce.Do(func() {
		r.sweepStarted.Store(true)
		r.LaunchThread(func(ctx context.Context) { r.sweepPast(ctx, latest) })
	})
}

func (r *Runtime) sweepPast(ctx context.Context, latest *sentry.Challenge) {
	outcome, err := r.processor.BackwardSweep(ctx, latest, r.config().ClaimWindow)
	if err != nil {
		if ctx.Err() == nil {
			r.reporter.Error("sweeping past challenges failed", "err", err)
		}
		return
	}
	r.reporter.Info(
		"the operator has finished booting, esXAI will accrue every few days",
		"challenges", outcome.Challenges, "claimed", outcome.Claimed, "kycSkipped", outcome.KYCSkipped,
	)
}

func (r *Runtime) dispatch(ctx context.Context, challenge *sentry.Challenge, fromEvent bool) {
	req := processor.Request{Challenge: challenge, FromEvent: fromEvent, SkipPrior: r.sweepPending()}
	if _, err := r.processor.Process(ctx, req); err != nil {
		r.reporter.Error("challenge cycle aborted", "challenge", challenge.Number, "err", err)
		return
	}
	r.startSweep(challenge)
}

func (r *Runtime) probeLiveness(ctx context.Context) time.Duration {
	blockNumber, err := r.chain.BlockNumber(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.reporter.Warn("error fetching block number, operator may no longer be connected to the JSON RPC", "err", err)
		}
	} else {
		r.reporter.Info("health check on JSON RPC, operator still healthy", "block", blockNumber)
	}
	return r.config().LivenessInterval
}
