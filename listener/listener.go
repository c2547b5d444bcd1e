// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package listener turns ChallengeSubmitted events and a polling timer into
// challenge cycles. Only challenge numbers above the last dispatched one are
// dispatched, and triggers arriving during a cycle collapse into one.
package listener

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/ethereum/go-ethereum/event"
	flag "github.com/spf13/pflag"

	"github.com/xai-foundation/sentry-operator/sentry"
	"github.com/xai-foundation/sentry-operator/status"
	"github.com/xai-foundation/sentry-operator/util/stopwaiter"
)

type Config struct {
	PollInterval     time.Duration `koanf:"poll-interval"`
	Subscribe        bool          `koanf:"subscribe"`
	ResubscribeDelay time.Duration `koanf:"resubscribe-delay"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	PollInterval:     time.Minute,
	Subscribe:        true,
	ResubscribeDelay: 10 * time.Second,
}

var TestConfig = Config{
	PollInterval:     20 * time.Millisecond,
	Subscribe:        true,
	ResubscribeDelay: 10 * time.Millisecond,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Duration(prefix+".poll-interval", DefaultConfig.PollInterval, "how often to check for a new challenge when no event arrives")
	f.Bool(prefix+".subscribe", DefaultConfig.Subscribe, "subscribe to ChallengeSubmitted events (requires a websocket endpoint)")
	f.Duration(prefix+".resubscribe-delay", DefaultConfig.ResubscribeDelay, "maximum delay before resubscribing after the event subscription drops")
}

func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("listener poll-interval must be positive")
	}
	if c.Subscribe && c.ResubscribeDelay <= 0 {
		return errors.New("listener resubscribe-delay must be positive")
	}
	return nil
}

// ChallengeWatcher delivers ChallengeSubmitted challenge numbers.
// *referee.Binding satisfies it.
type ChallengeWatcher interface {
	WatchChallengeSubmitted(ctx context.Context, sink chan<- uint64) (event.Subscription, error)
}

type LatestChallengeFetcher interface {
	LatestChallenge(ctx context.Context) (*sentry.Challenge, error)
}

// DispatchFunc runs one cycle. It is called from a single goroutine, never
// concurrently with itself.
type DispatchFunc func(ctx context.Context, challenge *sentry.Challenge, fromEvent bool)

type Listener struct {
	stopwaiter.StopWaiter
	config        ConfigFetcher
	watcher       ChallengeWatcher
	latest        LatestChallengeFetcher
	dispatch      DispatchFunc
	reporter      *status.Reporter
	trigger       chan bool
	lastProcessed atomic.Uint64

	// announced is the highest challenge number seen in an event. The source
	// may lag the event; a later poll still dispatches it as event-announced.
	announced atomic.Uint64
}

// New creates a listener. watcher may be nil, in which case only the polling
// timer triggers cycles.
func New(config ConfigFetcher, watcher ChallengeWatcher, latest LatestChallengeFetcher, dispatch DispatchFunc, reporter *status.Reporter) *Listener {
	return &Listener{
		config:   config,
		watcher:  watcher,
		latest:   latest,
		dispatch: dispatch,
		reporter: reporter,
		trigger:  make(chan bool, 1),
	}
}

// SetLastProcessed records a challenge handled outside the listener, such as
// the boot pass. Challenges up to it are not dispatched again.
func (l *Listener) SetLastProcessed(number uint64) {
	storeMax(&l.lastProcessed, number)
}

func (l *Listener) LastProcessed() uint64 {
	return l.lastProcessed.Load()
}

func storeMax(value *atomic.Uint64, number uint64) {
	for {
		current := value.Load()
		if number <= current || value.CompareAndSwap(current, number) {
			return
		}
	}
}

func (l *Listener) Start(ctxIn context.Context) error {
	l.StopWaiter.Start(ctxIn, l)
	if l.watcher != nil && l.config().Subscribe {
		l.LaunchThread(l.watch)
	}
	return stopwaiter.CallIterativelyWith(&l.StopWaiterSafe, l.check, l.trigger)
}

// notify queues a check. A pending check absorbs new ones and remembers
// whether any of them came from an event.
func (l *Listener) notify(fromEvent bool) {
	for {
		select {
		case l.trigger <- fromEvent:
			return
		default:
		}
		select {
		case pending := <-l.trigger:
			fromEvent = fromEvent || pending
		default:
		}
	}
}

func (l *Listener) watch(ctx context.Context) {
	sink := make(chan uint64, 16)
	sub := event.ResubscribeErr(l.config().ResubscribeDelay, func(ctx context.Context, lastErr error) (event.Subscription, error) {
		if lastErr != nil {
			l.reporter.Warn("challenge subscription dropped, resubscribing", "err", lastErr)
		}
		return l.watcher.WatchChallengeSubmitted(ctx, sink)
	})
	defer sub.Unsubscribe()
	l.reporter.Info("started listener for new challenges")
	for {
		select {
		case <-ctx.Done():
			return
		case number := <-sink:
			l.reporter.Debug("challenge submitted event", "challenge", number)
			storeMax(&l.announced, number)
			l.notify(true)
		case err, ok := <-sub.Err():
			if !ok {
				return
			}
			l.reporter.Error("challenge subscription failed", "err", err)
			return
		}
	}
}

func (l *Listener) check(ctx context.Context, fromEvent bool) time.Duration {
	interval := l.config().PollInterval
	challenge, err := l.latest.LatestChallenge(ctx)
	if err != nil {
		if ctx.Err() == nil {
			l.reporter.Warn("failed to fetch latest challenge", "err", err)
		}
		return interval
	}
	last := l.lastProcessed.Load()
	if challenge.Number <= last {
		if fromEvent {
			l.reporter.Debug("ignoring challenge already processed", "challenge", challenge.Number, "lastProcessed", last)
		}
		return interval
	}
	fromEvent = fromEvent || challenge.Number <= l.announced.Load()
	l.lastProcessed.Store(challenge.Number)
	l.reporter.Info("received new challenge", "challenge", challenge.Number, "fromEvent", fromEvent)
	// Cycles run on the parent context so Stop lets the current one finish.
	l.dispatch(l.GetParentContext(), challenge, fromEvent)
	return interval
}
