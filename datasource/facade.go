// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package datasource

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/xai-foundation/sentry-operator/sentry"
)

var (
	subgraphServedCounter = metrics.NewRegisteredCounter("sentry/datasource/subgraph", nil)
	chainServedCounter    = metrics.NewRegisteredCounter("sentry/datasource/chain", nil)
	unhealthyCounter      = metrics.NewRegisteredCounter("sentry/datasource/subgraph_unhealthy", nil)
)

// HealthChecker is an indexed source that can report whether it is serving.
type HealthChecker interface {
	Source
	Healthy(ctx context.Context) error
}

// Facade picks the indexed source when its health probe passes and the chain
// source otherwise. The probe runs on every call.
type Facade struct {
	indexed HealthChecker
	chain   Source
	config  ConfigFetcher
}

func NewFacade(indexed HealthChecker, chain Source, config ConfigFetcher) *Facade {
	return &Facade{indexed: indexed, chain: chain, config: config}
}

func (f *Facade) Name() string { return "facade" }

func (f *Facade) probe(ctx context.Context) Result[struct{}] {
	cfg := f.config()
	return Retry(ctx, cfg.HealthAttempts, cfg.HealthRetryDelay, func(ctx context.Context) Result[struct{}] {
		return Call(ctx, f.indexed.Name(), func(ctx context.Context) (struct{}, error) {
			return struct{}{}, f.indexed.Healthy(ctx)
		})
	})
}

func serve[T any](ctx context.Context, f *Facade, what string, call func(context.Context, Source) (T, error)) Result[T] {
	health := f.probe(ctx)
	if !health.Ok() {
		unhealthyCounter.Inc(1)
		log.Warn("subgraph is unhealthy, falling back to chain reads", "call", what, "err", health.Err)
	}
	return WithFallback(health,
		func() Result[T] {
			subgraphServedCounter.Inc(1)
			return Call(ctx, f.indexed.Name(), func(ctx context.Context) (T, error) { return call(ctx, f.indexed) })
		},
		func() Result[T] {
			chainServedCounter.Inc(1)
			return Call(ctx, f.chain.Name(), func(ctx context.Context) (T, error) { return call(ctx, f.chain) })
		},
	)
}

func (f *Facade) LatestChallenge(ctx context.Context) (*sentry.Challenge, error) {
	return serve(ctx, f, "latest challenge", func(ctx context.Context, s Source) (*sentry.Challenge, error) {
		return s.LatestChallenge(ctx)
	}).Unwrap()
}

func (f *Facade) Challenge(ctx context.Context, number uint64) (*sentry.Challenge, error) {
	return serve(ctx, f, "challenge", func(ctx context.Context, s Source) (*sentry.Challenge, error) {
		return s.Challenge(ctx, number)
	}).Unwrap()
}

func (f *Facade) OperatorEntities(ctx context.Context, query Query) (*sentry.OperatorEntities, error) {
	return serve(ctx, f, "operator entities", func(ctx context.Context, s Source) (*sentry.OperatorEntities, error) {
		return s.OperatorEntities(ctx, query)
	}).Unwrap()
}
