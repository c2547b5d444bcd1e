// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package processor runs one challenge cycle at a time: it loads the
// operator's entities, submits pool and key assertions for the open
// challenge and claims what the previous challenge paid out.
package processor

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/xai-foundation/sentry-operator/cdn"
	"github.com/xai-foundation/sentry-operator/datasource"
	"github.com/xai-foundation/sentry-operator/eligibility"
	"github.com/xai-foundation/sentry-operator/gateway"
	"github.com/xai-foundation/sentry-operator/sentry"
	"github.com/xai-foundation/sentry-operator/status"
)

var (
	cycleCounter       = metrics.NewRegisteredCounter("sentry/processor/cycles", nil)
	cycleFailedCounter = metrics.NewRegisteredCounter("sentry/processor/cycles_failed", nil)
	winnerCounter      = metrics.NewRegisteredCounter("sentry/processor/winners", nil)
	kycSkippedCounter  = metrics.NewRegisteredCounter("sentry/processor/kyc_skipped", nil)
	keysGauge          = metrics.NewRegisteredGauge("sentry/processor/keys", nil)
	mismatchCounter    = metrics.NewRegisteredCounter("sentry/processor/assertion_mismatch", nil)
)

// Gateway sends transactions. *gateway.Gateway satisfies it.
type Gateway interface {
	SubmitBatched(ctx context.Context, keyIDs []uint64, challengeNumber uint64, confirmData []byte) gateway.Summary
	ClaimBatched(ctx context.Context, keyIDs []uint64, challengeNumber uint64, claimFor common.Address) gateway.Summary
	SubmitPoolAssertion(ctx context.Context, pool common.Address, challengeNumber uint64, confirmData []byte) gateway.Outcome
	ClaimPoolSubmissionRewards(ctx context.Context, pool common.Address, challengeNumber uint64) gateway.Outcome
}

// Comparer cross checks a challenge against the public node. *cdn.Client
// satisfies it.
type Comparer interface {
	Compare(ctx context.Context, challenge *sentry.Challenge) (*cdn.Bundle, error)
}

// Recorder keeps cycle outcomes for analytics.
type Recorder interface {
	Record(ctx context.Context, outcome *Outcome) error
}

// MismatchFunc is told when the public node disagrees with a challenge.
// bundle is nil when the public node could not be reached at all.
type MismatchFunc func(bundle *cdn.Bundle, challenge *sentry.Challenge, message string)

// Outcome summarizes one cycle.
type Outcome struct {
	Challenge        uint64
	Source           string
	Keys             int
	Winners          int
	AlreadySubmitted int
	Submitted        int
	Claimed          int
	KYCSkipped       int
	PoolAssertions   int
	PoolClaims       int
	ProcessedAt      time.Time
}

// Request is one cycle to run. FromEvent is set when the challenge was
// announced by a ChallengeSubmitted event. SkipPrior leaves the previous
// challenge to the backward sweep.
type Request struct {
	Challenge *sentry.Challenge
	FromEvent bool
	SkipPrior bool
}

type Processor struct {
	source     datasource.Source
	gateway    Gateway
	comparer   Comparer
	recorder   Recorder
	statuses   *status.Map
	reporter   *status.Reporter
	query      datasource.Query
	rollup     common.Address
	onMismatch MismatchFunc
	now        func() time.Time
}

// Deps are the collaborators of a Processor. Comparer, Recorder and
// OnMismatch are optional.
type Deps struct {
	Source     datasource.Source
	Gateway    Gateway
	Comparer   Comparer
	Recorder   Recorder
	Statuses   *status.Map
	Reporter   *status.Reporter
	Query      datasource.Query
	Rollup     common.Address
	OnMismatch MismatchFunc
}

func New(deps Deps) (*Processor, error) {
	if deps.Source == nil {
		return nil, errors.New("processor needs a data source")
	}
	if deps.Gateway == nil {
		return nil, errors.New("processor needs a gateway")
	}
	if deps.Statuses == nil {
		deps.Statuses = status.NewMap(nil)
	}
	return &Processor{
		source:     deps.Source,
		gateway:    deps.Gateway,
		comparer:   deps.Comparer,
		recorder:   deps.Recorder,
		statuses:   deps.Statuses,
		reporter:   deps.Reporter,
		query:      deps.Query,
		rollup:     deps.Rollup,
		onMismatch: deps.OnMismatch,
		now:        time.Now,
	}, nil
}

func (p *Processor) Statuses() *status.Map {
	return p.statuses
}

// Process runs one cycle. Errors loading the operator's entities abort the
// cycle and are returned; everything after that is per key or per pool and
// only logged. Transactions already sent are not cancelled with ctx.
func (p *Processor) Process(ctx context.Context, req Request) (*Outcome, error) {
	challenge := req.Challenge
	cycleCounter.Inc(1)
	p.reporter.Info("processing new challenge", "challenge", challenge.Number, "assertion", challenge.AssertionID)

	if req.FromEvent && p.comparer != nil && challenge.RollupUsed == p.rollup {
		compared := make(chan struct{})
		go func() {
			defer close(compared)
			p.compareWithPublicNode(ctx, challenge)
		}()
		defer func() { <-compared }()
	}

	entities, err := p.source.OperatorEntities(ctx, p.query)
	if err != nil {
		cycleFailedCounter.Inc(1)
		p.reporter.Error("failed to load operator entities, waiting for next challenge", "challenge", challenge.Number, "err", err)
		return nil, errors.Wrapf(err, "loading entities for challenge %d", challenge.Number)
	}
	arena := newCycle(challenge, entities)
	p.syncStatuses(arena)
	keysGauge.Update(int64(len(arena.keys)))

	outcome := &Outcome{
		Challenge: challenge.Number,
		Source:    entities.Source,
		Keys:      len(arena.keys),
	}
	txCtx := context.WithoutCancel(ctx)
	p.submitPoolAssertions(txCtx, arena, outcome)
	p.submitKeyAssertions(txCtx, arena, outcome)

	if !req.SkipPrior && challenge.Number > 1 && ctx.Err() == nil {
		prior := challenge.Number - 1
		result := p.sweep(txCtx, arena, prior, sweepOptions{claimPools: true, trackStatus: true})
		outcome.Claimed = result.claimed
		outcome.KYCSkipped = result.kycSkipped
		outcome.PoolClaims = result.poolClaims
	}

	outcome.ProcessedAt = p.now()
	if p.recorder != nil {
		if err := p.recorder.Record(txCtx, outcome); err != nil {
			p.reporter.Warn("failed to record cycle outcome", "challenge", challenge.Number, "err", err)
		}
	}
	return outcome, nil
}

func (p *Processor) compareWithPublicNode(ctx context.Context, challenge *sentry.Challenge) {
	bundle, err := p.comparer.Compare(ctx, challenge)
	switch {
	case err == nil:
		p.reporter.Info("public node assertion matches challenge", "challenge", challenge.Number, "assertion", challenge.AssertionID)
	case errors.Is(err, cdn.ErrAssertionMismatch):
		mismatchCounter.Inc(1)
		if p.onMismatch != nil {
			p.onMismatch(bundle, challenge, err.Error())
		} else {
			p.reporter.Error("public node assertion mismatch", "challenge", challenge.Number, "err", err)
		}
	default:
		p.reporter.Error("public node check failed", "challenge", challenge.Number, "assertion", challenge.AssertionID, "err", err)
	}
}

// syncStatuses adds newly loaded keys to the status map and drops keys the
// operator no longer runs.
func (p *Processor) syncStatuses(arena *cycle) {
	keep := make(map[uint64]struct{}, len(arena.keys))
	for _, id := range arena.order {
		ref := arena.keys[id]
		keep[id] = struct{}{}
		if !p.statuses.Has(id) {
			p.statuses.Set(id, ref.key.ClaimTarget(), status.BootingOperator)
		}
	}
	p.statuses.Retain(keep)
}

func (p *Processor) submitPoolAssertions(ctx context.Context, arena *cycle, outcome *Outcome) {
	challenge := arena.challenge
	for _, pool := range arena.entities.PoolsOperated {
		if p.gateway.SubmitPoolAssertion(ctx, pool, challenge.Number, challenge.AssertionStateRootOrConfirmData) == gateway.Succeeded {
			outcome.PoolAssertions++
		}
	}
}

func (p *Processor) submitKeyAssertions(ctx context.Context, arena *cycle, outcome *Outcome) {
	challenge := arena.challenge
	var winners []uint64
	evaluated := 0
	for _, id := range arena.order {
		ref := arena.keys[id]
		if arena.coveredByPool(ref.key) {
			p.statuses.Update(id, status.Running)
			continue
		}
		evaluated++
		p.statuses.Update(id, status.EligibilityCheck)
		if !eligibility.IsMintEligible(ref.key, challenge) {
			p.reporter.Debug("node license not eligible for challenge", "key", id, "challenge", challenge.Number)
			p.statuses.Update(id, status.Running)
			continue
		}
		p.statuses.Update(id, status.ApplyingAlgorithm)
		boost, err := arena.boostFor(ref, p.reporter)
		if err != nil {
			p.reporter.Error("error computing boost factor", "key", id, "challenge", challenge.Number, "err", err)
			p.statuses.Update(id, status.Running)
			continue
		}
		won, hash := eligibility.IsWinner(id, challenge.Number, boost, challenge.AssertionStateRootOrConfirmData, challenge.ChallengerSignedHash)
		if !won {
			p.statuses.Update(id, status.Running)
			continue
		}
		p.reporter.Debug("node license won challenge", "key", id, "challenge", challenge.Number, "boost", boost, "hash", hash)
		if ref.key.SubmissionFor(challenge.Number) != nil {
			outcome.AlreadySubmitted++
			p.reporter.Info("node license already submitted by another node, ignore if running several operators", "key", id, "challenge", challenge.Number)
			p.statuses.Update(id, status.Running)
			continue
		}
		p.statuses.Update(id, status.AlgorithmSucceeded)
		winners = append(winners, id)
	}
	outcome.Winners = len(winners) + outcome.AlreadySubmitted
	winnerCounter.Inc(int64(outcome.Winners))
	p.reporter.Info(
		"keys did accrue esXAI for the challenge, a key receives esXAI every few days",
		"accrued", outcome.Winners, "keys", evaluated, "challenge", challenge.Number,
	)
	if len(winners) == 0 {
		return
	}
	summary := p.gateway.SubmitBatched(ctx, winners, challenge.Number, challenge.AssertionStateRootOrConfirmData)
	outcome.Submitted = len(summary.Succeeded)
	p.reporter.Info("submitted assertions", "challenge", challenge.Number, "submitted", len(summary.Succeeded), "rejected", len(summary.Rejected), "failed", len(summary.Failed))
	for _, id := range winners {
		p.statuses.Update(id, status.Running)
	}
}
