// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package processor

import (
	"bytes"
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xai-foundation/sentry-operator/eligibility"
	"github.com/xai-foundation/sentry-operator/gateway"
	"github.com/xai-foundation/sentry-operator/sentry"
	"github.com/xai-foundation/sentry-operator/status"
)

type sweepOptions struct {
	claimPools  bool
	trackStatus bool
}

type sweepResult struct {
	claimed    int
	kycSkipped int
	poolClaims int
}

// sweep claims every unclaimed payout the operator's keys hold for one closed
// challenge. Keys of owners that failed KYC are skipped and counted. Claimed
// submissions are marked locally so a second sweep of the same cycle sends
// nothing.
func (p *Processor) sweep(ctx context.Context, arena *cycle, challengeNumber uint64, opts sweepOptions) sweepResult {
	update := func(id uint64, phase status.Phase) {
		if opts.trackStatus {
			p.statuses.Update(id, phase)
		}
	}
	var result sweepResult
	var pending []*sentry.PendingOldClaim
	failedKYC := make(map[common.Address]int)
	for _, id := range arena.order {
		ref := arena.keys[id]
		submission := ref.key.SubmissionFor(challengeNumber)
		if submission == nil || !submission.Claimable() {
			continue
		}
		update(id, status.CheckingUnclaimed)
		update(id, status.CheckingKYC)
		if !ref.key.Staked() && (ref.wallet == nil || !ref.wallet.IsKYCApproved) {
			failedKYC[ref.key.Owner]++
			result.kycSkipped++
			update(id, status.FailedKYC)
			continue
		}
		pending = append(pending, &sentry.PendingOldClaim{Submission: submission, Key: ref.key, Wallet: ref.wallet})
	}
	p.logFailedKYC(challengeNumber, failedKYC)
	kycSkippedCounter.Inc(int64(result.kycSkipped))

	for _, group := range eligibility.GroupClaims(pending) {
		summary := p.gateway.ClaimBatched(ctx, group.KeyIDs, group.ChallengeNumber, group.Target)
		for _, id := range summary.Succeeded {
			if submission := arena.keys[id].key.SubmissionFor(group.ChallengeNumber); submission != nil {
				submission.Claimed = true
			}
		}
		result.claimed += len(summary.Succeeded)
		for _, id := range group.KeyIDs {
			update(id, status.Running)
		}
	}

	if opts.claimPools {
		for _, pool := range arena.entities.PoolsOperated {
			if p.gateway.ClaimPoolSubmissionRewards(ctx, pool, challengeNumber) == gateway.Succeeded {
				result.poolClaims++
			}
		}
	}
	return result
}

func (p *Processor) logFailedKYC(challengeNumber uint64, failed map[common.Address]int) {
	if len(failed) == 0 {
		return
	}
	owners := make([]common.Address, 0, len(failed))
	for owner := range failed {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool { return bytes.Compare(owners[i][:], owners[j][:]) < 0 })
	p.reporter.Warn("failed KYC check, rewards cannot be claimed", "owners", len(owners), "challenge", challengeNumber)
	for _, owner := range owners {
		p.reporter.Warn("owner failed KYC", "owner", owner, "keys", failed[owner])
	}
}

// SweepOutcome summarizes a backward sweep.
type SweepOutcome struct {
	From       uint64
	Challenges int
	Claimed    int
	KYCSkipped int
}

// BackwardSweep claims every payout still unclaimed in the closed challenges
// from max(1, latest-window) up to, but excluding, latest. Challenges are
// swept newest first. ctx is checked between challenges; a claim already
// being sent is finished. The status map is left to the cycles.
func (p *Processor) BackwardSweep(ctx context.Context, latest *sentry.Challenge, window uint64) (*SweepOutcome, error) {
	from := uint64(1)
	if latest.Number > window {
		from = latest.Number - window
	}
	entities, err := p.source.OperatorEntities(ctx, p.query)
	if err != nil {
		return nil, errors.Wrap(err, "loading entities for backward sweep")
	}
	arena := newCycle(latest, entities)

	keysPerChallenge := make(map[uint64]int)
	for _, id := range arena.order {
		for _, submission := range arena.keys[id].key.Submissions {
			if submission.ChallengeNumber >= from && submission.ChallengeNumber < latest.Number && submission.Claimable() {
				keysPerChallenge[submission.ChallengeNumber]++
			}
		}
	}
	numbers := make([]uint64, 0, len(keysPerChallenge))
	for n := range keysPerChallenge {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] > numbers[j] })
	p.reporter.Info("found closed challenges with unclaimed rewards", "challenges", len(numbers), "from", from, "source", entities.Source)

	outcome := &SweepOutcome{From: from}
	txCtx := context.WithoutCancel(ctx)
	for _, n := range numbers {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		p.reporter.Info("processing closed challenge", "challenge", n, "keys", keysPerChallenge[n])
		result := p.sweep(txCtx, arena, n, sweepOptions{})
		outcome.Challenges++
		outcome.Claimed += result.claimed
		outcome.KYCSkipped += result.kycSkipped
	}
	return outcome, nil
}
