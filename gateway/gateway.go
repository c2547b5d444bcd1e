// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package gateway sends assertion and claim transactions to the Referee in
// fixed size batches. Each batch is retried on transient failures; a revert
// is final and reported as a rejection.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/metrics"
	flag "github.com/spf13/pflag"

	"github.com/xai-foundation/sentry-operator/status"
	"github.com/xai-foundation/sentry-operator/util/ethutil"
)

// ErrRejected marks a batch the contract reverted. It is not retried.
var ErrRejected = errors.New("rejected by contract")

var (
	batchSubmittedCounter = metrics.NewRegisteredCounter("sentry/gateway/batch_succeeded", nil)
	batchRejectedCounter  = metrics.NewRegisteredCounter("sentry/gateway/batch_rejected", nil)
	batchFailedCounter    = metrics.NewRegisteredCounter("sentry/gateway/batch_failed", nil)
	retryCounter          = metrics.NewRegisteredCounter("sentry/gateway/retries", nil)
)

// Transactor is the Referee write surface. *referee.Binding satisfies it.
type Transactor interface {
	SubmitMultipleAssertions(opts *bind.TransactOpts, keyIDs []uint64, challengeNumber uint64, confirmData []byte) (*types.Transaction, error)
	SubmitPoolAssertion(opts *bind.TransactOpts, pool common.Address, challengeNumber uint64, confirmData []byte) (*types.Transaction, error)
	ClaimMultipleRewards(opts *bind.TransactOpts, keyIDs []uint64, challengeNumber uint64, claimFor common.Address) (*types.Transaction, error)
	ClaimPoolSubmissionRewards(opts *bind.TransactOpts, pool common.Address, challengeNumber uint64) (*types.Transaction, error)
}

type Config struct {
	BatchSize     int           `koanf:"batch-size"`
	Attempts      int           `koanf:"attempts"`
	RetryInterval time.Duration `koanf:"retry-interval"`
	TxTimeout     time.Duration `koanf:"tx-timeout"`
	PollInterval  time.Duration `koanf:"poll-interval"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	BatchSize:     100,
	Attempts:      3,
	RetryInterval: 5 * time.Second,
	TxTimeout:     2 * time.Minute,
	PollInterval:  time.Second,
}

var TestConfig = Config{
	BatchSize:     100,
	Attempts:      3,
	RetryInterval: time.Millisecond,
	TxTimeout:     time.Second,
	PollInterval:  time.Millisecond,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Int(prefix+".batch-size", DefaultConfig.BatchSize, "node licenses per assertion or claim transaction")
	f.Int(prefix+".attempts", DefaultConfig.Attempts, "attempts per batch on transient failures")
	f.Duration(prefix+".retry-interval", DefaultConfig.RetryInterval, "delay between attempts of a batch")
	f.Duration(prefix+".tx-timeout", DefaultConfig.TxTimeout, "how long to wait for a transaction to be mined")
	f.Duration(prefix+".poll-interval", DefaultConfig.PollInterval, "receipt polling interval when head subscriptions are unavailable")
}

func (c *Config) Validate() error {
	if c.BatchSize < 1 {
		return errors.New("gateway batch-size must be positive")
	}
	if c.Attempts < 1 {
		return errors.New("gateway attempts must be at least 1")
	}
	return nil
}

type Outcome int

const (
	Succeeded Outcome = iota
	Rejected
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Rejected:
		return "rejected"
	default:
		return "failed"
	}
}

// Summary is the per batch outcome of one batched call.
type Summary struct {
	Succeeded []uint64
	Rejected  []uint64
	Failed    []uint64
	Batches   int
}

func (s *Summary) add(outcome Outcome, keyIDs []uint64) {
	s.Batches++
	switch outcome {
	case Succeeded:
		s.Succeeded = append(s.Succeeded, keyIDs...)
	case Rejected:
		s.Rejected = append(s.Rejected, keyIDs...)
	default:
		s.Failed = append(s.Failed, keyIDs...)
	}
}

// Gateway is safe for concurrent use. Transactions are sent one at a time so
// concurrent callers never race for the signer's nonce.
type Gateway struct {
	sendMutex sync.Mutex
	contract  Transactor
	receipts  ethutil.ReceiptBackend
	signer    *bind.TransactOpts
	config    ConfigFetcher
	reporter  *status.Reporter
}

func New(contract Transactor, receipts ethutil.ReceiptBackend, signer *bind.TransactOpts, config ConfigFetcher, reporter *status.Reporter) *Gateway {
	return &Gateway{
		contract: contract,
		receipts: receipts,
		signer:   signer,
		config:   config,
		reporter: reporter,
	}
}

// From is the operator address transactions are signed by.
func (g *Gateway) From() common.Address {
	return g.signer.From
}

// Chunk splits ids into consecutive groups of at most size.
func Chunk[T any](ids []T, size int) [][]T {
	var chunks [][]T
	for size < len(ids) {
		ids, chunks = ids[size:], append(chunks, ids[:size:size])
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

// send runs one transaction to completion with bounded retries. Reverts stop
// the retries and come back wrapped in ErrRejected.
func (g *Gateway) send(ctx context.Context, what string, transact func(*bind.TransactOpts) (*types.Transaction, error)) error {
	cfg := g.config()
	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.RetryInterval), uint64(cfg.Attempts-1)), ctx)
	return backoff.RetryNotify(func() error {
		attempt++
		err := g.transactAndWait(ctx, cfg, transact)
		if err == nil {
			return nil
		}
		if ethutil.IsExecutionReverted(err) {
			return backoff.Permanent(errors.Wrapf(ErrRejected, "%s: %v", what, err))
		}
		return errors.Wrapf(err, "%s attempt %d", what, attempt)
	}, policy, func(err error, next time.Duration) {
		retryCounter.Inc(1)
		g.reporter.Warn("transaction attempt failed, retrying", "call", what, "retryIn", next, "err", err)
	})
}

func (g *Gateway) transactAndWait(ctx context.Context, cfg *Config, transact func(*bind.TransactOpts) (*types.Transaction, error)) error {
	g.sendMutex.Lock()
	defer g.sendMutex.Unlock()
	opts := *g.signer
	opts.Context = ctx
	tx, err := transact(&opts)
	if err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, cfg.TxTimeout)
	defer cancel()
	_, err = ethutil.WaitForTx(waitCtx, g.receipts, tx, cfg.PollInterval)
	return err
}

func (g *Gateway) classify(err error, what string, ctx ...interface{}) Outcome {
	switch {
	case err == nil:
		batchSubmittedCounter.Inc(1)
		return Succeeded
	case errors.Is(err, ErrRejected):
		batchRejectedCounter.Inc(1)
		g.reporter.Info(what+" rejected by contract", append(ctx, "err", err)...)
		return Rejected
	default:
		batchFailedCounter.Inc(1)
		g.reporter.Error(what+" failed", append(ctx, "err", err)...)
		return Failed
	}
}

// SubmitBatched submits assertions for keyIDs in chunks. A failing chunk does
// not stop the following ones.
func (g *Gateway) SubmitBatched(ctx context.Context, keyIDs []uint64, challengeNumber uint64, confirmData []byte) Summary {
	var summary Summary
	for i, batch := range Chunk(keyIDs, g.config().BatchSize) {
		err := g.send(ctx, "submitMultipleAssertions", func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return g.contract.SubmitMultipleAssertions(opts, batch, challengeNumber, confirmData)
		})
		outcome := g.classify(err, "assertion batch", "challenge", challengeNumber, "batch", i, "keys", len(batch))
		if outcome == Succeeded {
			g.reporter.Info("submitted assertion batch", "challenge", challengeNumber, "batch", i, "keys", len(batch))
		}
		summary.add(outcome, batch)
	}
	return summary
}

// ClaimBatched claims rewards for keyIDs on behalf of claimFor in chunks.
func (g *Gateway) ClaimBatched(ctx context.Context, keyIDs []uint64, challengeNumber uint64, claimFor common.Address) Summary {
	var summary Summary
	for i, batch := range Chunk(keyIDs, g.config().BatchSize) {
		err := g.send(ctx, "claimMultipleRewards", func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return g.contract.ClaimMultipleRewards(opts, batch, challengeNumber, claimFor)
		})
		outcome := g.classify(err, "claim batch", "challenge", challengeNumber, "claimFor", claimFor, "batch", i, "keys", len(batch))
		if outcome == Succeeded {
			g.reporter.Info("claimed rewards", "challenge", challengeNumber, "claimFor", claimFor, "batch", i, "keys", len(batch))
		}
		summary.add(outcome, batch)
	}
	return summary
}

func (g *Gateway) SubmitPoolAssertion(ctx context.Context, pool common.Address, challengeNumber uint64, confirmData []byte) Outcome {
	err := g.send(ctx, "submitPoolAssertion", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return g.contract.SubmitPoolAssertion(opts, pool, challengeNumber, confirmData)
	})
	outcome := g.classify(err, "pool assertion", "challenge", challengeNumber, "pool", pool)
	if outcome == Succeeded {
		g.reporter.Info("submitted pool assertion", "challenge", challengeNumber, "pool", pool)
	}
	return outcome
}

func (g *Gateway) ClaimPoolSubmissionRewards(ctx context.Context, pool common.Address, challengeNumber uint64) Outcome {
	err := g.send(ctx, "claimPoolSubmissionRewards", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return g.contract.ClaimPoolSubmissionRewards(opts, pool, challengeNumber)
	})
	outcome := g.classify(err, "pool claim", "challenge", challengeNumber, "pool", pool)
	if outcome == Succeeded {
		g.reporter.Info("claimed pool submission rewards", "challenge", challengeNumber, "pool", pool)
	}
	return outcome
}
