// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package referee binds the Referee contract and its operator reader.
package referee

import (
	"context"
	"math/big"
	"strings"

	"github.com/pkg/errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/xai-foundation/sentry-operator/sentry"
)

var (
	refereeABI abi.ABI
	readerABI  abi.ABI
)

func init() {
	var err error
	refereeABI, err = abi.JSON(strings.NewReader(RefereeABI))
	if err != nil {
		panic(err)
	}
	readerABI, err = abi.JSON(strings.NewReader(OperatorReaderABI))
	if err != nil {
		panic(err)
	}
}

// OperatorKeys is the reader's flat view of the keys an operator may run.
// Owners, KeyIDs and MintTimestamps are parallel.
type OperatorKeys struct {
	Owners         []common.Address
	KeyIDs         []uint64
	MintTimestamps []uint64
	Pools          []common.Address
}

// OwnerStakes is parallel to the owners it was requested for.
type OwnerStakes struct {
	KeyCounts       []uint64
	StakedKeyCounts []uint64
	V1StakeAmounts  []*big.Int
}

// challengeTuple mirrors the Referee's Challenge struct field for field.
type challengeTuple struct {
	OpenForSubmissions                 bool
	ExpiredForRewarding                bool
	AssertionId                        uint64
	AssertionStateRootOrConfirmData    [32]byte
	AssertionTimestamp                 uint64
	ChallengerSignedHash               []byte
	ActiveChallengerPublicKey          []byte
	RollupUsed                         common.Address
	CreatedTimestamp                   *big.Int
	TotalSupplyOfNodesAtChallengeStart *big.Int
	RewardAmountForClaimers            *big.Int
	AmountForGasSubsidy                *big.Int
	NumberOfEligibleClaimers           *big.Int
	AmountClaimedByClaimers            *big.Int
}

type challengeSubmitted struct {
	ChallengeNumber *big.Int
	Raw             types.Log
}

// Binding talks to the Referee and the operator reader through any
// bind.ContractBackend, usually an *ethclient.Client.
type Binding struct {
	referee *bind.BoundContract
	reader  *bind.BoundContract
}

func NewBinding(refereeAddress, readerAddress common.Address, backend bind.ContractBackend) *Binding {
	return &Binding{
		referee: bind.NewBoundContract(refereeAddress, refereeABI, backend, backend, backend),
		reader:  bind.NewBoundContract(readerAddress, readerABI, backend, backend, backend),
	}
}

func callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx}
}

func toUint64(b *big.Int, what string) (uint64, error) {
	if b == nil || !b.IsUint64() {
		return 0, errors.Errorf("%s %v does not fit in uint64", what, b)
	}
	return b.Uint64(), nil
}

func toUint64s(in []*big.Int, what string) ([]uint64, error) {
	out := make([]uint64, len(in))
	for i, b := range in {
		v, err := toUint64(b, what)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func toBigs(in []uint64) []*big.Int {
	out := make([]*big.Int, len(in))
	for i, v := range in {
		out[i] = new(big.Int).SetUint64(v)
	}
	return out
}

// ChallengeCounter is the number of challenges created so far. The latest
// challenge is ChallengeCounter - 1.
func (b *Binding) ChallengeCounter(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := b.referee.Call(callOpts(ctx), &out, "challengeCounter"); err != nil {
		return 0, errors.Wrap(err, "challengeCounter")
	}
	counter := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return toUint64(counter, "challenge counter")
}

func (b *Binding) Challenge(ctx context.Context, number uint64) (*sentry.Challenge, error) {
	var out []interface{}
	if err := b.referee.Call(callOpts(ctx), &out, "getChallenge", new(big.Int).SetUint64(number)); err != nil {
		return nil, errors.Wrapf(err, "getChallenge(%d)", number)
	}
	tuple := *abi.ConvertType(out[0], new(challengeTuple)).(*challengeTuple)
	return tuple.toChallenge(number)
}

func (t *challengeTuple) toChallenge(number uint64) (*sentry.Challenge, error) {
	createdAt, err := toUint64(t.CreatedTimestamp, "created timestamp")
	if err != nil {
		return nil, err
	}
	status := sentry.OpenForClaims
	if t.OpenForSubmissions {
		status = sentry.OpenForSubmissions
	}
	if t.ExpiredForRewarding {
		status = sentry.Expired
	}
	return &sentry.Challenge{
		Number:                          number,
		Status:                          status,
		CreatedAt:                       createdAt,
		AssertionID:                     t.AssertionId,
		AssertionStateRootOrConfirmData: common.CopyBytes(t.AssertionStateRootOrConfirmData[:]),
		ChallengerSignedHash:            common.CopyBytes(t.ChallengerSignedHash),
		RollupUsed:                      t.RollupUsed,
		TotalSupplyAtStart:              t.TotalSupplyOfNodesAtChallengeStart,
		RewardAmountForClaimers:         t.RewardAmountForClaimers,
		AmountClaimedByClaimers:         t.AmountClaimedByClaimers,
		NumberOfEligibleClaimers:        t.NumberOfEligibleClaimers,
	}, nil
}

func (b *Binding) IsKYCApproved(ctx context.Context, wallet common.Address) (bool, error) {
	var out []interface{}
	if err := b.referee.Call(callOpts(ctx), &out, "isKycApproved", wallet); err != nil {
		return false, errors.Wrapf(err, "isKycApproved(%v)", wallet)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (b *Binding) OperatorKeys(ctx context.Context, operator common.Address, maxKeys uint64) (*OperatorKeys, error) {
	var out []interface{}
	if err := b.reader.Call(callOpts(ctx), &out, "getOperatorKeys", operator, new(big.Int).SetUint64(maxKeys)); err != nil {
		return nil, errors.Wrapf(err, "getOperatorKeys(%v)", operator)
	}
	owners := *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address)
	keyIDs, err := toUint64s(*abi.ConvertType(out[1], new([]*big.Int)).(*[]*big.Int), "key id")
	if err != nil {
		return nil, err
	}
	mints, err := toUint64s(*abi.ConvertType(out[2], new([]*big.Int)).(*[]*big.Int), "mint timestamp")
	if err != nil {
		return nil, err
	}
	pools := *abi.ConvertType(out[3], new([]common.Address)).(*[]common.Address)
	if len(owners) != len(keyIDs) || len(keyIDs) != len(mints) {
		return nil, errors.Errorf("getOperatorKeys returned %d owners, %d keys and %d timestamps", len(owners), len(keyIDs), len(mints))
	}
	return &OperatorKeys{Owners: owners, KeyIDs: keyIDs, MintTimestamps: mints, Pools: pools}, nil
}

func (b *Binding) OwnerStakeAmounts(ctx context.Context, owners []common.Address) (*OwnerStakes, error) {
	var out []interface{}
	if err := b.reader.Call(callOpts(ctx), &out, "getOwnerStakeAmounts", owners); err != nil {
		return nil, errors.Wrap(err, "getOwnerStakeAmounts")
	}
	keyCounts, err := toUint64s(*abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int), "key count")
	if err != nil {
		return nil, err
	}
	stakedCounts, err := toUint64s(*abi.ConvertType(out[1], new([]*big.Int)).(*[]*big.Int), "staked key count")
	if err != nil {
		return nil, err
	}
	amounts := *abi.ConvertType(out[2], new([]*big.Int)).(*[]*big.Int)
	if len(keyCounts) != len(owners) || len(stakedCounts) != len(owners) || len(amounts) != len(owners) {
		return nil, errors.Errorf("getOwnerStakeAmounts returned mismatched lengths for %d owners", len(owners))
	}
	return &OwnerStakes{KeyCounts: keyCounts, StakedKeyCounts: stakedCounts, V1StakeAmounts: amounts}, nil
}

func (b *Binding) RefereeConfig(ctx context.Context) (*sentry.RefereeConfig, error) {
	var out []interface{}
	if err := b.reader.Call(callOpts(ctx), &out, "getRefereeConfig"); err != nil {
		return nil, errors.Wrap(err, "getRefereeConfig")
	}
	maxStake := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	maxKeys, err := toUint64(*abi.ConvertType(out[1], new(*big.Int)).(**big.Int), "max keys per pool")
	if err != nil {
		return nil, err
	}
	thresholds := *abi.ConvertType(out[2], new([]*big.Int)).(*[]*big.Int)
	factors, err := toUint64s(*abi.ConvertType(out[3], new([]*big.Int)).(*[]*big.Int), "boost factor")
	if err != nil {
		return nil, err
	}
	return &sentry.RefereeConfig{
		MaxStakeAmountPerLicense:  maxStake,
		MaxKeysPerPool:            maxKeys,
		StakeAmountTierThresholds: thresholds,
		StakeAmountBoostFactors:   factors,
	}, nil
}

func (b *Binding) SubmitMultipleAssertions(opts *bind.TransactOpts, keyIDs []uint64, challengeNumber uint64, confirmData []byte) (*types.Transaction, error) {
	return b.referee.Transact(opts, "submitMultipleAssertions", toBigs(keyIDs), new(big.Int).SetUint64(challengeNumber), confirmData)
}

func (b *Binding) SubmitPoolAssertion(opts *bind.TransactOpts, pool common.Address, challengeNumber uint64, confirmData []byte) (*types.Transaction, error) {
	return b.referee.Transact(opts, "submitPoolAssertion", pool, new(big.Int).SetUint64(challengeNumber), confirmData)
}

func (b *Binding) ClaimMultipleRewards(opts *bind.TransactOpts, keyIDs []uint64, challengeNumber uint64, claimFor common.Address) (*types.Transaction, error) {
	return b.referee.Transact(opts, "claimMultipleRewards", toBigs(keyIDs), new(big.Int).SetUint64(challengeNumber), claimFor)
}

func (b *Binding) ClaimPoolSubmissionRewards(opts *bind.TransactOpts, pool common.Address, challengeNumber uint64) (*types.Transaction, error) {
	return b.referee.Transact(opts, "claimPoolSubmissionRewards", pool, new(big.Int).SetUint64(challengeNumber))
}

// WatchChallengeSubmitted delivers the number of every new challenge to sink
// until the subscription is closed or fails.
func (b *Binding) WatchChallengeSubmitted(ctx context.Context, sink chan<- uint64) (event.Subscription, error) {
	logs, sub, err := b.referee.WatchLogs(&bind.WatchOpts{Context: ctx}, "ChallengeSubmitted")
	if err != nil {
		return nil, errors.Wrap(err, "watching ChallengeSubmitted")
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case l := <-logs:
				number, err := b.ParseChallengeSubmitted(l)
				if err != nil {
					return err
				}
				select {
				case sink <- number:
				case err := <-sub.Err():
					return err
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (b *Binding) ParseChallengeSubmitted(l types.Log) (uint64, error) {
	ev := new(challengeSubmitted)
	if err := b.referee.UnpackLog(ev, "ChallengeSubmitted", l); err != nil {
		return 0, errors.Wrap(err, "unpacking ChallengeSubmitted")
	}
	ev.Raw = l
	return toUint64(ev.ChallengeNumber, "challenge number")
}
