// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package datasource

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xai-foundation/sentry-operator/referee"
	"github.com/xai-foundation/sentry-operator/sentry"
)

type fakeChainReader struct {
	mutex      sync.Mutex
	counter    uint64
	challenges map[uint64]*sentry.Challenge
	keys       *referee.OperatorKeys
	kyc        map[common.Address]bool
	kycCalls   int
	configErr  error
}

func (f *fakeChainReader) ChallengeCounter(ctx context.Context) (uint64, error) {
	return f.counter, nil
}

func (f *fakeChainReader) Challenge(ctx context.Context, number uint64) (*sentry.Challenge, error) {
	c, ok := f.challenges[number]
	if !ok {
		return nil, errors.New("no such challenge")
	}
	return c, nil
}

func (f *fakeChainReader) IsKYCApproved(ctx context.Context, wallet common.Address) (bool, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.kycCalls++
	return f.kyc[wallet], nil
}

func (f *fakeChainReader) OperatorKeys(ctx context.Context, operator common.Address, maxKeys uint64) (*referee.OperatorKeys, error) {
	return f.keys, nil
}

func (f *fakeChainReader) OwnerStakeAmounts(ctx context.Context, owners []common.Address) (*referee.OwnerStakes, error) {
	stakes := &referee.OwnerStakes{}
	for i := range owners {
		stakes.KeyCounts = append(stakes.KeyCounts, uint64(10+i))
		stakes.StakedKeyCounts = append(stakes.StakedKeyCounts, 1)
		stakes.V1StakeAmounts = append(stakes.V1StakeAmounts, big.NewInt(int64(1000*(i+1))))
	}
	return stakes, nil
}

func (f *fakeChainReader) RefereeConfig(ctx context.Context) (*sentry.RefereeConfig, error) {
	if f.configErr != nil {
		return nil, f.configErr
	}
	return &sentry.RefereeConfig{MaxStakeAmountPerLicense: big.NewInt(100)}, nil
}

func newFakeChainReader() *fakeChainReader {
	return &fakeChainReader{
		counter: 43,
		challenges: map[uint64]*sentry.Challenge{
			42: {Number: 42, Status: sentry.OpenForSubmissions, CreatedAt: 1000},
			41: {Number: 41, Status: sentry.OpenForClaims, CreatedAt: 900},
		},
		keys: &referee.OperatorKeys{
			Owners:         []common.Address{testOwnerA, testOwnerB, testOwnerA},
			KeyIDs:         []uint64{1, 2, 3},
			MintTimestamps: []uint64{500, 600, 700},
			Pools:          []common.Address{testPool},
		},
		kyc: map[common.Address]bool{testOwnerA: true},
	}
}

func testConfigFetcher() *Config {
	return &TestConfig
}

func TestChainSourceChallenges(t *testing.T) {
	reader := newFakeChainReader()
	source := NewChainSource(reader, testConfigFetcher)
	ctx := context.Background()

	latest, err := source.LatestChallenge(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(42), latest.Number)

	_, err = source.Challenge(ctx, 43)
	require.ErrorIs(t, err, ErrChallengeNotFound)

	reader.counter = 0
	_, err = source.LatestChallenge(ctx)
	require.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestChainSourceOperatorEntities(t *testing.T) {
	reader := newFakeChainReader()
	source := NewChainSource(reader, testConfigFetcher)
	ctx := context.Background()

	entities, err := source.OperatorEntities(ctx, Query{Operator: testOperator})
	require.NoError(t, err)
	require.Equal(t, ChainSourceName, entities.Source)
	require.Equal(t, []common.Address{testPool}, entities.PoolsOperated)
	require.Len(t, entities.Wallets, 2)

	walletA, walletB := entities.Wallets[0], entities.Wallets[1]
	require.Equal(t, testOwnerA, walletA.Address)
	require.True(t, walletA.IsKYCApproved)
	require.Equal(t, uint64(10), walletA.KeyCount)
	require.Equal(t, int64(1000), walletA.V1StakeAmount.Int64())
	require.Len(t, walletA.Keys, 2)
	require.Equal(t, uint64(700), walletA.Keys[1].MintTimestamp)
	for _, key := range walletA.Keys {
		require.Empty(t, key.Submissions)
		require.False(t, key.Staked())
	}
	require.False(t, walletB.IsKYCApproved)
	require.Equal(t, 2, reader.kycCalls)

	// KYC results are cached between cycles.
	_, err = source.OperatorEntities(ctx, Query{Operator: testOperator})
	require.NoError(t, err)
	require.Equal(t, 2, reader.kycCalls)

	filtered, err := source.OperatorEntities(ctx, Query{Operator: testOperator, Owners: []common.Address{testOwnerB}})
	require.NoError(t, err)
	require.Len(t, filtered.Wallets, 1)
	require.Empty(t, filtered.PoolsOperated)
}

func TestChainSourceFailsOnConfigError(t *testing.T) {
	reader := newFakeChainReader()
	reader.configErr = errors.New("rpc down")
	source := NewChainSource(reader, testConfigFetcher)
	_, err := source.OperatorEntities(context.Background(), Query{Operator: testOperator})
	require.ErrorContains(t, err, "rpc down")
}
