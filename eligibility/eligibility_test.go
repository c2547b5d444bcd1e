// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package eligibility

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xai-foundation/sentry-operator/sentry"
	"github.com/xai-foundation/sentry-operator/util/testhelpers"
)

func bigs(vals ...int64) []*big.Int {
	out := make([]*big.Int, len(vals))
	for i, v := range vals {
		out[i] = big.NewInt(v)
	}
	return out
}

func TestIsMintEligible(t *testing.T) {
	challenge := &sentry.Challenge{Number: 42, CreatedAt: 1000}
	require.False(t, IsMintEligible(&sentry.Key{MintTimestamp: 1000}, challenge))
	require.True(t, IsMintEligible(&sentry.Key{MintTimestamp: 999}, challenge))
	require.False(t, IsMintEligible(&sentry.Key{MintTimestamp: 1001}, challenge))
}

func TestBoostFactor(t *testing.T) {
	thresholds := bigs(1000, 5000, 20000)
	factors := []uint64{150, 200, 300}
	tests := []struct {
		stake int64
		want  uint64
	}{
		{0, 100},
		{999, 100},
		{1000, 150},
		{4999, 150},
		{5000, 200},
		{19999, 200},
		{20000, 300},
		{1_000_000, 300},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, BoostFactor(big.NewInt(tt.stake), thresholds, factors), "stake %d", tt.stake)
	}
	require.Equal(t, BaseBoostFactor, BoostFactor(big.NewInt(1_000_000), nil, nil))
}

func TestBoostFactorBelowFirstTierIsBase(t *testing.T) {
	for first := int64(1); first < 2000; first += 97 {
		thresholds := bigs(first, first*2, first*3)
		factors := []uint64{500, 700, 900}
		for stake := int64(0); stake < first; stake += 13 {
			require.Equal(t, uint64(100), BoostFactor(big.NewInt(stake), thresholds, factors))
		}
		require.Equal(t, uint64(900), BoostFactor(big.NewInt(first*3), thresholds, factors))
	}
}

func TestEffectiveStakeAmount(t *testing.T) {
	config := &sentry.RefereeConfig{MaxStakeAmountPerLicense: big.NewInt(100)}
	owner := testhelpers.RandomAddress()
	wallet := &sentry.Wallet{Address: owner, V1StakeAmount: big.NewInt(1000), KeyCount: 5, StakedKeyCount: 2}

	stake, err := EffectiveStakeAmount(&sentry.Key{ID: 1, Owner: owner}, wallet, nil, config)
	require.NoError(t, err)
	require.Equal(t, int64(300), stake.Int64())

	wallet.V1StakeAmount = big.NewInt(250)
	stake, err = EffectiveStakeAmount(&sentry.Key{ID: 1, Owner: owner}, wallet, nil, config)
	require.NoError(t, err)
	require.Equal(t, int64(250), stake.Int64())

	poolAddr := testhelpers.RandomAddress()
	pools := map[common.Address]*sentry.Pool{
		poolAddr: {Address: poolAddr, TotalStakedStakeAmount: big.NewInt(10_000), TotalStakedKeyCount: 40},
	}
	stake, err = EffectiveStakeAmount(&sentry.Key{ID: 2, Owner: owner, AssignedPool: poolAddr}, wallet, pools, config)
	require.NoError(t, err)
	require.Equal(t, int64(4000), stake.Int64())

	_, err = EffectiveStakeAmount(&sentry.Key{ID: 3, AssignedPool: testhelpers.RandomAddress()}, wallet, pools, config)
	require.Error(t, err)
}

func TestAssertionHashIsPackedEncoding(t *testing.T) {
	confirmData := common.HexToHash("0x1234").Bytes()
	signed := []byte{0xde, 0xad, 0xbe, 0xef}
	var packed []byte
	packed = append(packed, common.LeftPadBytes(big.NewInt(7).Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(big.NewInt(42).Bytes(), 32)...)
	packed = append(packed, confirmData...)
	packed = append(packed, signed...)
	require.Equal(t, crypto.Keccak256Hash(packed), AssertionHash(7, 42, confirmData, signed))
}

func TestIsWinnerDeterministic(t *testing.T) {
	confirmData := testhelpers.RandomHash().Bytes()
	signed := testhelpers.RandomSlice(65)
	won, hash := IsWinner(11, 42, 300, confirmData, signed)
	for i := 0; i < 5; i++ {
		again, againHash := IsWinner(11, 42, 300, confirmData, signed)
		require.Equal(t, won, again)
		require.Equal(t, hash, againHash)
	}

	variants := []common.Hash{
		AssertionHash(12, 42, confirmData, signed),
		AssertionHash(11, 43, confirmData, signed),
		AssertionHash(11, 42, testhelpers.RandomHash().Bytes(), signed),
		AssertionHash(11, 42, confirmData, testhelpers.RandomSlice(65)),
	}
	for i, v := range variants {
		require.NotEqual(t, hash, v, "variant %d", i)
	}
}

func TestIsWinningHash(t *testing.T) {
	base := new(big.Int).Lsh(big.NewInt(1), 200)
	base.Sub(base, new(big.Int).Mod(base, big.NewInt(10000)))
	hash := common.BigToHash(base.Add(base, big.NewInt(42)))
	require.Equal(t, int64(42), new(big.Int).Mod(hash.Big(), big.NewInt(10000)).Int64())

	require.True(t, IsWinningHash(hash, 100))
	require.True(t, IsWinningHash(hash, 43))
	require.False(t, IsWinningHash(hash, 42))
	require.False(t, IsWinningHash(hash, 0))
	require.True(t, IsWinningHash(common.MaxHash, BoostDenominator))
}

func TestScenarioWinnerAtBaseBoost(t *testing.T) {
	challenge := &sentry.Challenge{
		Number:                          42,
		CreatedAt:                       1000,
		AssertionStateRootOrConfirmData: common.HexToHash("0xabcdef").Bytes(),
		ChallengerSignedHash:            []byte{1, 2, 3},
	}
	owner := testhelpers.RandomAddress()
	wallet := &sentry.Wallet{Address: owner, V1StakeAmount: big.NewInt(0), KeyCount: 1}
	config := &sentry.RefereeConfig{
		MaxStakeAmountPerLicense:  big.NewInt(1000),
		StakeAmountTierThresholds: bigs(500),
		StakeAmountBoostFactors:   []uint64{250},
	}
	var winner *sentry.Key
	for id := uint64(1); id < 100_000; id++ {
		key := &sentry.Key{ID: id, Owner: owner, MintTimestamp: 999}
		if won, _ := IsWinner(id, challenge.Number, BaseBoostFactor, challenge.AssertionStateRootOrConfirmData, challenge.ChallengerSignedHash); won {
			winner = key
			break
		}
	}
	require.NotNil(t, winner)
	require.True(t, IsMintEligible(winner, challenge))
	boost, err := KeyBoostFactor(winner, wallet, nil, config)
	require.NoError(t, err)
	require.Equal(t, uint64(100), boost)
	won, hash := IsWinner(winner.ID, challenge.Number, boost, challenge.AssertionStateRootOrConfirmData, challenge.ChallengerSignedHash)
	require.True(t, won)
	require.Less(t, new(big.Int).Mod(hash.Big(), big.NewInt(10000)).Int64(), int64(100))
}
