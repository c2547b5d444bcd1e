// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package eligibility holds the pure rules deciding whether a key won a
// challenge: mint eligibility, stake tier boost factors and the keccak draw
// the referee contract recomputes on submission.
package eligibility

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/xai-foundation/sentry-operator/sentry"
)

// BaseBoostFactor applies below the first stake tier: 100 out of 10000, or 1%.
const BaseBoostFactor uint64 = 100

// BoostDenominator is the modulus of the draw; boost factors are in basis
// points of it.
const BoostDenominator uint64 = 10_000

var boostModulus = uint256.NewInt(BoostDenominator)

// IsMintEligible reports whether key existed before the challenge was
// created. A key minted in the same second as the challenge is not eligible.
func IsMintEligible(key *sentry.Key, challenge *sentry.Challenge) bool {
	return challenge.CreatedAt > key.MintTimestamp
}

// BoostFactor looks up the boost for stake in the ascending tier thresholds.
// factors[i] applies from thresholds[i] up to thresholds[i+1].
func BoostFactor(stake *big.Int, thresholds []*big.Int, factors []uint64) uint64 {
	if len(thresholds) == 0 || len(factors) == 0 || stake.Cmp(thresholds[0]) < 0 {
		return BaseBoostFactor
	}
	tiers := min(len(thresholds), len(factors))
	for tier := 1; tier < tiers; tier++ {
		if stake.Cmp(thresholds[tier]) < 0 {
			return factors[tier-1]
		}
	}
	return factors[tiers-1]
}

// EffectiveStakeAmount caps the stake backing key by the per-license
// maximum. Solo keys count the owner's v1 stake over the owner's unstaked
// keys; staked keys count the pool's totals.
func EffectiveStakeAmount(key *sentry.Key, wallet *sentry.Wallet, pools map[common.Address]*sentry.Pool, config *sentry.RefereeConfig) (*big.Int, error) {
	var stake *big.Int
	var keyCount uint64
	if key.Staked() {
		pool, ok := pools[key.AssignedPool]
		if !ok {
			return nil, errors.Errorf("key %d is staked in unknown pool %v", key.ID, key.AssignedPool)
		}
		stake = pool.TotalStakedStakeAmount
		keyCount = pool.TotalStakedKeyCount
	} else {
		if wallet == nil {
			return nil, errors.Errorf("key %d has no owner wallet", key.ID)
		}
		stake = wallet.V1StakeAmount
		if wallet.KeyCount > wallet.StakedKeyCount {
			keyCount = wallet.KeyCount - wallet.StakedKeyCount
		}
	}
	if stake == nil {
		stake = new(big.Int)
	}
	maxStake := new(big.Int).Mul(new(big.Int).SetUint64(keyCount), config.MaxStakeAmountPerLicense)
	if stake.Cmp(maxStake) > 0 {
		return maxStake, nil
	}
	return new(big.Int).Set(stake), nil
}

// KeyBoostFactor is EffectiveStakeAmount followed by BoostFactor.
func KeyBoostFactor(key *sentry.Key, wallet *sentry.Wallet, pools map[common.Address]*sentry.Pool, config *sentry.RefereeConfig) (uint64, error) {
	stake, err := EffectiveStakeAmount(key, wallet, pools, config)
	if err != nil {
		return 0, err
	}
	return BoostFactor(stake, config.StakeAmountTierThresholds, config.StakeAmountBoostFactors), nil
}

// AssertionHash is keccak256(abi.encodePacked(uint256 keyID,
// uint256 challengeNumber, bytes confirmData, bytes challengerSignedHash)).
func AssertionHash(keyID, challengeNumber uint64, confirmData, challengerSignedHash []byte) common.Hash {
	id := uint256.NewInt(keyID).Bytes32()
	number := uint256.NewInt(challengeNumber).Bytes32()
	return crypto.Keccak256Hash(id[:], number[:], confirmData, challengerSignedHash)
}

// IsWinningHash reports whether hash mod 10000 falls under boost.
func IsWinningHash(hash common.Hash, boost uint64) bool {
	value := new(uint256.Int).SetBytes32(hash[:])
	return value.Mod(value, boostModulus).Uint64() < boost
}

// IsWinner runs the draw for one key and returns the outcome with the hash
// it was derived from.
func IsWinner(keyID, challengeNumber, boost uint64, confirmData, challengerSignedHash []byte) (bool, common.Hash) {
	hash := AssertionHash(keyID, challengeNumber, confirmData, challengerSignedHash)
	return IsWinningHash(hash, boost), hash
}
