// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package sentry defines the read-only view the operator keeps of the reward
// protocol: challenges, sentry wallets, node license keys, staking pools and
// their submissions. All of these are owned by the chain and the indexer; the
// operator only holds per-cycle copies.
package sentry

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type ChallengeStatus string

const (
	OpenForSubmissions ChallengeStatus = "OpenForSubmissions"
	OpenForClaims      ChallengeStatus = "OpenForClaims"
	Expired            ChallengeStatus = "Expired"
)

// Challenge is one round of the reward protocol.
type Challenge struct {
	Number                          uint64
	Status                          ChallengeStatus
	CreatedAt                       uint64
	AssertionID                     uint64
	AssertionStateRootOrConfirmData []byte
	ChallengerSignedHash            []byte
	RollupUsed                      common.Address
	TotalSupplyAtStart              *big.Int
	RewardAmountForClaimers         *big.Int
	AmountClaimedByClaimers         *big.Int
	NumberOfEligibleClaimers        *big.Int
}

func (c *Challenge) String() string {
	return fmt.Sprintf("challenge %d (%s, assertion %d)", c.Number, c.Status, c.AssertionID)
}

type Submission struct {
	ChallengeNumber   uint64
	NodeLicenseID     uint64
	Claimed           bool
	EligibleForPayout bool
	CreatedAt         uint64
	ClaimAmount       *big.Int
}

// Claimable reports whether the submission still holds an unclaimed reward.
func (s *Submission) Claimable() bool {
	return s.EligibleForPayout && !s.Claimed
}

// Key is a node license. AssignedPool is the zero address when the key is
// held directly by its owner.
type Key struct {
	ID            uint64
	Owner         common.Address
	MintTimestamp uint64
	AssignedPool  common.Address
	Submissions   []*Submission
}

func (k *Key) Staked() bool {
	return k.AssignedPool != (common.Address{})
}

// ClaimTarget is the address rewards for this key are claimed for: the pool
// when staked, the owner otherwise.
func (k *Key) ClaimTarget() common.Address {
	if k.Staked() {
		return k.AssignedPool
	}
	return k.Owner
}

// SubmissionFor returns the key's submission for the given challenge, if any.
func (k *Key) SubmissionFor(challengeNumber uint64) *Submission {
	for _, s := range k.Submissions {
		if s.ChallengeNumber == challengeNumber {
			return s
		}
	}
	return nil
}

type Wallet struct {
	Address           common.Address
	IsKYCApproved     bool
	ApprovedOperators []common.Address
	V1StakeAmount     *big.Int
	StakeAmount       *big.Int
	KeyCount          uint64
	StakedKeyCount    uint64
	Keys              []*Key
}

type Pool struct {
	Address                common.Address
	Owner                  common.Address
	Delegate               common.Address
	TotalStakedStakeAmount *big.Int
	TotalStakedKeyCount    uint64
	OwnerShare             uint64
	KeyBucketShare         uint64
	StakedBucketShare      uint64
	Metadata               []string
}

// Name is the pool's display name when metadata carries one.
func (p *Pool) Name() string {
	if len(p.Metadata) > 0 && p.Metadata[0] != "" {
		return p.Metadata[0]
	}
	return p.Address.Hex()
}

type RefereeConfig struct {
	MaxStakeAmountPerLicense  *big.Int
	MaxKeysPerPool            uint64
	StakeAmountTierThresholds []*big.Int
	StakeAmountBoostFactors   []uint64
}

// PendingOldClaim is an unclaimed winning submission found while sweeping
// closed challenges.
type PendingOldClaim struct {
	Submission *Submission
	Key        *Key
	Wallet     *Wallet
}

// OperatorEntities is everything one processing cycle needs about the
// operator: the wallets whose keys it runs, the pools it owns or is delegate
// of, pool details for every pool a loaded key is staked in, and the referee
// configuration.
type OperatorEntities struct {
	Wallets       []*Wallet
	PoolsOperated []common.Address
	Pools         map[common.Address]*Pool
	RefereeConfig *RefereeConfig
	// Source names the data source that produced the entities.
	Source string
}

// KeyCount returns the number of keys over all wallets.
func (e *OperatorEntities) KeyCount() int {
	n := 0
	for _, w := range e.Wallets {
		n += len(w.Keys)
	}
	return n
}
