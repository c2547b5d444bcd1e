// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package eligibility

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xai-foundation/sentry-operator/sentry"
)

func pending(challenge, keyID uint64, owner, pool common.Address) *sentry.PendingOldClaim {
	key := &sentry.Key{ID: keyID, Owner: owner, AssignedPool: pool}
	return &sentry.PendingOldClaim{
		Submission: &sentry.Submission{ChallengeNumber: challenge, NodeLicenseID: keyID, EligibleForPayout: true},
		Key:        key,
		Wallet:     &sentry.Wallet{Address: owner},
	}
}

func TestGroupClaims(t *testing.T) {
	ownerA := common.HexToAddress("0x0a")
	ownerB := common.HexToAddress("0x0b")
	pool := common.HexToAddress("0x0c")
	claims := []*sentry.PendingOldClaim{
		pending(5, 3, ownerA, common.Address{}),
		pending(5, 1, ownerA, common.Address{}),
		pending(5, 9, ownerB, pool),
		pending(5, 4, ownerA, pool),
		pending(5, 7, ownerB, common.Address{}),
		pending(4, 2, ownerA, common.Address{}),
		pending(5, 1, ownerA, common.Address{}),
	}
	want := []*ClaimGroup{
		{ChallengeNumber: 5, Target: ownerA, KeyIDs: []uint64{1, 3}},
		{ChallengeNumber: 5, Target: ownerB, KeyIDs: []uint64{7}},
		{ChallengeNumber: 5, Target: pool, KeyIDs: []uint64{4, 9}},
		{ChallengeNumber: 4, Target: ownerA, KeyIDs: []uint64{2}},
	}
	got := GroupClaims(claims)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected groups (-want +got):\n%s", diff)
	}

	seen := make(map[[2]uint64]bool)
	for _, group := range got {
		for _, id := range group.KeyIDs {
			k := [2]uint64{group.ChallengeNumber, id}
			if seen[k] {
				t.Fatalf("key %d claimed twice for challenge %d", id, group.ChallengeNumber)
			}
			seen[k] = true
		}
	}
}
