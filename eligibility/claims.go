// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package eligibility

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xai-foundation/sentry-operator/sentry"
)

// ClaimGroup is every key whose reward is claimed for one address in one
// challenge.
type ClaimGroup struct {
	ChallengeNumber uint64
	Target          common.Address
	KeyIDs          []uint64
}

// GroupClaims groups pending claims by challenge and claim target. A key
// appears in at most one group. Groups are ordered by challenge number
// descending, then by target address; key IDs ascend within a group.
func GroupClaims(claims []*sentry.PendingOldClaim) []*ClaimGroup {
	type groupKey struct {
		challenge uint64
		target    common.Address
	}
	groups := make(map[groupKey]*ClaimGroup)
	seen := make(map[groupKey]map[uint64]struct{})
	for _, claim := range claims {
		k := groupKey{claim.Submission.ChallengeNumber, claim.Key.ClaimTarget()}
		group, ok := groups[k]
		if !ok {
			group = &ClaimGroup{ChallengeNumber: k.challenge, Target: k.target}
			groups[k] = group
			seen[k] = make(map[uint64]struct{})
		}
		if _, dup := seen[k][claim.Key.ID]; dup {
			continue
		}
		seen[k][claim.Key.ID] = struct{}{}
		group.KeyIDs = append(group.KeyIDs, claim.Key.ID)
	}
	result := make([]*ClaimGroup, 0, len(groups))
	for _, group := range groups {
		sort.Slice(group.KeyIDs, func(i, j int) bool { return group.KeyIDs[i] < group.KeyIDs[j] })
		result = append(result, group)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ChallengeNumber != result[j].ChallengeNumber {
			return result[i].ChallengeNumber > result[j].ChallengeNumber
		}
		return bytes.Compare(result[i].Target[:], result[j].Target[:]) < 0
	})
	return result
}
