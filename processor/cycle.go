// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package processor

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xai-foundation/sentry-operator/eligibility"
	"github.com/xai-foundation/sentry-operator/sentry"
	"github.com/xai-foundation/sentry-operator/status"
)

type keyRef struct {
	key    *sentry.Key
	wallet *sentry.Wallet
}

// cycle holds everything derived from one entity load. It is built fresh for
// every cycle and owned by it, so boost factors never outlive the stake
// amounts they were computed from.
type cycle struct {
	challenge *sentry.Challenge
	entities  *sentry.OperatorEntities
	keys      map[uint64]keyRef
	order     []uint64
	operated  map[common.Address]struct{}
	boosts    map[common.Address]uint64
}

func newCycle(challenge *sentry.Challenge, entities *sentry.OperatorEntities) *cycle {
	c := &cycle{
		challenge: challenge,
		entities:  entities,
		keys:      make(map[uint64]keyRef),
		operated:  make(map[common.Address]struct{}, len(entities.PoolsOperated)),
		boosts:    make(map[common.Address]uint64),
	}
	for _, pool := range entities.PoolsOperated {
		c.operated[pool] = struct{}{}
	}
	for _, wallet := range entities.Wallets {
		for _, key := range wallet.Keys {
			if _, dup := c.keys[key.ID]; dup {
				continue
			}
			c.keys[key.ID] = keyRef{key: key, wallet: wallet}
			c.order = append(c.order, key.ID)
		}
	}
	sort.Slice(c.order, func(i, j int) bool { return c.order[i] < c.order[j] })
	return c
}

// coveredByPool reports whether the key's pool submits for it.
func (c *cycle) coveredByPool(key *sentry.Key) bool {
	if !key.Staked() {
		return false
	}
	_, ok := c.operated[key.AssignedPool]
	return ok
}

func (c *cycle) boostFor(ref keyRef, reporter *status.Reporter) (uint64, error) {
	target := ref.key.ClaimTarget()
	if boost, ok := c.boosts[target]; ok {
		return boost, nil
	}
	if c.entities.RefereeConfig == nil {
		return 0, errors.New("referee config not loaded")
	}
	boost, err := eligibility.KeyBoostFactor(ref.key, ref.wallet, c.entities.Pools, c.entities.RefereeConfig)
	if err != nil {
		return 0, err
	}
	c.boosts[target] = boost
	chance := fmt.Sprintf("%.2f%%", float64(boost)/100)
	if pool, ok := c.entities.Pools[target]; ok && ref.key.Staked() {
		reporter.Info("found chance boost", "boost", chance, "pool", pool.Name(), "address", target)
	} else {
		reporter.Info("found chance boost", "boost", chance, "owner", target)
	}
	return boost, nil
}
