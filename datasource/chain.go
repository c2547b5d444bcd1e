// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package datasource

import (
	"context"
	"math/big"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/xai-foundation/sentry-operator/referee"
	"github.com/xai-foundation/sentry-operator/sentry"
)

const ChainSourceName = "chain"

// concurrent KYC lookups per cycle
const kycLookupParallelism = 8

// ChainReader is the contract surface ChainSource reads from.
// *referee.Binding satisfies it.
type ChainReader interface {
	ChallengeCounter(ctx context.Context) (uint64, error)
	Challenge(ctx context.Context, number uint64) (*sentry.Challenge, error)
	IsKYCApproved(ctx context.Context, wallet common.Address) (bool, error)
	OperatorKeys(ctx context.Context, operator common.Address, maxKeys uint64) (*referee.OperatorKeys, error)
	OwnerStakeAmounts(ctx context.Context, owners []common.Address) (*referee.OwnerStakes, error)
	RefereeConfig(ctx context.Context) (*sentry.RefereeConfig, error)
}

// ChainSource rebuilds operator entities from contract reads. Submissions
// cannot be read this way, so keys come back without any, and pool stake
// totals are unknown.
type ChainSource struct {
	reader   ChainReader
	config   ConfigFetcher
	kycCache *expirable.LRU[common.Address, bool]
}

func NewChainSource(reader ChainReader, config ConfigFetcher) *ChainSource {
	cfg := config()
	return &ChainSource{
		reader:   reader,
		config:   config,
		kycCache: expirable.NewLRU[common.Address, bool](cfg.KYCCacheSize, nil, cfg.KYCCacheTTL),
	}
}

func (s *ChainSource) Name() string { return ChainSourceName }

func (s *ChainSource) LatestChallenge(ctx context.Context) (*sentry.Challenge, error) {
	counter, err := s.reader.ChallengeCounter(ctx)
	if err != nil {
		return nil, err
	}
	if counter == 0 {
		return nil, ErrChallengeNotFound
	}
	return s.reader.Challenge(ctx, counter-1)
}

func (s *ChainSource) Challenge(ctx context.Context, number uint64) (*sentry.Challenge, error) {
	counter, err := s.reader.ChallengeCounter(ctx)
	if err != nil {
		return nil, err
	}
	if number >= counter {
		return nil, errors.Wrapf(ErrChallengeNotFound, "challenge %d (counter %d)", number, counter)
	}
	return s.reader.Challenge(ctx, number)
}

func (s *ChainSource) OperatorEntities(ctx context.Context, query Query) (*sentry.OperatorEntities, error) {
	var refereeConfig *sentry.RefereeConfig
	var keys *referee.OperatorKeys
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		refereeConfig, err = s.reader.RefereeConfig(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		keys, err = s.reader.OperatorKeys(gctx, query.Operator, s.config().MaxKeys)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	filter := query.ownerFilter()
	entities := &sentry.OperatorEntities{
		Pools:         make(map[common.Address]*sentry.Pool),
		RefereeConfig: refereeConfig,
		Source:        ChainSourceName,
	}
	for _, pool := range keys.Pools {
		if !allowed(filter, pool) {
			continue
		}
		if _, dup := entities.Pools[pool]; dup {
			continue
		}
		entities.Pools[pool] = &sentry.Pool{Address: pool, TotalStakedStakeAmount: new(big.Int)}
		entities.PoolsOperated = append(entities.PoolsOperated, pool)
	}

	wallets := make(map[common.Address]*sentry.Wallet)
	var owners []common.Address
	for i, owner := range keys.Owners {
		if !allowed(filter, owner) {
			continue
		}
		wallet, ok := wallets[owner]
		if !ok {
			wallet = &sentry.Wallet{Address: owner, V1StakeAmount: new(big.Int), StakeAmount: new(big.Int)}
			wallets[owner] = wallet
			owners = append(owners, owner)
			entities.Wallets = append(entities.Wallets, wallet)
		}
		wallet.Keys = append(wallet.Keys, &sentry.Key{
			ID:            keys.KeyIDs[i],
			Owner:         owner,
			MintTimestamp: keys.MintTimestamps[i],
		})
	}
	if len(owners) == 0 {
		return entities, nil
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		stakes, err := s.reader.OwnerStakeAmounts(gctx, owners)
		if err != nil {
			return err
		}
		for i, owner := range owners {
			wallet := wallets[owner]
			wallet.KeyCount = stakes.KeyCounts[i]
			wallet.StakedKeyCount = stakes.StakedKeyCounts[i]
			wallet.V1StakeAmount = stakes.V1StakeAmounts[i]
		}
		return nil
	})
	kyc := make([]bool, len(owners))
	kycGroup, kycCtx := errgroup.WithContext(gctx)
	kycGroup.SetLimit(kycLookupParallelism)
	for i, owner := range owners {
		i, owner := i, owner
		kycGroup.Go(func() error {
			approved, err := s.isKYCApproved(kycCtx, owner)
			kyc[i] = approved
			return err
		})
	}
	g.Go(kycGroup.Wait)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, owner := range owners {
		wallets[owner].IsKYCApproved = kyc[i]
	}
	log.Debug("loaded operator entities from chain", "operator", query.Operator, "wallets", len(owners), "keys", len(keys.KeyIDs), "pools", len(entities.PoolsOperated))
	return entities, nil
}

func (s *ChainSource) isKYCApproved(ctx context.Context, wallet common.Address) (bool, error) {
	if approved, ok := s.kycCache.Get(wallet); ok {
		return approved, nil
	}
	approved, err := s.reader.IsKYCApproved(ctx, wallet)
	if err != nil {
		return false, err
	}
	s.kycCache.Add(wallet, approved)
	return approved, nil
}
