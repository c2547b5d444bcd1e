// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package datasource loads challenges and operator entities either from the
// subgraph indexer or, when the indexer is unhealthy, from direct contract
// reads.
package datasource

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"

	"github.com/xai-foundation/sentry-operator/sentry"
)

var ErrChallengeNotFound = errors.New("challenge not found")

// Query selects the entities an operator runs. When Owners is not empty only
// wallets and pools in it are returned.
type Query struct {
	Operator common.Address
	Owners   []common.Address
}

func (q *Query) ownerFilter() map[common.Address]struct{} {
	if len(q.Owners) == 0 {
		return nil
	}
	filter := make(map[common.Address]struct{}, len(q.Owners))
	for _, owner := range q.Owners {
		filter[owner] = struct{}{}
	}
	return filter
}

func allowed(filter map[common.Address]struct{}, addr common.Address) bool {
	if filter == nil {
		return true
	}
	_, ok := filter[addr]
	return ok
}

type Source interface {
	Name() string
	LatestChallenge(ctx context.Context) (*sentry.Challenge, error)
	Challenge(ctx context.Context, number uint64) (*sentry.Challenge, error)
	OperatorEntities(ctx context.Context, query Query) (*sentry.OperatorEntities, error)
}

type Config struct {
	Subgraph         SubgraphConfig `koanf:"subgraph"`
	HealthAttempts   int            `koanf:"health-attempts"`
	HealthRetryDelay time.Duration  `koanf:"health-retry-delay"`
	MaxKeys          uint64         `koanf:"max-keys"`
	KYCCacheSize     int            `koanf:"kyc-cache-size"`
	KYCCacheTTL      time.Duration  `koanf:"kyc-cache-ttl"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	Subgraph:         DefaultSubgraphConfig,
	HealthAttempts:   3,
	HealthRetryDelay: time.Second,
	MaxKeys:          1000,
	KYCCacheSize:     1024,
	KYCCacheTTL:      10 * time.Minute,
}

var TestConfig = Config{
	Subgraph:         TestSubgraphConfig,
	HealthAttempts:   3,
	HealthRetryDelay: time.Millisecond,
	MaxKeys:          1000,
	KYCCacheSize:     16,
	KYCCacheTTL:      time.Minute,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	SubgraphConfigAddOptions(prefix+".subgraph", f)
	f.Int(prefix+".health-attempts", DefaultConfig.HealthAttempts, "number of subgraph health probes before falling back to chain reads")
	f.Duration(prefix+".health-retry-delay", DefaultConfig.HealthRetryDelay, "delay between subgraph health probes")
	f.Uint64(prefix+".max-keys", DefaultConfig.MaxKeys, "maximum number of keys read from the operator reader contract")
	f.Int(prefix+".kyc-cache-size", DefaultConfig.KYCCacheSize, "number of wallet KYC results cached for chain reads")
	f.Duration(prefix+".kyc-cache-ttl", DefaultConfig.KYCCacheTTL, "how long a cached KYC result is trusted")
}

func (c *Config) Validate() error {
	if c.HealthAttempts < 1 {
		return errors.New("data source health-attempts must be at least 1")
	}
	if c.MaxKeys == 0 {
		return errors.New("data source max-keys must be positive")
	}
	if c.KYCCacheSize < 1 {
		return errors.New("data source kyc-cache-size must be positive")
	}
	return c.Subgraph.Validate()
}
