// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package datasource

import (
	"context"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/machinebox/graphql"
	"github.com/pkg/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	flag "github.com/spf13/pflag"

	"github.com/xai-foundation/sentry-operator/sentry"
)

const SubgraphSourceName = "subgraph"

// The indexer stores "0x" for keys that are not staked in a pool.
const unassignedPool = "0x"

type SubgraphConfig struct {
	URL           string        `koanf:"url"`
	Timeout       time.Duration `koanf:"timeout"`
	ClaimLookback time.Duration `koanf:"claim-lookback"`
	PageSize      int           `koanf:"page-size"`
}

var DefaultSubgraphConfig = SubgraphConfig{
	URL:           "https://subgraph.satsuma-prod.com/f37507ea64fb/xai/sentry/api",
	Timeout:       30 * time.Second,
	ClaimLookback: 270 * 24 * time.Hour,
	PageSize:      1000,
}

var TestSubgraphConfig = SubgraphConfig{
	Timeout:       5 * time.Second,
	ClaimLookback: 270 * 24 * time.Hour,
	PageSize:      2,
}

func SubgraphConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".url", DefaultSubgraphConfig.URL, "subgraph GraphQL endpoint")
	f.Duration(prefix+".timeout", DefaultSubgraphConfig.Timeout, "timeout of a single subgraph request")
	f.Duration(prefix+".claim-lookback", DefaultSubgraphConfig.ClaimLookback, "how far back unclaimed submissions are loaded")
	f.Int(prefix+".page-size", DefaultSubgraphConfig.PageSize, "number of keys requested per subgraph page")
}

func (c *SubgraphConfig) Validate() error {
	if c.PageSize < 1 || c.PageSize > 1000 {
		return errors.Errorf("subgraph page-size %d outside [1, 1000]", c.PageSize)
	}
	if c.ClaimLookback <= 0 {
		return errors.New("subgraph claim-lookback must be positive")
	}
	return nil
}

// SubgraphSource serves everything from the indexer.
type SubgraphSource struct {
	client *graphql.Client
	config *SubgraphConfig
	now    func() time.Time
}

func NewSubgraphSource(config *SubgraphConfig) *SubgraphSource {
	httpClient := &http.Client{Timeout: config.Timeout}
	client := graphql.NewClient(config.URL, graphql.WithHTTPClient(httpClient))
	return &SubgraphSource{client: client, config: config, now: time.Now}
}

func (s *SubgraphSource) Name() string { return SubgraphSourceName }

func (s *SubgraphSource) run(ctx context.Context, query string, vars map[string]interface{}, resp interface{}) error {
	req := graphql.NewRequest(query)
	for k, v := range vars {
		req.Var(k, v)
	}
	return s.client.Run(ctx, req, resp)
}

// Healthy runs the minimal metadata query.
func (s *SubgraphSource) Healthy(ctx context.Context) error {
	var resp struct {
		Meta struct {
			Block struct {
				Number int64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}
	if err := s.run(ctx, healthQuery, nil, &resp); err != nil {
		return errors.Wrap(err, "subgraph health check")
	}
	log.Trace("subgraph healthy", "block", resp.Meta.Block.Number)
	return nil
}

func (s *SubgraphSource) LatestChallenge(ctx context.Context) (*sentry.Challenge, error) {
	var resp struct {
		Challenges []gqlChallenge `json:"challenges"`
	}
	if err := s.run(ctx, latestChallengeQuery, nil, &resp); err != nil {
		return nil, errors.Wrap(err, "querying latest challenge")
	}
	if len(resp.Challenges) == 0 {
		return nil, ErrChallengeNotFound
	}
	return resp.Challenges[0].toChallenge()
}

func (s *SubgraphSource) Challenge(ctx context.Context, number uint64) (*sentry.Challenge, error) {
	var resp struct {
		Challenges []gqlChallenge `json:"challenges"`
	}
	vars := map[string]interface{}{"challengeNumber": strconv.FormatUint(number, 10)}
	if err := s.run(ctx, challengeQuery, vars, &resp); err != nil {
		return nil, errors.Wrapf(err, "querying challenge %d", number)
	}
	if len(resp.Challenges) == 0 {
		return nil, errors.Wrapf(ErrChallengeNotFound, "challenge %d", number)
	}
	return resp.Challenges[0].toChallenge()
}

func (s *SubgraphSource) OperatorEntities(ctx context.Context, query Query) (*sentry.OperatorEntities, error) {
	operator := strings.ToLower(query.Operator.Hex())
	var resp struct {
		Wallets       []gqlWallet       `json:"wallets"`
		PoolsOperated []gqlPool         `json:"poolsOperated"`
		RefereeConfig *gqlRefereeConfig `json:"refereeConfig"`
	}
	if err := s.run(ctx, operatorQuery, map[string]interface{}{"operator": operator}, &resp); err != nil {
		return nil, errors.Wrap(err, "querying operator wallets")
	}
	if resp.RefereeConfig == nil {
		return nil, errors.New("subgraph has no referee config")
	}
	refereeConfig, err := resp.RefereeConfig.toRefereeConfig()
	if err != nil {
		return nil, err
	}
	filter := query.ownerFilter()
	entities := &sentry.OperatorEntities{
		Pools:         make(map[common.Address]*sentry.Pool),
		RefereeConfig: refereeConfig,
		Source:        SubgraphSourceName,
	}
	walletsByAddress := make(map[common.Address]*sentry.Wallet)
	var owners []string
	for i := range resp.Wallets {
		wallet, err := resp.Wallets[i].toWallet()
		if err != nil {
			return nil, err
		}
		if !allowed(filter, wallet.Address) {
			continue
		}
		if _, dup := walletsByAddress[wallet.Address]; dup {
			continue
		}
		walletsByAddress[wallet.Address] = wallet
		entities.Wallets = append(entities.Wallets, wallet)
		owners = append(owners, strings.ToLower(wallet.Address.Hex()))
	}
	for i := range resp.PoolsOperated {
		pool, err := resp.PoolsOperated[i].toPool()
		if err != nil {
			return nil, err
		}
		if !allowed(filter, pool.Address) {
			continue
		}
		entities.Pools[pool.Address] = pool
		entities.PoolsOperated = append(entities.PoolsOperated, pool.Address)
	}
	if len(owners) > 0 {
		if err := s.loadKeys(ctx, owners, walletsByAddress); err != nil {
			return nil, err
		}
	}
	if err := s.loadKeyPools(ctx, entities); err != nil {
		return nil, err
	}
	return entities, nil
}

func (s *SubgraphSource) lookbackTimestamp() (string, error) {
	since := s.now().Add(-s.config.ClaimLookback).Unix()
	unsigned, err := safecast.ToUint64(max(since, 0))
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(unsigned, 10), nil
}

func (s *SubgraphSource) loadKeys(ctx context.Context, owners []string, wallets map[common.Address]*sentry.Wallet) error {
	since, err := s.lookbackTimestamp()
	if err != nil {
		return err
	}
	// key IDs start at 1
	after := "-1"
	for {
		var resp struct {
			SentryKeys []gqlKey `json:"sentryKeys"`
		}
		vars := map[string]interface{}{
			"owners": owners,
			"since":  since,
			"first":  s.config.PageSize,
			"after":  after,
		}
		if err := s.run(ctx, sentryKeysQuery, vars, &resp); err != nil {
			return errors.Wrapf(err, "querying sentry keys after key %s", after)
		}
		for i := range resp.SentryKeys {
			key, err := resp.SentryKeys[i].toKey()
			if err != nil {
				return err
			}
			after = strconv.FormatUint(key.ID, 10)
			wallet, ok := wallets[key.Owner]
			if !ok {
				log.Warn("subgraph returned key of unknown owner", "key", key.ID, "owner", key.Owner)
				continue
			}
			wallet.Keys = append(wallet.Keys, key)
		}
		if len(resp.SentryKeys) < s.config.PageSize {
			return nil
		}
	}
}

// loadKeyPools fetches pool details for pools keys are staked in that the
// operator does not run itself.
func (s *SubgraphSource) loadKeyPools(ctx context.Context, entities *sentry.OperatorEntities) error {
	var missing []string
	seen := make(map[common.Address]struct{})
	for _, wallet := range entities.Wallets {
		for _, key := range wallet.Keys {
			if !key.Staked() {
				continue
			}
			if _, ok := entities.Pools[key.AssignedPool]; ok {
				continue
			}
			if _, ok := seen[key.AssignedPool]; ok {
				continue
			}
			seen[key.AssignedPool] = struct{}{}
			missing = append(missing, strings.ToLower(key.AssignedPool.Hex()))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	var resp struct {
		PoolInfos []gqlPool `json:"poolInfos"`
	}
	if err := s.run(ctx, poolsQuery, map[string]interface{}{"pools": missing}, &resp); err != nil {
		return errors.Wrap(err, "querying key pools")
	}
	for i := range resp.PoolInfos {
		pool, err := resp.PoolInfos[i].toPool()
		if err != nil {
			return err
		}
		entities.Pools[pool.Address] = pool
	}
	return nil
}

// The indexer returns BigInt as decimal strings and Bytes as hex strings.

type gqlChallenge struct {
	ChallengeNumber                 string `json:"challengeNumber"`
	Status                          string `json:"status"`
	CreatedTimestamp                string `json:"createdTimestamp"`
	AssertionID                     string `json:"assertionId"`
	AssertionStateRootOrConfirmData string `json:"assertionStateRootOrConfirmData"`
	ChallengerSignedHash            string `json:"challengerSignedHash"`
	RollupUsed                      string `json:"rollupUsed"`
	TotalSupplyAtStart              string `json:"totalSupplyOfNodesAtChallengeStart"`
	RewardAmountForClaimers         string `json:"rewardAmountForClaimers"`
	AmountClaimedByClaimers         string `json:"amountClaimedByClaimers"`
	NumberOfEligibleClaimers        string `json:"numberOfEligibleClaimers"`
}

type gqlWallet struct {
	Address            string   `json:"address"`
	IsKYCApproved      bool     `json:"isKYCApproved"`
	ApprovedOperators  []string `json:"approvedOperators"`
	V1EsXaiStakeAmount string   `json:"v1EsXaiStakeAmount"`
	EsXaiStakeAmount   string   `json:"esXaiStakeAmount"`
	KeyCount           string   `json:"keyCount"`
	StakedKeyCount     string   `json:"stakedKeyCount"`
}

type gqlSubmission struct {
	ChallengeNumber   string `json:"challengeNumber"`
	NodeLicenseID     string `json:"nodeLicenseId"`
	Claimed           bool   `json:"claimed"`
	EligibleForPayout bool   `json:"eligibleForPayout"`
	CreatedTimestamp  string `json:"createdTimestamp"`
	ClaimAmount       string `json:"claimAmount"`
}

type gqlKey struct {
	KeyID         string          `json:"keyId"`
	Owner         string          `json:"owner"`
	MintTimeStamp string          `json:"mintTimeStamp"`
	AssignedPool  string          `json:"assignedPool"`
	Submissions   []gqlSubmission `json:"submissions"`
}

type gqlPool struct {
	Address                string   `json:"address"`
	Owner                  string   `json:"owner"`
	DelegateAddress        string   `json:"delegateAddress"`
	TotalStakedEsXaiAmount string   `json:"totalStakedEsXaiAmount"`
	TotalStakedKeyAmount   string   `json:"totalStakedKeyAmount"`
	OwnerShare             string   `json:"ownerShare"`
	KeyBucketShare         string   `json:"keyBucketShare"`
	StakedBucketShare      string   `json:"stakedBucketShare"`
	Metadata               []string `json:"metadata"`
}

type gqlRefereeConfig struct {
	MaxStakeAmountPerLicense  string   `json:"maxStakeAmountPerLicense"`
	MaxKeysPerPool            string   `json:"maxKeysPerPool"`
	StakeAmountTierThresholds []string `json:"stakeAmountTierThresholds"`
	StakeAmountBoostFactors   []string `json:"stakeAmountBoostFactors"`
}

func parseBig(s, field string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("invalid %s %q", field, s)
	}
	return v, nil
}

func parseUint(s, field string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", field)
	}
	return v, nil
}

func parseBytes(s, field string) ([]byte, error) {
	if s == "" || s == "0x" {
		return []byte{}, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s", field)
	}
	return b, nil
}

func parseAddress(s, field string) (common.Address, error) {
	if s == "" || s == unassignedPool {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Errorf("invalid %s %q", field, s)
	}
	return common.HexToAddress(s), nil
}

// fieldParser collects the first parse error so conversions read linearly.
type fieldParser struct {
	err error
}

func (p *fieldParser) uint(s, field string) uint64 {
	if p.err != nil {
		return 0
	}
	v, err := parseUint(s, field)
	p.err = err
	return v
}

func (p *fieldParser) big(s, field string) *big.Int {
	if p.err != nil {
		return nil
	}
	v, err := parseBig(s, field)
	p.err = err
	return v
}

func (p *fieldParser) bytes(s, field string) []byte {
	if p.err != nil {
		return nil
	}
	v, err := parseBytes(s, field)
	p.err = err
	return v
}

func (p *fieldParser) address(s, field string) common.Address {
	if p.err != nil {
		return common.Address{}
	}
	v, err := parseAddress(s, field)
	p.err = err
	return v
}

func (c *gqlChallenge) toChallenge() (*sentry.Challenge, error) {
	var p fieldParser
	challenge := &sentry.Challenge{
		Number:                          p.uint(c.ChallengeNumber, "challengeNumber"),
		Status:                          sentry.ChallengeStatus(c.Status),
		CreatedAt:                       p.uint(c.CreatedTimestamp, "createdTimestamp"),
		AssertionID:                     p.uint(c.AssertionID, "assertionId"),
		AssertionStateRootOrConfirmData: p.bytes(c.AssertionStateRootOrConfirmData, "assertionStateRootOrConfirmData"),
		ChallengerSignedHash:            p.bytes(c.ChallengerSignedHash, "challengerSignedHash"),
		RollupUsed:                      p.address(c.RollupUsed, "rollupUsed"),
		TotalSupplyAtStart:              p.big(c.TotalSupplyAtStart, "totalSupplyOfNodesAtChallengeStart"),
		RewardAmountForClaimers:         p.big(c.RewardAmountForClaimers, "rewardAmountForClaimers"),
		AmountClaimedByClaimers:         p.big(c.AmountClaimedByClaimers, "amountClaimedByClaimers"),
		NumberOfEligibleClaimers:        p.big(c.NumberOfEligibleClaimers, "numberOfEligibleClaimers"),
	}
	if p.err != nil {
		return nil, errors.Wrapf(p.err, "challenge %s", c.ChallengeNumber)
	}
	return challenge, nil
}

func (w *gqlWallet) toWallet() (*sentry.Wallet, error) {
	var p fieldParser
	wallet := &sentry.Wallet{
		Address:        p.address(w.Address, "address"),
		IsKYCApproved:  w.IsKYCApproved,
		V1StakeAmount:  p.big(w.V1EsXaiStakeAmount, "v1EsXaiStakeAmount"),
		StakeAmount:    p.big(w.EsXaiStakeAmount, "esXaiStakeAmount"),
		KeyCount:       p.uint(w.KeyCount, "keyCount"),
		StakedKeyCount: p.uint(w.StakedKeyCount, "stakedKeyCount"),
	}
	for _, operator := range w.ApprovedOperators {
		wallet.ApprovedOperators = append(wallet.ApprovedOperators, p.address(operator, "approvedOperators"))
	}
	if p.err != nil {
		return nil, errors.Wrapf(p.err, "wallet %s", w.Address)
	}
	return wallet, nil
}

func (k *gqlKey) toKey() (*sentry.Key, error) {
	var p fieldParser
	key := &sentry.Key{
		ID:            p.uint(k.KeyID, "keyId"),
		Owner:         p.address(k.Owner, "owner"),
		MintTimestamp: p.uint(k.MintTimeStamp, "mintTimeStamp"),
		AssignedPool:  p.address(k.AssignedPool, "assignedPool"),
	}
	for i := range k.Submissions {
		s := &k.Submissions[i]
		key.Submissions = append(key.Submissions, &sentry.Submission{
			ChallengeNumber:   p.uint(s.ChallengeNumber, "submission challengeNumber"),
			NodeLicenseID:     p.uint(s.NodeLicenseID, "submission nodeLicenseId"),
			Claimed:           s.Claimed,
			EligibleForPayout: s.EligibleForPayout,
			CreatedAt:         p.uint(s.CreatedTimestamp, "submission createdTimestamp"),
			ClaimAmount:       p.big(s.ClaimAmount, "submission claimAmount"),
		})
	}
	if p.err != nil {
		return nil, errors.Wrapf(p.err, "key %s", k.KeyID)
	}
	return key, nil
}

func (g *gqlPool) toPool() (*sentry.Pool, error) {
	var p fieldParser
	pool := &sentry.Pool{
		Address:                p.address(g.Address, "address"),
		Owner:                  p.address(g.Owner, "owner"),
		Delegate:               p.address(g.DelegateAddress, "delegateAddress"),
		TotalStakedStakeAmount: p.big(g.TotalStakedEsXaiAmount, "totalStakedEsXaiAmount"),
		TotalStakedKeyCount:    p.uint(g.TotalStakedKeyAmount, "totalStakedKeyAmount"),
		OwnerShare:             p.uint(g.OwnerShare, "ownerShare"),
		KeyBucketShare:         p.uint(g.KeyBucketShare, "keyBucketShare"),
		StakedBucketShare:      p.uint(g.StakedBucketShare, "stakedBucketShare"),
		Metadata:               g.Metadata,
	}
	if p.err != nil {
		return nil, errors.Wrapf(p.err, "pool %s", g.Address)
	}
	return pool, nil
}

func (r *gqlRefereeConfig) toRefereeConfig() (*sentry.RefereeConfig, error) {
	var p fieldParser
	config := &sentry.RefereeConfig{
		MaxStakeAmountPerLicense: p.big(r.MaxStakeAmountPerLicense, "maxStakeAmountPerLicense"),
		MaxKeysPerPool:           p.uint(r.MaxKeysPerPool, "maxKeysPerPool"),
	}
	for _, t := range r.StakeAmountTierThresholds {
		config.StakeAmountTierThresholds = append(config.StakeAmountTierThresholds, p.big(t, "stakeAmountTierThresholds"))
	}
	for _, f := range r.StakeAmountBoostFactors {
		config.StakeAmountBoostFactors = append(config.StakeAmountBoostFactors, p.uint(f, "stakeAmountBoostFactors"))
	}
	if p.err != nil {
		return nil, errors.Wrap(p.err, "referee config")
	}
	return config, nil
}
