// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package referee

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/xai-foundation/sentry-operator/sentry"
	"github.com/xai-foundation/sentry-operator/util/testhelpers"
)

// cannedBackend answers eth_call with prepared return data keyed by method
// selector. Everything else is left to the nil embedded backend.
type cannedBackend struct {
	bind.ContractBackend
	outputs map[[4]byte][]byte
	calls   int
}

func (b *cannedBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.calls++
	var selector [4]byte
	copy(selector[:], msg.Data[:4])
	return b.outputs[selector], nil
}

func (b *cannedBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{1}, nil
}

func packOutput(t *testing.T, contract abi.ABI, method string, values ...interface{}) ([4]byte, []byte) {
	t.Helper()
	m := contract.Methods[method]
	data, err := m.Outputs.Pack(values...)
	require.NoError(t, err)
	var selector [4]byte
	copy(selector[:], m.ID)
	return selector, data
}

func TestABIsDeclareOperatorMethods(t *testing.T) {
	for _, name := range []string{
		"challengeCounter", "getChallenge", "isKycApproved",
		"submitMultipleAssertions", "submitPoolAssertion",
		"claimMultipleRewards", "claimPoolSubmissionRewards",
	} {
		_, ok := refereeABI.Methods[name]
		require.True(t, ok, name)
	}
	for _, name := range []string{"getOperatorKeys", "getOwnerStakeAmounts", "getRefereeConfig"} {
		_, ok := readerABI.Methods[name]
		require.True(t, ok, name)
	}
	_, ok := refereeABI.Events["ChallengeSubmitted"]
	require.True(t, ok)
}

func TestBindingDecodesReads(t *testing.T) {
	rollup := testhelpers.RandomAddress()
	owner := testhelpers.RandomAddress()
	pool := testhelpers.RandomAddress()
	confirm := testhelpers.RandomHash()
	tuple := challengeTuple{
		OpenForSubmissions:                 true,
		AssertionId:                        77,
		AssertionStateRootOrConfirmData:    confirm,
		AssertionTimestamp:                 990,
		ChallengerSignedHash:               []byte{9, 9},
		ActiveChallengerPublicKey:          []byte{1},
		RollupUsed:                         rollup,
		CreatedTimestamp:                   big.NewInt(1000),
		TotalSupplyOfNodesAtChallengeStart: big.NewInt(35000),
		RewardAmountForClaimers:            big.NewInt(5),
		AmountForGasSubsidy:                big.NewInt(0),
		NumberOfEligibleClaimers:           big.NewInt(3),
		AmountClaimedByClaimers:            big.NewInt(1),
	}
	backend := &cannedBackend{outputs: make(map[[4]byte][]byte)}
	add := func(contract abi.ABI, method string, values ...interface{}) {
		selector, data := packOutput(t, contract, method, values...)
		backend.outputs[selector] = data
	}
	add(refereeABI, "challengeCounter", big.NewInt(43))
	add(refereeABI, "getChallenge", tuple)
	add(refereeABI, "isKycApproved", true)
	add(readerABI, "getOperatorKeys",
		[]common.Address{owner, owner}, []*big.Int{big.NewInt(1), big.NewInt(2)},
		[]*big.Int{big.NewInt(500), big.NewInt(600)}, []common.Address{pool})
	add(readerABI, "getOwnerStakeAmounts", []*big.Int{big.NewInt(2)}, []*big.Int{big.NewInt(0)}, []*big.Int{big.NewInt(1234)})
	add(readerABI, "getRefereeConfig", big.NewInt(100), big.NewInt(600), []*big.Int{big.NewInt(10)}, []*big.Int{big.NewInt(150)})

	binding := NewBinding(testhelpers.RandomAddress(), testhelpers.RandomAddress(), backend)
	ctx := context.Background()

	counter, err := binding.ChallengeCounter(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(43), counter)

	challenge, err := binding.Challenge(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, uint64(42), challenge.Number)
	require.Equal(t, sentry.OpenForSubmissions, challenge.Status)
	require.Equal(t, uint64(1000), challenge.CreatedAt)
	require.Equal(t, uint64(77), challenge.AssertionID)
	require.Equal(t, confirm.Bytes(), challenge.AssertionStateRootOrConfirmData)
	require.Equal(t, []byte{9, 9}, challenge.ChallengerSignedHash)
	require.Equal(t, rollup, challenge.RollupUsed)

	approved, err := binding.IsKYCApproved(ctx, owner)
	require.NoError(t, err)
	require.True(t, approved)

	keys, err := binding.OperatorKeys(ctx, owner, 1000)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, keys.KeyIDs)
	require.Equal(t, []uint64{500, 600}, keys.MintTimestamps)
	require.Equal(t, []common.Address{pool}, keys.Pools)

	stakes, err := binding.OwnerStakeAmounts(ctx, []common.Address{owner})
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, stakes.KeyCounts)
	require.Equal(t, int64(1234), stakes.V1StakeAmounts[0].Int64())

	config, err := binding.RefereeConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(600), config.MaxKeysPerPool)
	require.Equal(t, []uint64{150}, config.StakeAmountBoostFactors)
}

func TestChallengeStatusMapping(t *testing.T) {
	tuple := challengeTuple{CreatedTimestamp: big.NewInt(1)}
	c, err := tuple.toChallenge(1)
	require.NoError(t, err)
	require.Equal(t, sentry.OpenForClaims, c.Status)
	tuple.ExpiredForRewarding = true
	c, err = tuple.toChallenge(1)
	require.NoError(t, err)
	require.Equal(t, sentry.Expired, c.Status)
}

func TestParseChallengeSubmitted(t *testing.T) {
	binding := NewBinding(common.Address{}, common.Address{}, &cannedBackend{})
	ev := refereeABI.Events["ChallengeSubmitted"]
	number, err := binding.ParseChallengeSubmitted(types.Log{
		Topics: []common.Hash{ev.ID, common.BigToHash(big.NewInt(42))},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(42), number)
}
