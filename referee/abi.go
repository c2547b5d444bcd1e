// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package referee

// RefereeABI is the subset of the Referee contract the operator calls.
const RefereeABI = `[
  {"type":"function","name":"challengeCounter","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getChallenge","stateMutability":"view",
   "inputs":[{"name":"_challengeId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"openForSubmissions","type":"bool"},
     {"name":"expiredForRewarding","type":"bool"},
     {"name":"assertionId","type":"uint64"},
     {"name":"assertionStateRootOrConfirmData","type":"bytes32"},
     {"name":"assertionTimestamp","type":"uint64"},
     {"name":"challengerSignedHash","type":"bytes"},
     {"name":"activeChallengerPublicKey","type":"bytes"},
     {"name":"rollupUsed","type":"address"},
     {"name":"createdTimestamp","type":"uint256"},
     {"name":"totalSupplyOfNodesAtChallengeStart","type":"uint256"},
     {"name":"rewardAmountForClaimers","type":"uint256"},
     {"name":"amountForGasSubsidy","type":"uint256"},
     {"name":"numberOfEligibleClaimers","type":"uint256"},
     {"name":"amountClaimedByClaimers","type":"uint256"}]}]},
  {"type":"function","name":"isKycApproved","stateMutability":"view",
   "inputs":[{"name":"_wallet","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"submitMultipleAssertions","stateMutability":"nonpayable",
   "inputs":[{"name":"_nodeLicenseIds","type":"uint256[]"},{"name":"_challengeId","type":"uint256"},{"name":"_confirmData","type":"bytes"}],
   "outputs":[]},
  {"type":"function","name":"submitPoolAssertion","stateMutability":"nonpayable",
   "inputs":[{"name":"pool","type":"address"},{"name":"_challengeId","type":"uint256"},{"name":"_confirmData","type":"bytes"}],
   "outputs":[]},
  {"type":"function","name":"claimMultipleRewards","stateMutability":"nonpayable",
   "inputs":[{"name":"_nodeLicenseIds","type":"uint256[]"},{"name":"_challengeId","type":"uint256"},{"name":"claimForAddressInBatch","type":"address"}],
   "outputs":[]},
  {"type":"function","name":"claimPoolSubmissionRewards","stateMutability":"nonpayable",
   "inputs":[{"name":"pool","type":"address"},{"name":"_challengeId","type":"uint256"}],
   "outputs":[]},
  {"type":"event","name":"ChallengeSubmitted","anonymous":false,
   "inputs":[{"name":"challengeNumber","type":"uint256","indexed":true}]}
]`

// OperatorReaderABI is the batched read helper used when the indexer is
// unavailable.
const OperatorReaderABI = `[
  {"type":"function","name":"getOperatorKeys","stateMutability":"view",
   "inputs":[{"name":"operator","type":"address"},{"name":"maxKeys","type":"uint256"}],
   "outputs":[{"name":"owners","type":"address[]"},{"name":"keyIds","type":"uint256[]"},{"name":"mintTimestamps","type":"uint256[]"},{"name":"pools","type":"address[]"}]},
  {"type":"function","name":"getOwnerStakeAmounts","stateMutability":"view",
   "inputs":[{"name":"owners","type":"address[]"}],
   "outputs":[{"name":"keyCounts","type":"uint256[]"},{"name":"stakedKeyCounts","type":"uint256[]"},{"name":"v1StakeAmounts","type":"uint256[]"}]},
  {"type":"function","name":"getRefereeConfig","stateMutability":"view","inputs":[],
   "outputs":[{"name":"maxStakeAmountPerLicense","type":"uint256"},{"name":"maxKeysPerPool","type":"uint256"},{"name":"stakeAmountTierThresholds","type":"uint256[]"},{"name":"stakeAmountBoostFactors","type":"uint256[]"}]}
]`
