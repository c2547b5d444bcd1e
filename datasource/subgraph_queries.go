// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package datasource

const challengeFields = `
    challengeNumber
    status
    createdTimestamp
    assertionId
    assertionStateRootOrConfirmData
    challengerSignedHash
    rollupUsed
    totalSupplyOfNodesAtChallengeStart
    rewardAmountForClaimers
    amountClaimedByClaimers
    numberOfEligibleClaimers`

const poolFields = `
    address
    owner
    delegateAddress
    totalStakedEsXaiAmount
    totalStakedKeyAmount
    ownerShare
    keyBucketShare
    stakedBucketShare
    metadata`

const walletFields = `
    address
    isKYCApproved
    approvedOperators
    v1EsXaiStakeAmount
    esXaiStakeAmount
    keyCount
    stakedKeyCount`

const healthQuery = `{ _meta { block { number } } }`

const latestChallengeQuery = `query LatestChallenge {
  challenges(first: 1, orderBy: challengeNumber, orderDirection: desc) {` + challengeFields + `
  }
}`

const challengeQuery = `query Challenge($challengeNumber: BigInt!) {
  challenges(where: { challengeNumber: $challengeNumber }) {` + challengeFields + `
  }
}`

const operatorQuery = `query OperatorWallets($operator: Bytes!) {
  wallets: sentryWallets(first: 1000, where: { or: [
    { address: $operator },
    { approvedOperators_contains: [$operator] }
  ] }) {` + walletFields + `
  }
  poolsOperated: poolInfos(first: 1000, where: { or: [
    { owner: $operator },
    { delegateAddress: $operator }
  ] }) {` + poolFields + `
  }
  refereeConfig(id: "RefereeConfig") {
    maxStakeAmountPerLicense
    maxKeysPerPool
    stakeAmountTierThresholds
    stakeAmountBoostFactors
  }
}`

// sentryKeysQuery pages by key ID; skip is capped by the indexer.
const sentryKeysQuery = `query SentryKeys($owners: [Bytes!]!, $since: BigInt!, $first: Int!, $after: BigInt!) {
  sentryKeys(first: $first, orderBy: keyId, orderDirection: asc, where: { owner_in: $owners, keyId_gt: $after }) {
    keyId
    owner
    mintTimeStamp
    assignedPool
    submissions(first: 1000, where: { createdTimestamp_gt: $since, claimed: false }) {
      challengeNumber
      nodeLicenseId
      claimed
      eligibleForPayout
      createdTimestamp
      claimAmount
    }
  }
}`

const poolsQuery = `query Pools($pools: [Bytes!]!) {
  poolInfos(first: 1000, where: { address_in: $pools }) {` + poolFields + `
  }
}`
