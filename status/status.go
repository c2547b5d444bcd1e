// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package status is what the operator shows the application embedding it:
// a per key status map published as immutable snapshots, and a leveled log
// line stream.
package status

import (
	"sort"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

type Phase string

const (
	BootingOperator    Phase = "Booting Operator For Key"
	EligibilityLookup  Phase = "Eligibility Lookup"
	Running            Phase = "Running, esXAI Will Accrue Every Few Days"
	EligibilityCheck   Phase = "Eligibility Check"
	ApplyingAlgorithm  Phase = "Applying Reward Algorithm"
	AlgorithmSucceeded Phase = "Reward Algorithm Successful"
	CheckingUnclaimed  Phase = "Checking for Unclaimed Rewards"
	CheckingKYC        Phase = "Checking KYC Status"
	FailedKYC          Phase = "Cannot Claim, Failed KYC"
)

// Entry is the status of one node license. Owner is the pool address for
// staked keys.
type Entry struct {
	KeyID  uint64
	Owner  common.Address
	Status Phase
}

// Snapshot is a published copy of the status map. Consumers own it.
type Snapshot map[uint64]Entry

// IDs returns the key IDs in the snapshot in ascending order.
func (s Snapshot) IDs() []uint64 {
	ids := make([]uint64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type Func func(Snapshot)

// Map is the live status map. It has a single writer, the processing cycle;
// every mutation publishes a fresh Snapshot to the callback and to Latest.
type Map struct {
	entries map[uint64]Entry
	publish Func
	latest  atomic.Pointer[Snapshot]
}

func NewMap(publish Func) *Map {
	m := &Map{entries: make(map[uint64]Entry), publish: publish}
	empty := Snapshot{}
	m.latest.Store(&empty)
	return m
}

// Set creates or replaces the entry for a key.
func (m *Map) Set(keyID uint64, owner common.Address, phase Phase) {
	m.entries[keyID] = Entry{KeyID: keyID, Owner: owner, Status: phase}
	m.publishSnapshot()
}

// Update changes the phase of a known key. Unknown keys are logged and
// ignored.
func (m *Map) Update(keyID uint64, phase Phase) {
	entry, ok := m.entries[keyID]
	if !ok {
		log.Debug("node license not in status map", "keyID", keyID, "status", phase)
		return
	}
	if entry.Status == phase {
		return
	}
	entry.Status = phase
	m.entries[keyID] = entry
	m.publishSnapshot()
}

// Retain drops every key not in keep.
func (m *Map) Retain(keep map[uint64]struct{}) {
	changed := false
	for id := range m.entries {
		if _, ok := keep[id]; !ok {
			delete(m.entries, id)
			changed = true
		}
	}
	if changed {
		m.publishSnapshot()
	}
}

func (m *Map) Has(keyID uint64) bool {
	_, ok := m.entries[keyID]
	return ok
}

// Latest returns the most recently published snapshot. Safe from any
// goroutine.
func (m *Map) Latest() Snapshot {
	return *m.latest.Load()
}

func (m *Map) publishSnapshot() {
	snapshot := make(Snapshot, len(m.entries))
	for id, entry := range m.entries {
		snapshot[id] = entry
	}
	m.latest.Store(&snapshot)
	if m.publish != nil {
		published := make(Snapshot, len(snapshot))
		for id, entry := range snapshot {
			published[id] = entry
		}
		m.publish(published)
	}
}
