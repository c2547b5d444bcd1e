// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/xai-foundation/sentry-operator/processor"
)

// ErrNotRecorded is returned by LevelDBRecorder.Load for a challenge that was
// never recorded.
var ErrNotRecorded = errors.New("challenge outcome not recorded")

// Sorts before every challenge key.
var lastOutcomeKey = []byte(".last_outcome")

// storedOutcome is the rlp form of processor.Outcome.
type storedOutcome struct {
	Challenge        uint64
	Source           string
	Keys             uint64
	Winners          uint64
	AlreadySubmitted uint64
	Submitted        uint64
	Claimed          uint64
	KYCSkipped       uint64
	PoolAssertions   uint64
	PoolClaims       uint64
	ProcessedAt      uint64
}

func counter(n int) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func toStored(outcome *processor.Outcome) *storedOutcome {
	processedAt := outcome.ProcessedAt.Unix()
	if processedAt < 0 {
		processedAt = 0
	}
	return &storedOutcome{
		Challenge:        outcome.Challenge,
		Source:           outcome.Source,
		Keys:             counter(outcome.Keys),
		Winners:          counter(outcome.Winners),
		AlreadySubmitted: counter(outcome.AlreadySubmitted),
		Submitted:        counter(outcome.Submitted),
		Claimed:          counter(outcome.Claimed),
		KYCSkipped:       counter(outcome.KYCSkipped),
		PoolAssertions:   counter(outcome.PoolAssertions),
		PoolClaims:       counter(outcome.PoolClaims),
		ProcessedAt:      uint64(processedAt),
	}
}

func (s *storedOutcome) outcome() *processor.Outcome {
	return &processor.Outcome{
		Challenge:        s.Challenge,
		Source:           s.Source,
		Keys:             int(s.Keys),
		Winners:          int(s.Winners),
		AlreadySubmitted: int(s.AlreadySubmitted),
		Submitted:        int(s.Submitted),
		Claimed:          int(s.Claimed),
		KYCSkipped:       int(s.KYCSkipped),
		PoolAssertions:   int(s.PoolAssertions),
		PoolClaims:       int(s.PoolClaims),
		ProcessedAt:      time.Unix(int64(s.ProcessedAt), 0),
	}
}

func challengeKey(challengeNumber uint64) []byte {
	return []byte(fmt.Sprintf("c%019d", challengeNumber))
}

// LevelDBRecorder keeps cycle outcomes in a local leveldb database, for
// operators without a redis. Outcomes do not expire.
type LevelDBRecorder struct {
	// Serializes writes of the outcome and the last outcome pointer.
	lock sync.Mutex
	db   *leveldb.DB
}

func OpenLevelDBRecorder(path string) (*LevelDBRecorder, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening recorder database %s", path)
	}
	return &LevelDBRecorder{db: db}, nil
}

func (r *LevelDBRecorder) Record(_ context.Context, outcome *processor.Outcome) error {
	enc, err := rlp.EncodeToBytes(toStored(outcome))
	if err != nil {
		return errors.Wrapf(err, "encoding outcome of challenge %d", outcome.Challenge)
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	batch := new(leveldb.Batch)
	batch.Put(challengeKey(outcome.Challenge), enc)
	last, err := r.lastChallenge()
	if err != nil {
		return err
	}
	if last == nil || outcome.Challenge >= *last {
		batch.Put(lastOutcomeKey, enc)
	}
	return errors.Wrapf(r.db.Write(batch, nil), "recording challenge %d", outcome.Challenge)
}

func (r *LevelDBRecorder) lastChallenge() (*uint64, error) {
	last, err := r.load(lastOutcomeKey)
	if errors.Is(err, ErrNotRecorded) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &last.Challenge, nil
}

func (r *LevelDBRecorder) load(key []byte) (*processor.Outcome, error) {
	val, err := r.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotRecorded
	}
	if err != nil {
		return nil, err
	}
	var stored storedOutcome
	if err := rlp.DecodeBytes(val, &stored); err != nil {
		return nil, fmt.Errorf("decoding outcome: %w", err)
	}
	return stored.outcome(), nil
}

func (r *LevelDBRecorder) Load(_ context.Context, challengeNumber uint64) (*processor.Outcome, error) {
	outcome, err := r.load(challengeKey(challengeNumber))
	return outcome, errors.Wrapf(err, "loading challenge %d", challengeNumber)
}

// Last returns the outcome of the highest challenge recorded.
func (r *LevelDBRecorder) Last(_ context.Context) (*processor.Outcome, error) {
	return r.load(lastOutcomeKey)
}

func (r *LevelDBRecorder) Close() error {
	return r.db.Close()
}
