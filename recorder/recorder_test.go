// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/xai-foundation/sentry-operator/processor"
	"github.com/xai-foundation/sentry-operator/util/redisutil"
)

func newTestRecorder(t *testing.T) *RedisRecorder {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	config := TestConfig
	config.RedisURL = redisutil.CreateTestRedis(ctx, t)
	store, err := FromConfig(func() *Config { return &config })
	require.NoError(t, err)
	recorder, ok := store.(*RedisRecorder)
	require.True(t, ok)
	t.Cleanup(func() { _ = recorder.Close() })
	return recorder
}

func TestRecordAndLoad(t *testing.T) {
	recorder := newTestRecorder(t)
	ctx := context.Background()
	outcome := &processor.Outcome{
		Challenge:      42,
		Source:         "subgraph",
		Keys:           12,
		Winners:        2,
		Submitted:      1,
		Claimed:        3,
		KYCSkipped:     1,
		PoolAssertions: 1,
		ProcessedAt:    time.Unix(1_700_000_000, 0),
	}
	require.NoError(t, recorder.Record(ctx, outcome))

	loaded, err := recorder.Load(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, outcome.Keys, loaded.Keys)
	require.Equal(t, outcome.Claimed, loaded.Claimed)
	require.Equal(t, outcome.Source, loaded.Source)
	require.True(t, outcome.ProcessedAt.Equal(loaded.ProcessedAt))

	ttl, err := recorder.client.TTL(ctx, "test:challenge:42").Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
	require.LessOrEqual(t, ttl, TestConfig.TTL)
}

func TestLoadMissing(t *testing.T) {
	recorder := newTestRecorder(t)
	_, err := recorder.Load(context.Background(), 7)
	require.ErrorIs(t, err, redis.Nil)
}

func TestDisabledWithoutURL(t *testing.T) {
	config := TestConfig
	recorder, err := FromConfig(func() *Config { return &config })
	require.NoError(t, err)
	require.Nil(t, recorder)
}
