// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package recorder mirrors cycle outcomes into Redis, or a local leveldb
// database, for analytics.
package recorder

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"

	"github.com/xai-foundation/sentry-operator/processor"
	"github.com/xai-foundation/sentry-operator/util/redisutil"
)

type Config struct {
	RedisURL    string        `koanf:"redis-url"`
	KeyPrefix   string        `koanf:"key-prefix"`
	TTL         time.Duration `koanf:"ttl"`
	LevelDBPath string        `koanf:"leveldb-path"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	KeyPrefix: "sentry-operator:",
	TTL:       30 * 24 * time.Hour,
}

var TestConfig = Config{
	KeyPrefix: "test:",
	TTL:       time.Hour,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".redis-url", DefaultConfig.RedisURL, "redis url to mirror challenge outcomes to; disabled when empty")
	f.String(prefix+".key-prefix", DefaultConfig.KeyPrefix, "prefix of the redis keys written")
	f.Duration(prefix+".ttl", DefaultConfig.TTL, "how long a recorded outcome is kept")
	f.String(prefix+".leveldb-path", DefaultConfig.LevelDBPath, "local leveldb directory to record challenge outcomes to, instead of redis")
}

func (c *Config) Enabled() bool {
	return c.RedisURL != "" || c.LevelDBPath != ""
}

func (c *Config) Validate() error {
	if c.RedisURL != "" && c.LevelDBPath != "" {
		return errors.New("recorder redis-url and leveldb-path are mutually exclusive")
	}
	if c.RedisURL != "" && c.TTL <= 0 {
		return errors.New("recorder ttl must be positive")
	}
	return nil
}

// Store is a Recorder that reads back what it wrote.
type Store interface {
	processor.Recorder
	Load(ctx context.Context, challengeNumber uint64) (*processor.Outcome, error)
	Close() error
}

// RedisRecorder writes one hash per processed challenge.
type RedisRecorder struct {
	client redis.UniversalClient
	config ConfigFetcher
}

func NewRedisRecorder(client redis.UniversalClient, config ConfigFetcher) *RedisRecorder {
	return &RedisRecorder{client: client, config: config}
}

// FromConfig opens the configured store. It returns nil when recording is
// disabled.
func FromConfig(config ConfigFetcher) (Store, error) {
	cfg := config()
	if !cfg.Enabled() {
		return nil, nil
	}
	if cfg.LevelDBPath != "" {
		return OpenLevelDBRecorder(cfg.LevelDBPath)
	}
	client, err := redisutil.RedisClientFromURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisRecorder(client, config), nil
}

func (r *RedisRecorder) Key(challengeNumber uint64) string {
	return fmt.Sprintf("%schallenge:%d", r.config().KeyPrefix, challengeNumber)
}

func (r *RedisRecorder) Record(ctx context.Context, outcome *processor.Outcome) error {
	key := r.Key(outcome.Challenge)
	fields := map[string]interface{}{
		"source":           outcome.Source,
		"keys":             outcome.Keys,
		"winners":          outcome.Winners,
		"alreadySubmitted": outcome.AlreadySubmitted,
		"submitted":        outcome.Submitted,
		"claimed":          outcome.Claimed,
		"kycSkipped":       outcome.KYCSkipped,
		"poolAssertions":   outcome.PoolAssertions,
		"poolClaims":       outcome.PoolClaims,
		"processedAt":      outcome.ProcessedAt.Unix(),
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, r.config().TTL)
		return nil
	})
	return errors.Wrapf(err, "recording challenge %d", outcome.Challenge)
}

// Load reads back a recorded outcome. It returns redis.Nil when the
// challenge was never recorded or has expired.
func (r *RedisRecorder) Load(ctx context.Context, challengeNumber uint64) (*processor.Outcome, error) {
	fields, err := r.client.HGetAll(ctx, r.Key(challengeNumber)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, redis.Nil
	}
	outcome := &processor.Outcome{Challenge: challengeNumber, Source: fields["source"]}
	ints := []struct {
		name string
		dst  *int
	}{
		{"keys", &outcome.Keys},
		{"winners", &outcome.Winners},
		{"alreadySubmitted", &outcome.AlreadySubmitted},
		{"submitted", &outcome.Submitted},
		{"claimed", &outcome.Claimed},
		{"kycSkipped", &outcome.KYCSkipped},
		{"poolAssertions", &outcome.PoolAssertions},
		{"poolClaims", &outcome.PoolClaims},
	}
	for _, field := range ints {
		if *field.dst, err = strconv.Atoi(fields[field.name]); err != nil {
			return nil, errors.Wrapf(err, "field %s of challenge %d", field.name, challengeNumber)
		}
	}
	processedAt, err := strconv.ParseInt(fields["processedAt"], 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "field processedAt of challenge %d", challengeNumber)
	}
	outcome.ProcessedAt = time.Unix(processedAt, 0)
	return outcome, nil
}

func (r *RedisRecorder) Close() error {
	return r.client.Close()
}
