// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package redisutil

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/xai-foundation/sentry-operator/util/testhelpers"
)

// CreateTestRedis returns the url in TEST_REDIS when set, otherwise it starts
// a miniredis that lives until ctx is done.
func CreateTestRedis(ctx context.Context, t *testing.T) string {
	if redisURL := os.Getenv("TEST_REDIS"); redisURL != "" {
		return redisURL
	}
	redisServer, err := miniredis.Run()
	testhelpers.RequireImpl(t, err)
	go func() {
		<-ctx.Done()
		redisServer.Close()
	}()
	return fmt.Sprintf("redis://%s/0", redisServer.Addr())
}
