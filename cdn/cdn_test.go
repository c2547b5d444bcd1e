// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package cdn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xai-foundation/sentry-operator/sentry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	config := TestConfig
	config.URL = server.URL + "/"
	return NewClient(func() *Config { return &config })
}

func TestCompareMatches(t *testing.T) {
	confirm := common.HexToHash("0xABCDEF")
	var path string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"assertion": 77, "blockHash": "0x01", "sendRoot": "0x02", "confirmHash": "0x03"}`))
	})
	bundle, err := client.Compare(context.Background(), &sentry.Challenge{Number: 42, AssertionID: 77, AssertionStateRootOrConfirmData: confirm.Bytes()})
	require.NoError(t, err)
	require.Equal(t, uint64(77), bundle.Assertion)
	require.Equal(t, "/assertions/0x0000000000000000000000000000000000000000000000000000000000abcdef.json", path)
}

func TestCompareMismatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"assertion": 76}`))
	})
	bundle, err := client.Compare(context.Background(), &sentry.Challenge{Number: 42, AssertionID: 77, AssertionStateRootOrConfirmData: []byte{1}})
	require.ErrorIs(t, err, ErrAssertionMismatch)
	require.NotNil(t, bundle)
	require.Equal(t, uint64(76), bundle.Assertion)
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"assertion": 5}`))
	})
	bundle, err := client.Fetch(context.Background(), []byte{1})
	require.NoError(t, err)
	require.Equal(t, uint64(5), bundle.Assertion)
	require.Equal(t, int32(3), calls.Load())
}

func TestFetchGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
	_, err := client.Fetch(context.Background(), []byte{1})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAssertionMismatch)
	require.Equal(t, int32(TestConfig.Attempts), calls.Load())
}
