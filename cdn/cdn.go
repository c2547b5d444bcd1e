// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

// Package cdn cross-checks a challenge against the assertion the public Xai
// node publishes for the same confirm hash.
package cdn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	flag "github.com/spf13/pflag"

	"github.com/xai-foundation/sentry-operator/sentry"
)

var ErrAssertionMismatch = errors.New("public node assertion does not match challenge")

// Bundle is the public node's view of one assertion.
type Bundle struct {
	Assertion   uint64 `json:"assertion"`
	BlockHash   string `json:"blockHash"`
	SendRoot    string `json:"sendRoot"`
	ConfirmHash string `json:"confirmHash"`
}

type Config struct {
	Enable     bool          `koanf:"enable"`
	URL        string        `koanf:"url"`
	Attempts   int           `koanf:"attempts"`
	RetryDelay time.Duration `koanf:"retry-delay"`
	Timeout    time.Duration `koanf:"timeout"`
}

type ConfigFetcher func() *Config

var DefaultConfig = Config{
	Enable:     true,
	URL:        "https://sentry-public-node.xai.games",
	Attempts:   3,
	RetryDelay: 20 * time.Second,
	Timeout:    10 * time.Second,
}

var TestConfig = Config{
	Enable:     true,
	Attempts:   3,
	RetryDelay: time.Millisecond,
	Timeout:    time.Second,
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultConfig.Enable, "compare new challenges against the public node assertion")
	f.String(prefix+".url", DefaultConfig.URL, "base url of the public node assertion bucket")
	f.Int(prefix+".attempts", DefaultConfig.Attempts, "number of fetch attempts")
	f.Duration(prefix+".retry-delay", DefaultConfig.RetryDelay, "delay between fetch attempts")
	f.Duration(prefix+".timeout", DefaultConfig.Timeout, "timeout of a single fetch")
}

func (c *Config) Validate() error {
	if !c.Enable {
		return nil
	}
	if c.URL == "" {
		return errors.New("cdn url is required when cdn comparison is enabled")
	}
	if c.Attempts < 1 {
		return errors.New("cdn attempts must be at least 1")
	}
	return nil
}

type Client struct {
	httpClient *http.Client
	config     ConfigFetcher
}

func NewClient(config ConfigFetcher) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: config().Timeout},
		config:     config,
	}
}

func (c *Client) bundleURL(confirmHash []byte) string {
	return fmt.Sprintf("%s/assertions/%s.json", strings.TrimSuffix(c.config().URL, "/"), strings.ToLower(hexutil.Encode(confirmHash)))
}

func (c *Client) fetchOnce(ctx context.Context, url string) (*Bundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("%s returned %s", url, resp.Status)
	}
	var bundle Bundle
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", url)
	}
	return &bundle, nil
}

// Fetch downloads the bundle for confirmHash, retrying with a fixed delay.
func (c *Client) Fetch(ctx context.Context, confirmHash []byte) (*Bundle, error) {
	cfg := c.config()
	url := c.bundleURL(confirmHash)
	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.RetryDelay), uint64(max(cfg.Attempts-1, 0))), ctx)
	bundle, err := backoff.RetryNotifyWithData(func() (*Bundle, error) {
		attempt++
		return c.fetchOnce(ctx, url)
	}, policy, func(err error, next time.Duration) {
		log.Warn("failed to load assertion from public node", "url", url, "attempt", attempt, "retryIn", next, "err", err)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "loading assertion %s after %d attempts", hexutil.Encode(confirmHash), attempt)
	}
	return bundle, nil
}

// Compare fetches the public node bundle for the challenge's confirm data and
// checks its assertion number. A mismatch returns the bundle together with
// an error wrapping ErrAssertionMismatch.
func (c *Client) Compare(ctx context.Context, challenge *sentry.Challenge) (*Bundle, error) {
	bundle, err := c.Fetch(ctx, challenge.AssertionStateRootOrConfirmData)
	if err != nil {
		return nil, err
	}
	if bundle.Assertion != challenge.AssertionID {
		return bundle, errors.Wrapf(ErrAssertionMismatch, "public node reports assertion %d, challenge %d has %d", bundle.Assertion, challenge.Number, challenge.AssertionID)
	}
	return bundle, nil
}
