// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package datasource

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Result is the outcome of one data source call, tagged with the source
// that produced it.
type Result[T any] struct {
	Value  T
	Err    error
	Source string
}

func Ok[T any](value T, source string) Result[T] {
	return Result[T]{Value: value, Source: source}
}

func Fail[T any](err error, source string) Result[T] {
	return Result[T]{Err: err, Source: source}
}

func (r Result[T]) Ok() bool {
	return r.Err == nil
}

func (r Result[T]) Unwrap() (T, error) {
	return r.Value, r.Err
}

// Call wraps a plain call as a Result.
func Call[T any](ctx context.Context, source string, fn func(context.Context) (T, error)) Result[T] {
	value, err := fn(ctx)
	if err != nil {
		return Fail[T](err, source)
	}
	return Ok(value, source)
}

// Retry makes up to attempts calls of fn with a fixed delay between them and
// returns the first success or the last failure.
func Retry[T any](ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) Result[T]) Result[T] {
	var last Result[T]
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(max(attempts-1, 0))), ctx)
	_ = backoff.Retry(func() error {
		last = fn(ctx)
		return last.Err
	}, policy)
	return last
}

// WithFallback serves primary when gate succeeded and secondary otherwise.
// Once the gate has passed a primary failure is returned as is; there is no
// fallback after the primary branch was chosen.
func WithFallback[G, T any](gate Result[G], primary, secondary func() Result[T]) Result[T] {
	if gate.Ok() {
		return primary()
	}
	return secondary()
}
