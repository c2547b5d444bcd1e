// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package ethutil

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ReceiptBackend is the part of an RPC client needed to wait for receipts.
// *ethclient.Client satisfies it.
type ReceiptBackend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// ErrTxFailed is returned by WaitForTx when the transaction was mined with a
// failed status.
var ErrTxFailed = errors.New("transaction failed on chain")

// WaitForTx waits for a transaction to be mined and returns its receipt.
// New heads are used as a wakeup when the backend supports subscriptions,
// otherwise the receipt is polled at pollInterval. A mined but failed
// transaction returns its receipt together with ErrTxFailed.
func WaitForTx(ctx context.Context, backend ReceiptBackend, tx *types.Transaction, pollInterval time.Duration) (*types.Receipt, error) {
	heads := make(chan *types.Header, 1)
	sub, subErr := backend.SubscribeNewHead(ctx, heads)
	var receipt *types.Receipt
	var err error
	if subErr != nil {
		receipt, err = pollForReceipt(ctx, backend, tx, pollInterval)
	} else {
		defer sub.Unsubscribe()
		receipt, err = waitOnHeads(ctx, backend, tx, sub, heads)
	}
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, errors.Wrapf(ErrTxFailed, "tx %v", tx.Hash())
	}
	return receipt, nil
}

func waitOnHeads(ctx context.Context, backend ReceiptBackend, tx *types.Transaction, sub ethereum.Subscription, heads <-chan *types.Header) (*types.Receipt, error) {
	for {
		receipt, err := backend.TransactionReceipt(ctx, tx.Hash())
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-sub.Err():
			if err != nil {
				return nil, fmt.Errorf("head subscription error while waiting for tx: %w", err)
			}
			return nil, errors.New("head subscription closed unexpectedly")
		case <-heads:
		}
	}
}

func pollForReceipt(ctx context.Context, backend ReceiptBackend, tx *types.Transaction, pollInterval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := backend.TransactionReceipt(ctx, tx.Hash())
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
