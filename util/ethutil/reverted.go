// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package ethutil

import (
	"errors"
	"regexp"

	"github.com/ethereum/go-ethereum/rpc"
)

// Execution clients disagree on the wording: geth says "execution reverted",
// besu capitalizes it and nethermind reports "VM execution error.".
var executionRevertedRegexp = regexp.MustCompile(`(?i)execution reverted|VM execution error\.?`)

// JSON-RPC error code for a reverted call.
const executionRevertedCode = 3

// IsExecutionReverted reports whether err is the chain rejecting a call or
// transaction rather than a transport failure.
func IsExecutionReverted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTxFailed) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == executionRevertedCode {
		return true
	}
	return executionRevertedRegexp.MatchString(err.Error())
}
