// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/OffchainLabs/nitro/blob/master/LICENSE.md

package ethutil

import (
	"errors"
	"fmt"
	"io"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestExecutionReverted(t *testing.T) {
	executionRevertedErrors := []string{
		"execution reverted",
		"execution reverted: FOO",
		"Execution reverted",
		"VM execution error.",
	}
	for _, errString := range executionRevertedErrors {
		if !IsExecutionReverted(errors.New(errString)) {
			t.Fatalf("execution reverted regexp didn't match %q", errString)
		}
	}
	if IsExecutionReverted(errors.New(io.ErrUnexpectedEOF.Error())) {
		t.Fatal("execution reverted regexp matched unexpected EOF")
	}
	if IsExecutionReverted(nil) {
		t.Fatal("nil error matched")
	}
	if !IsExecutionReverted(&executionRevertedError{}) {
		t.Fatal("execution reverted error didn't match")
	}
	if !IsExecutionReverted(fmt.Errorf("submitting batch: %w", &executionRevertedError{})) {
		t.Fatal("wrapped execution reverted error didn't match")
	}
	if !IsExecutionReverted(pkgerrors.Wrap(ErrTxFailed, "tx 0x01")) {
		t.Fatal("failed receipt didn't match")
	}
}

type executionRevertedError struct{}

func (e *executionRevertedError) ErrorCode() int { return 3 }

func (e *executionRevertedError) Error() string {
	return "executionRevertedError"
}
