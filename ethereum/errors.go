package ethereum

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/handlepay/handlepay-cctp/types"
)

// revert reasons the transmitters use for a message that was already received
var alreadyExecutedReasons = []string{
	"already executed",
	"nonce already used",
	"already processed",
	"message already received",
}

var revertMarkers = []string{
	"execution reverted",
	"reverted",
	"revert",
}

// RevertReason extracts a readable reason from a JSON-RPC error, decoding Error(string) data when present.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := dataErr.ErrorData().(string); ok {
			if raw, decodeErr := hexutil.Decode(data); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return reason
				}
			}
		}
	}
	return err.Error()
}

// IsAlreadyExecuted reports whether the error text names a consumed message nonce.
func IsAlreadyExecuted(reason string) bool {
	lower := strings.ToLower(reason)
	for _, r := range alreadyExecutedReasons {
		if strings.Contains(lower, r) {
			return true
		}
	}
	return false
}

// classifyError wraps an RPC error with the matching sentinel.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	reason := RevertReason(err)
	if IsAlreadyExecuted(reason) {
		return fmt.Errorf("%s: %w: %w: %s", op, types.ErrReverted, types.ErrAlreadyExecuted, reason)
	}

	lower := strings.ToLower(reason)
	for _, m := range revertMarkers {
		if strings.Contains(lower, m) {
			return fmt.Errorf("%s: %w: %s", op, types.ErrReverted, reason)
		}
	}
	if strings.Contains(lower, "insufficient funds") {
		return fmt.Errorf("%s: %w: %s", op, types.ErrInsufficientBalance, reason)
	}
	return fmt.Errorf("%s: %w: %v", op, types.ErrRPC, err)
}
