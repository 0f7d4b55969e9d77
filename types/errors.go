package types

import (
	"context"
	"errors"
)

// Configuration errors. Raised before anything is submitted on chain.
var (
	ErrUnknownChain        = errors.New("unknown chain")
	ErrAssetNotConfigured  = errors.New("asset not configured")
	ErrMissingHookReceiver = errors.New("hook receiver not configured")
	ErrRouteDisabled       = errors.New("route disabled")
	ErrInvalidRequest      = errors.New("invalid transfer request")
)

// Resolution errors.
var (
	ErrHandleNotFound = errors.New("handle not found")
	ErrMemberInactive = errors.New("member inactive")
)

var (
	ErrFeeServiceUnavailable = errors.New("fee service unavailable")
	ErrAmountTooLow          = errors.New("amount below minimum")
	ErrInsufficientBalance   = errors.New("insufficient balance")

	// ErrRelayerMismatch means the message's destination caller does not match the finalize path.
	ErrRelayerMismatch = errors.New("relayer mismatch")
	ErrChainMismatch   = errors.New("active chain mismatch")

	ErrReverted        = errors.New("transaction reverted")
	ErrAlreadyExecuted = errors.New("message already executed")
	ErrRPC             = errors.New("rpc error")
	ErrTimeout         = errors.New("timed out")
)

var errorTags = []struct {
	err error
	tag string
}{
	{ErrUnknownChain, "UnknownChain"},
	{ErrAssetNotConfigured, "AssetNotConfigured"},
	{ErrMissingHookReceiver, "MissingHookReceiver"},
	{ErrRouteDisabled, "RouteDisabled"},
	{ErrInvalidRequest, "InvalidRequest"},
	{ErrHandleNotFound, "HandleNotFound"},
	{ErrMemberInactive, "MemberInactive"},
	{ErrFeeServiceUnavailable, "FeeServiceUnavailable"},
	{ErrAmountTooLow, "AmountTooLow"},
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrRelayerMismatch, "RelayerMismatch"},
	{ErrChainMismatch, "ChainMismatch"},
	{ErrAlreadyExecuted, "AlreadyExecuted"},
	{ErrReverted, "Reverted"},
	{ErrTimeout, "Timeout"},
	{context.DeadlineExceeded, "Timeout"},
	{context.Canceled, "Cancelled"},
	{ErrRPC, "RpcError"},
}

// Tag returns the taxonomy tag for err, or "Unknown" when err wraps none of the sentinels.
func Tag(err error) string {
	if err == nil {
		return ""
	}
	for _, t := range errorTags {
		if errors.Is(err, t.err) {
			return t.tag
		}
	}
	return "Unknown"
}

// IsConfigError reports whether err is a configuration error that must never be retried automatically.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrUnknownChain) ||
		errors.Is(err, ErrAssetNotConfigured) ||
		errors.Is(err, ErrMissingHookReceiver) ||
		errors.Is(err, ErrRouteDisabled)
}
