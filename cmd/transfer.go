package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/handlepay/handlepay-cctp/orchestrator"
	"github.com/handlepay/handlepay-cctp/types"
)

// orderFromFlags builds a payment order. A --handle is resolved to its wallet.
func orderFromFlags(ctx context.Context, cmd *cobra.Command, resolver types.HandleResolver) (orchestrator.PaymentOrder, error) {
	var order orchestrator.PaymentOrder
	flags := cmd.Flags()

	order.SourceChain, _ = flags.GetString(flagFrom)
	order.DestinationChain, _ = flags.GetString(flagTo)
	if order.SourceChain == "" || order.DestinationChain == "" {
		return order, fmt.Errorf("%w: --%s and --%s are required", types.ErrInvalidRequest, flagFrom, flagTo)
	}

	amount, _ := flags.GetString(flagAmount)
	units, err := types.ParseUSDC(amount)
	if err != nil {
		return order, err
	}
	order.Amount = units

	finality, _ := flags.GetString(flagFinality)
	if order.Finality, err = types.ParseFinality(finality); err != nil {
		return order, err
	}

	mode, _ := flags.GetString(flagMode)
	if order.Mode, err = types.ParseMode(mode); err != nil {
		return order, err
	}
	hookData, _ := flags.GetString(flagHookData)
	if hookData != "" {
		if order.HookPayload, err = hex.DecodeString(strings.TrimPrefix(hookData, "0x")); err != nil {
			return order, fmt.Errorf("%w: hook data is not hex: %v", types.ErrInvalidRequest, err)
		}
	}

	recipient, _ := flags.GetString(flagRecipient)
	handle, _ := flags.GetString(flagHandle)
	order.Recipient, err = recipientAddress(ctx, resolver, recipient, handle)
	return order, err
}

// recipientAddress parses an explicit address or resolves a platform:username handle.
func recipientAddress(ctx context.Context, resolver types.HandleResolver, recipient, handle string) (common.Address, error) {
	switch {
	case recipient != "" && handle != "":
		return common.Address{}, fmt.Errorf("%w: give a recipient address or a handle, not both", types.ErrInvalidRequest)
	case recipient != "":
		if !common.IsHexAddress(recipient) || ethav.Validate(recipient) != nil {
			return common.Address{}, fmt.Errorf("%w: invalid recipient address %q", types.ErrInvalidRequest, recipient)
		}
		return common.HexToAddress(recipient), nil
	case handle != "":
		platform, username, ok := strings.Cut(handle, ":")
		if !ok {
			return common.Address{}, fmt.Errorf("%w: handle must be platform:username", types.ErrInvalidRequest)
		}
		binding, err := resolver.Resolve(ctx, platform, username)
		if err != nil {
			return common.Address{}, err
		}
		return binding.Wallet, nil
	default:
		return common.Address{}, fmt.Errorf("%w: a recipient address or handle is required", types.ErrInvalidRequest)
	}
}

// follow prints each distinct status line and returns the last state.
func follow(out io.Writer, updates <-chan types.TransferState) types.TransferState {
	var last types.TransferState
	for s := range updates {
		if s.Phase != last.Phase || s.Status != last.Status {
			fmt.Fprintf(out, "[%s] %s\n", s.Phase, s.Status)
		}
		last = s
	}
	return last
}

func transferResult(last types.TransferState) error {
	switch last.Phase {
	case types.PhaseComplete:
		return nil
	case types.PhaseFailed:
		if last.Resumable() {
			return fmt.Errorf("transfer failed (%s): %s; resume with burn tx %s", last.ErrorTag, last.LastError, last.BurnTxHash.Hex())
		}
		return fmt.Errorf("transfer failed (%s): %s", last.ErrorTag, last.LastError)
	default:
		return fmt.Errorf("transfer interrupted in %s (%s); resume with burn tx %s", last.Phase, last.ErrorTag, last.BurnTxHash.Hex())
	}
}
