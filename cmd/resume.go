package cmd

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/handlepay/handlepay-cctp/store"
	"github.com/handlepay/handlepay-cctp/types"
)

func Resume(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume [burn-tx-hash]",
		Short: "Resume a cross-chain transfer from its burn transaction",
		Long: `Resume waits for the attestation of an existing burn and mints it on the destination chain.
The transfer is read from the checkpoint store when present; otherwise the route and recipient flags are required.`,
		Example: `  handlepay-cctp resume 0xabc... --from base --to ethereum --amount 2.5 --recipient 0x742d...`,
		Args:    cobra.ExactArgs(1),

		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.InitAppState()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !isHash(args[0]) {
				return fmt.Errorf("%w: %q is not a transaction hash", types.ErrInvalidRequest, args[0])
			}
			burnTxHash := common.HexToHash(args[0])

			s, err := NewServices(ctx, a, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			router, err := s.RequireRouter()
			if err != nil {
				return err
			}

			var req *types.TransferRequest
			cp, err := s.Store.Get(ctx, burnTxHash)
			switch {
			case err == nil:
				if req, err = cp.Request(s.Registry); err != nil {
					return err
				}
			case errors.Is(err, store.ErrNotFound):
				order, err := orderFromFlags(ctx, cmd, s.Handles)
				if err != nil {
					return fmt.Errorf("no checkpoint for %s: %w", burnTxHash.Hex(), err)
				}
				if req, err = router.Request(order); err != nil {
					return err
				}
			default:
				return err
			}

			last := follow(cmd.OutOrStdout(), router.Resume(ctx, burnTxHash, req))
			if err := transferResult(last); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "burn %s complete\n", burnTxHash.Hex())
			return nil
		},
	}
	return addTransferFlags(cmd)
}

func isHash(s string) bool {
	b := common.FromHex(s)
	return len(b) == common.HashLength
}
