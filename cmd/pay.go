package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/handlepay/handlepay-cctp/types"
)

func Pay(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Send USDC to an address or social handle, bridging with CCTP when the chains differ",
		Example: `  handlepay-cctp pay --from base --to ethereum --amount 2.5 --handle twitter:@alice
  handlepay-cctp pay --from base --to base --amount 10 --recipient 0x742D35CC6634c0532925A3b844BC9E7595F0BEb0`,

		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.InitAppState()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := NewServices(ctx, a, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			router, err := s.RequireRouter()
			if err != nil {
				return err
			}

			order, err := orderFromFlags(ctx, cmd, s.Handles)
			if err != nil {
				return err
			}

			outcome, err := router.Pay(ctx, order)
			if err != nil {
				if outcome != nil && outcome.Receipt != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "transfer %s on %s did not confirm\n", outcome.Receipt.TxHash.Hex(), outcome.Receipt.Chain)
				}
				return err
			}

			if outcome.Receipt != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "sent %s USDC to %s on %s: %s\n",
					types.FormatUSDC(outcome.Receipt.Amount), outcome.Receipt.Recipient.Hex(), outcome.Receipt.Chain, outcome.Receipt.TxHash.Hex())
				return nil
			}

			last := follow(cmd.OutOrStdout(), outcome.Updates)
			if err := transferResult(last); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "burn %s minted in %s\n", last.BurnTxHash.Hex(), last.MintTxHash.Hex())
			return nil
		},
	}
	return addTransferFlags(cmd)
}
