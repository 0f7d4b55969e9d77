package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/handlepay/handlepay-cctp/types"
)

func Fee(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fee",
		Short:   "Quote the maximum CCTP fee for a transfer",
		Example: `  handlepay-cctp fee --from base --to ethereum --amount 100 --finality fast`,

		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.InitAppState()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			flags := cmd.Flags()

			s, err := NewServices(ctx, a, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			from, _ := flags.GetString(flagFrom)
			to, _ := flags.GetString(flagTo)
			src, err := s.Registry.Describe(from)
			if err != nil {
				return err
			}
			dst, err := s.Registry.Describe(to)
			if err != nil {
				return err
			}

			amountFlag, _ := flags.GetString(flagAmount)
			amount, err := types.ParseUSDC(amountFlag)
			if err != nil {
				return err
			}
			finalityFlag, _ := flags.GetString(flagFinality)
			finality, err := types.ParseFinality(finalityFlag)
			if err != nil {
				return err
			}

			bps, err := s.Fees.MinimumFeeBps(ctx, src.Domain, dst.Domain, finality)
			if err != nil {
				return err
			}
			maxFee, err := s.Fees.EstimateMaxFeeForFinality(ctx, src.Domain, dst.Domain, amount, finality)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s): %s bps, max fee %s USDC on %s USDC\n",
				src.Key, dst.Key, finality, bps.String(), types.FormatUSDC(maxFee), types.FormatUSDC(amount))
			return nil
		},
	}
	return addRouteFlags(cmd)
}
