package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func Resolve(a *AppState) *cobra.Command {
	return &cobra.Command{
		Use:     "resolve [platform] [username]",
		Short:   "Look up the wallet registered for a social handle",
		Example: `  handlepay-cctp resolve twitter @alice`,
		Args:    cobra.ExactArgs(2),

		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.InitAppState()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := NewServices(ctx, a, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			binding, err := s.Handles.Resolve(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s:%s -> %s (member %s)\n", binding.Platform, binding.Username, binding.Wallet.Hex(), binding.MemberID)
			return nil
		},
	}
}
