package cmd

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	a := NewAppState()

	cmd := &cobra.Command{
		Use:          "handlepay-cctp",
		Short:        "Pay USDC to social handles across chains with Circle CCTP",
		SilenceUsage: true,
	}

	addAppPersistantFlags(cmd, a)

	cmd.AddCommand(
		Pay(a),
		Resume(a),
		Fee(a),
		Resolve(a),
		Start(a),
	)

	return cmd
}
