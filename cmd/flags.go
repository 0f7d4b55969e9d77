package cmd

import (
	"github.com/spf13/cobra"
)

const (
	flagConfigPath     = "config"
	flagVerbose        = "verbose"
	flagLogLevel       = "log-level"
	flagMetricsPort    = "metrics-port"
	flagMetricsAddress = "metrics-address"

	flagFrom      = "from"
	flagTo        = "to"
	flagAmount    = "amount"
	flagRecipient = "recipient"
	flagHandle    = "handle"
	flagFinality  = "finality"
	flagMode      = "mode"
	flagHookData  = "hook-data"
)

func addAppPersistantFlags(cmd *cobra.Command, a *AppState) *cobra.Command {
	cmd.PersistentFlags().StringVar(&a.ConfigPath, flagConfigPath, defaultConfigPath, "Configuration file path")
	cmd.PersistentFlags().BoolVarP(&a.Debug, flagVerbose, "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&a.LogLevel, flagLogLevel, "info", "Log level (debug, info, warn, error)")
	return cmd
}

func addMetricsFlags(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Int16P(flagMetricsPort, "p", 2112, "Customize Prometheus metrics port")
	cmd.Flags().String(flagMetricsAddress, "0.0.0.0", "Customize Prometheus metrics listen address")
	return cmd
}

func addRouteFlags(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String(flagFrom, "", "Source chain key (e.g. base)")
	cmd.Flags().String(flagTo, "", "Destination chain key (e.g. ethereum)")
	cmd.Flags().String(flagAmount, "", "USDC amount in whole units (e.g. 2.5)")
	cmd.Flags().String(flagFinality, "standard", "Finality threshold: fast or standard")
	return cmd
}

func addTransferFlags(cmd *cobra.Command) *cobra.Command {
	addRouteFlags(cmd)
	cmd.Flags().String(flagRecipient, "", "Recipient EVM address")
	cmd.Flags().String(flagHandle, "", "Recipient social handle as platform:username (e.g. twitter:@alice)")
	cmd.Flags().String(flagMode, "direct", "Finalize mode: direct or hook")
	cmd.Flags().String(flagHookData, "", "Hex encoded hook payload (hook mode only)")
	return cmd
}
