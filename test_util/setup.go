package testutil

import (
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"github.com/handlepay/handlepay-cctp/cmd"
	"github.com/handlepay/handlepay-cctp/types"
)

// CCTP v2 testnet deployments
const (
	TokenMessengerV2Testnet     = "0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA"
	MessageTransmitterV2Testnet = "0xE737e5cEBEEBa77EFE34D4aa090756590b1CE275"
)

// GetEnvOrDefault returns the environment variable value or a default if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func init() {
	// Try to load .env file if it exists
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("../.env")
	}
}

// ConfigSetup returns an AppState with a sepolia / base-sepolia config and a quiet logger.
func ConfigSetup(t *testing.T) (a *cmd.AppState, registry *types.ChainRegistry) {
	t.Helper()

	var testConfig = types.Config{
		Chains: map[string]types.ChainEntry{
			"ethereum": {
				ChainID:            11155111,
				Domain:             types.Domain(0),
				RPC:                GetEnvOrDefault("SEPOLIA_RPC", "https://ethereum-sepolia-rpc.publicnode.com"),
				WS:                 GetEnvOrDefault("SEPOLIA_WS", "wss://ethereum-sepolia-rpc.publicnode.com"),
				Asset:              "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
				TokenMessenger:     TokenMessengerV2Testnet,
				MessageTransmitter: MessageTransmitterV2Testnet,
				MinAmount:          1,
			},
			"base": {
				ChainID:            84532,
				Domain:             types.Domain(6),
				RPC:                GetEnvOrDefault("BASE_SEPOLIA_RPC", "https://sepolia.base.org"),
				Asset:              "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
				TokenMessenger:     TokenMessengerV2Testnet,
				MessageTransmitter: MessageTransmitterV2Testnet,
			},
		},
		Circle: types.CircleSettings{
			AttestationBaseURL: types.IrisSandbox,
			APIVersion:         "v2",
			PollInterval:       types.DefaultPollInterval,
		},

		EnabledRoutes: map[types.Domain][]types.Domain{
			0: {6},
			6: {0},
		},
		ProcessorWorkerCount: 1,
		RecoverySchedule:     "@every 1m",
	}
	require.NoError(t, testConfig.Validate())

	a = cmd.NewAppState()
	a.LogLevel = "error"
	a.InitLogger()
	a.Config = &testConfig

	registry, err := testConfig.ChainRegistry()
	require.NoError(t, err, "Error creating chain registry")

	return a, registry
}
