package types

import "time"

const (
	TokenMessengerV2     = "0x28b5a0e9C621a5BadaA536219b3a228C8168cf5d"
	MessageTransmitterV2 = "0x81D40F21F12A8F0E3252Bccb954D722d4c464B64"

	IrisMainnet = "https://iris-api.circle.com"
	IrisSandbox = "https://iris-api-sandbox.circle.com"

	HandleRegistryBase = "0x132727D74dF3246b64046598626415258dc648f0"

	DefaultPollInterval = 5 * time.Second
)

// DefaultConfig is the mainnet CCTP v2 table. A config file overrides any of it.
func DefaultConfig() *Config {
	chain := func(chainID int64, domain Domain, rpc, usdc string) ChainEntry {
		return ChainEntry{
			ChainID:            chainID,
			Domain:             domain,
			RPC:                rpc,
			Asset:              usdc,
			TokenMessenger:     TokenMessengerV2,
			MessageTransmitter: MessageTransmitterV2,
		}
	}

	cfg := &Config{
		Chains: map[string]ChainEntry{
			"ethereum":  chain(1, 0, "https://eth.llamarpc.com", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
			"avalanche": chain(43114, 1, "https://api.avax.network/ext/bc/C/rpc", "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E"),
			"op":        chain(10, 2, "https://mainnet.optimism.io", "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"),
			"arbitrum":  chain(42161, 3, "https://arb1.arbitrum.io/rpc", "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"),
			"base":      chain(8453, 6, "https://mainnet.base.org", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
			"polygon":   chain(137, 7, "https://polygon-bor.publicnode.com", "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"),
			"linea":     chain(59144, 11, "https://rpc.linea.build", "0x176211869cA2b568f2A7D4EE941E073a821EE1ff"),
		},
		Circle: CircleSettings{
			AttestationBaseURL: IrisMainnet,
			APIVersion:         "v2",
			PollInterval:       DefaultPollInterval,
			RequestTimeout:     5 * time.Second,
			RequestsPerSecond:  10,
			BreakerFailures:    5,
		},
		Registry: RegistrySettings{
			Chain:      "base",
			Address:    HandleRegistryBase,
			Strategies: []string{"registry"},
		},
		ProcessorWorkerCount: 4,
		RecoverySchedule:     "@every 1m",
	}
	cfg.API.Address = "localhost:8000"
	return cfg
}
