package types

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

type Config struct {
	Chains        map[string]ChainEntry `yaml:"chains" validate:"required,min=1,dive" ignored:"true"`
	EnabledRoutes map[Domain][]Domain   `yaml:"enabled-routes" ignored:"true"`
	Circle        CircleSettings        `yaml:"circle"`
	Registry      RegistrySettings      `yaml:"registry"`
	Redis         RedisSettings         `yaml:"redis"`
	Filters       []FilterConfig        `yaml:"filters" ignored:"true"`

	ProcessorWorkerCount uint32 `yaml:"processor-worker-count"`
	RecoverySchedule     string `yaml:"recovery-schedule"`
	API                  struct {
		Address        string   `yaml:"address"`
		TrustedProxies []string `yaml:"trusted-proxies" ignored:"true"`
	} `yaml:"api"`

	// PrivateKey is never read from the config file.
	PrivateKey string `yaml:"-" envconfig:"PRIVATE_KEY"`
}

type ChainEntry struct {
	ChainID            int64  `yaml:"chain-id" validate:"required,gt=0"`
	Domain             Domain `yaml:"domain"`
	RPC                string `yaml:"rpc" validate:"required,url"`
	WS                 string `yaml:"ws" validate:"omitempty,url"`
	Asset              string `yaml:"asset" validate:"omitempty,eth_addr"`
	TokenMessenger     string `yaml:"token-messenger" validate:"required,eth_addr"`
	MessageTransmitter string `yaml:"message-transmitter" validate:"required,eth_addr"`
	HookReceiver       string `yaml:"hook-receiver" validate:"omitempty,eth_addr"`
	MinAmount          uint64 `yaml:"min-amount"`
}

func (c ChainEntry) Descriptor(key string) *ChainDescriptor {
	d := &ChainDescriptor{
		Key:                key,
		ChainID:            c.ChainID,
		Domain:             c.Domain,
		RPC:                c.RPC,
		WS:                 c.WS,
		TokenMessenger:     common.HexToAddress(c.TokenMessenger),
		MessageTransmitter: common.HexToAddress(c.MessageTransmitter),
		MinAmount:          c.MinAmount,
	}
	if c.Asset != "" {
		d.Asset = common.HexToAddress(c.Asset)
	}
	if c.HookReceiver != "" {
		d.HookReceiver = common.HexToAddress(c.HookReceiver)
	}
	return d
}

type CircleSettings struct {
	AttestationBaseURL string        `yaml:"attestation-base-url" validate:"required,url"`
	APIVersion         string        `yaml:"api-version"`
	PollInterval       time.Duration `yaml:"poll-interval"`
	MaxAttestationWait time.Duration `yaml:"max-attestation-wait"` // zero waits until cancelled
	RequestTimeout     time.Duration `yaml:"request-timeout"`
	RequestsPerSecond  float64       `yaml:"requests-per-second" validate:"gte=0"`
	BreakerFailures    uint32        `yaml:"breaker-failures"`

	// V2/Fast Transfer settings
	EnableFastTransferMonitoring bool          `yaml:"enable-fast-transfer-monitoring"`
	AllowanceMonitorInterval     time.Duration `yaml:"allowance-monitor-interval"`
	ReattestMaxRetries           int           `yaml:"reattest-max-retries"`
	ExpirationBufferBlocks       int           `yaml:"expiration-buffer-blocks"`
}

// GetAPIVersion returns the parsed API version
func (c *CircleSettings) GetAPIVersion() (APIVersion, error) {
	return ParseAPIVersion(c.APIVersion)
}

// Validate checks the cross-field rules struct tags cannot express.
func (c *CircleSettings) Validate() error {
	version, err := c.GetAPIVersion()
	if err != nil {
		return fmt.Errorf("invalid api-version: %w", err)
	}
	if c.PollInterval < 0 || c.MaxAttestationWait < 0 {
		return fmt.Errorf("poll-interval and max-attestation-wait cannot be negative")
	}

	if version == APIVersionV2 {
		if c.EnableFastTransferMonitoring && c.AllowanceMonitorInterval <= 0 {
			return fmt.Errorf("allowance-monitor-interval must be positive when enable-fast-transfer-monitoring is true")
		}
		if c.ReattestMaxRetries < 0 {
			return fmt.Errorf("reattest-max-retries cannot be negative")
		}
		if c.ExpirationBufferBlocks < 0 {
			return fmt.Errorf("expiration-buffer-blocks cannot be negative")
		}
	}

	if version == APIVersionV1 {
		if c.EnableFastTransferMonitoring {
			return fmt.Errorf("enable-fast-transfer-monitoring requires api-version: v2")
		}
		if c.ReattestMaxRetries > 0 {
			return fmt.Errorf("reattest-max-retries requires api-version: v2")
		}
	}

	return nil
}

type RegistrySettings struct {
	Chain       string   `yaml:"chain"`
	Address     string   `yaml:"address" validate:"omitempty,eth_addr"`
	SubgraphURL string   `yaml:"subgraph-url" validate:"omitempty,url"`
	StartBlock  uint64   `yaml:"start-block"`
	Strategies  []string `yaml:"strategies" validate:"dive,oneof=registry subgraph index" ignored:"true"`
}

type RedisSettings struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key-prefix"`
}

type FilterConfig struct {
	Name    string                 `yaml:"name"`
	Enabled bool                   `yaml:"enabled"`
	Config  map[string]interface{} `yaml:"config"`
}

// Validate runs struct tag validation and the settings' own rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Circle.Validate(); err != nil {
		return err
	}
	if c.Registry.Chain != "" {
		if _, ok := c.Chains[c.Registry.Chain]; !ok {
			return fmt.Errorf("registry chain %q is not configured", c.Registry.Chain)
		}
	}
	return nil
}

// ChainRegistry builds the immutable registry from the chains section.
func (c *Config) ChainRegistry() (*ChainRegistry, error) {
	descriptors := make([]*ChainDescriptor, 0, len(c.Chains))
	for key, entry := range c.Chains {
		descriptors = append(descriptors, entry.Descriptor(key))
	}
	return NewChainRegistry(descriptors...)
}
