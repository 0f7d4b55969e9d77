package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"cosmossdk.io/log"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/handlepay/handlepay-cctp/types"
)

const envPrefix = "handlepay"

var defaultConfigPath = filepath.Join(os.Getenv("HOME"), ".handlepay-cctp", "config.yaml")

// AppState is the modifiable state of the application.
type AppState struct {
	Config *types.Config

	ConfigPath string

	// Debug overrides LogLevel
	Debug bool

	LogLevel string

	Logger log.Logger
}

func NewAppState() *AppState {
	return &AppState{}
}

// InitAppState checks if a logger and config are present. If not, it adds them to the AppState
func (a *AppState) InitAppState() {
	if a.Logger == nil {
		a.InitLogger()
	}
	if a.Config == nil {
		if err := a.loadConfig(); err != nil {
			a.Logger.Error("Unable to load config", "path", a.ConfigPath, "error", err)
			os.Exit(1)
		}
	}
}

func (a *AppState) InitLogger() {
	// info level is default
	level := zerolog.InfoLevel
	switch a.LogLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	// a.Debug overrides a.LogLevel
	if a.Debug {
		a.Logger = log.NewLogger(os.Stdout, log.LevelOption(zerolog.DebugLevel))
	} else {
		a.Logger = log.NewLogger(os.Stdout, log.LevelOption(level))
	}
}

// loadConfig layers the config file over DefaultConfig, then .env and HANDLEPAY_* variables.
// A missing file at the default path is not an error.
func (a *AppState) loadConfig() error {
	cfg, err := LoadConfig(a.ConfigPath, a.ConfigPath != defaultConfigPath)
	if err != nil {
		return err
	}
	a.Config = cfg
	return nil
}

func LoadConfig(path string, required bool) (*types.Config, error) {
	cfg := types.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error unmarshalling config: %w", err)
			}
		case os.IsNotExist(err) && !required:
		default:
			return nil, fmt.Errorf("error reading file: %w", err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
