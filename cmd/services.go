package cmd

import (
	"context"
	"errors"
	"fmt"

	"cosmossdk.io/log"

	"github.com/handlepay/handlepay-cctp/circle"
	"github.com/handlepay/handlepay-cctp/ethereum"
	"github.com/handlepay/handlepay-cctp/filters"
	"github.com/handlepay/handlepay-cctp/handles"
	"github.com/handlepay/handlepay-cctp/orchestrator"
	"github.com/handlepay/handlepay-cctp/relayer"
	"github.com/handlepay/handlepay-cctp/store"
	"github.com/handlepay/handlepay-cctp/types"
)

var errNoSigner = errors.New("no signing key: set HANDLEPAY_PRIVATE_KEY")

// Services holds the components built from the config. Router is nil when no signing key is configured;
// fee quotes and handle lookups still work.
type Services struct {
	Registry     *types.ChainRegistry
	Pool         *ethereum.ClientPool
	Circle       *circle.Client
	Fees         *circle.FeeEstimator
	Poller       *circle.Poller
	Handles      *handles.Chain
	Index        *handles.Index
	Store        store.CheckpointStore
	Filters      *types.FilterRegistry
	Orchestrator *orchestrator.Orchestrator
	Router       *orchestrator.Router
	Metrics      *relayer.PromMetrics

	logger log.Logger
}

func NewServices(ctx context.Context, a *AppState, metrics *relayer.PromMetrics, opts ...orchestrator.Option) (*Services, error) {
	cfg := a.Config
	logger := a.Logger

	version, err := cfg.Circle.GetAPIVersion()
	if err != nil {
		return nil, err
	}

	registry, err := cfg.ChainRegistry()
	if err != nil {
		return nil, fmt.Errorf("error creating chain registry error=%w", err)
	}

	s := &Services{
		Registry: registry,
		Pool:     ethereum.NewClientPool(logger),
		Circle:   circle.NewClient(cfg.Circle, logger),
		Metrics:  metrics,
		logger:   logger,
	}
	s.Fees = circle.NewFeeEstimator(s.Circle, logger, metrics)
	if s.Poller, err = circle.NewPoller(s.Circle, cfg.Circle, logger, metrics); err != nil {
		return nil, err
	}

	if s.Handles, s.Index, err = handles.NewFromConfig(ctx, cfg.Registry, registry, s.Pool, logger, metrics); err != nil {
		return nil, fmt.Errorf("error creating handle resolver error=%w", err)
	}

	if cfg.Redis.Address != "" {
		redisStore := store.NewRedisStore(cfg.Redis)
		if err := redisStore.Ping(ctx); err != nil {
			return nil, fmt.Errorf("unable to reach redis at %s: %w", cfg.Redis.Address, err)
		}
		s.Store = redisStore
	} else {
		s.Store = store.NewMemoryStore()
	}

	if s.Filters, err = initializeFilters(ctx, cfg, registry, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize filters: %w", err)
	}

	if cfg.PrivateKey == "" {
		logger.Info("No signing key configured; transfers are disabled")
		return s, nil
	}
	key, err := ethereum.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	wallets := ethereum.NewWalletFactory(key, s.Pool, logger)
	assets := &ethereum.ERC20{}

	opts = append([]orchestrator.Option{
		orchestrator.WithFilters(s.Filters),
		orchestrator.WithStore(s.Store),
		orchestrator.WithMetrics(metrics),
	}, opts...)
	if version == types.APIVersionV2 {
		opts = append(opts, orchestrator.WithReattester(circle.NewReattester(s.Circle, cfg.Circle, logger)))
	}

	s.Orchestrator = orchestrator.New(registry, wallets, assets, ethereum.NewBridgeAdapter(version), s.Fees, s.Poller, logger, opts...)
	s.Router = orchestrator.NewRouter(registry, orchestrator.NewSameChainPayer(registry, wallets, assets, logger, metrics), s.Orchestrator)
	return s, nil
}

// RequireRouter returns the router or errNoSigner.
func (s *Services) RequireRouter() (*orchestrator.Router, error) {
	if s.Router == nil {
		return nil, errNoSigner
	}
	return s.Router, nil
}

func (s *Services) Close() {
	if err := s.Filters.Close(); err != nil {
		s.logger.Error("Error closing filter registry", "error", err)
	}
	if closer, ok := s.Store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("Error closing checkpoint store", "error", err)
		}
	}
	s.Pool.Close()
}

// initializeFilters creates and initializes the filter registry with configured filters
func initializeFilters(ctx context.Context, cfg *types.Config, registry *types.ChainRegistry, logger log.Logger) (*types.FilterRegistry, error) {
	filterRegistry := types.NewFilterRegistry(logger)

	// an empty route table enables every pair
	if len(cfg.EnabledRoutes) > 0 {
		routeFilter := filters.NewRouteFilter()
		if err := routeFilter.Initialize(ctx, map[string]interface{}{
			"enabled_routes": cfg.EnabledRoutes,
		}, logger); err != nil {
			return nil, fmt.Errorf("failed to initialize route filter: %w", err)
		}
		filterRegistry.Register(routeFilter)
	}

	lowTransferFilter := filters.NewLowTransferFilter()
	if err := lowTransferFilter.Initialize(ctx, map[string]interface{}{
		"chains": registry,
	}, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize low-transfer filter: %w", err)
	}
	filterRegistry.Register(lowTransferFilter)

	// Register user-configured filters from config
	for _, filterCfg := range cfg.Filters {
		if !filterCfg.Enabled {
			logger.Debug("Skipping disabled filter", "name", filterCfg.Name)
			continue
		}

		var filter types.TransferFilter
		switch filterCfg.Name {
		case "recipient-list":
			filter = filters.NewRecipientListFilter()
		default:
			logger.Info("Unknown filter type, skipping", "name", filterCfg.Name)
			continue
		}

		if err := filter.Initialize(ctx, filterCfg.Config, logger); err != nil {
			return nil, fmt.Errorf("failed to initialize filter %s: %w", filterCfg.Name, err)
		}

		filterRegistry.Register(filter)
		logger.Info("Registered custom filter", "name", filterCfg.Name)
	}

	return filterRegistry, nil
}
