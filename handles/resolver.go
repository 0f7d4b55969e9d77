package handles

import (
	"context"
	"errors"
	"fmt"

	"cosmossdk.io/log"
	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"

	cctpeth "github.com/handlepay/handlepay-cctp/ethereum"
	"github.com/handlepay/handlepay-cctp/relayer"
	"github.com/handlepay/handlepay-cctp/types"
)

// Strategy is one way of looking a handle up.
type Strategy interface {
	types.HandleResolver
	Name() string
}

// Chain tries strategies in order. Not-found falls through to the next one; any other error stops the lookup.
type Chain struct {
	strategies []Strategy
	logger     log.Logger
	metrics    *relayer.PromMetrics
}

var _ types.HandleResolver = (*Chain)(nil)

func NewChain(logger log.Logger, metrics *relayer.PromMetrics, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, logger: logger, metrics: metrics}
}

func (c *Chain) Resolve(ctx context.Context, platform, username string) (*types.HandleBinding, error) {
	if len(Candidates(username)) == 0 || NormalizePlatform(platform) == "" {
		return nil, fmt.Errorf("%w: empty handle", types.ErrInvalidRequest)
	}

	lastErr := fmt.Errorf("%w: no resolver configured", types.ErrHandleNotFound)
	for _, s := range c.strategies {
		binding, err := s.Resolve(ctx, platform, username)
		if err == nil {
			if verr := ethav.Validate(binding.Wallet.Hex()); verr != nil {
				c.metrics.IncHandleResolution(s.Name(), "invalid")
				return nil, fmt.Errorf("%w: resolved wallet %s: %v", types.ErrHandleNotFound, binding.Wallet.Hex(), verr)
			}
			c.metrics.IncHandleResolution(s.Name(), "found")
			return binding, nil
		}
		if !errors.Is(err, types.ErrHandleNotFound) {
			c.metrics.IncHandleResolution(s.Name(), types.Tag(err))
			return nil, err
		}
		c.metrics.IncHandleResolution(s.Name(), "not_found")
		c.logger.Debug("Handle not found, trying next strategy", "strategy", s.Name(), "platform", platform, "username", username)
		lastErr = err
	}
	return nil, lastErr
}

// NewFromConfig builds the configured strategy chain. The returned Index is non-nil when the
// index strategy is enabled and must be started by the caller.
func NewFromConfig(
	ctx context.Context,
	cfg types.RegistrySettings,
	registry *types.ChainRegistry,
	pool *cctpeth.ClientPool,
	logger log.Logger,
	metrics *relayer.PromMetrics,
) (*Chain, *Index, error) {
	logger = logger.With("component", "handles")

	var (
		strategies []Strategy
		index      *Index
		members    *RegistryResolver
	)

	onChain := func() (*RegistryResolver, error) {
		if members != nil {
			return members, nil
		}
		if cfg.Address == "" {
			return nil, errors.New("registry address is not configured")
		}
		chain, err := registry.Describe(cfg.Chain)
		if err != nil {
			return nil, err
		}
		client, err := pool.Client(ctx, chain)
		if err != nil {
			return nil, err
		}
		members = NewRegistryResolver(common.HexToAddress(cfg.Address), client, logger)
		return members, nil
	}

	for _, name := range cfg.Strategies {
		switch name {
		case "registry":
			r, err := onChain()
			if err != nil {
				return nil, nil, err
			}
			strategies = append(strategies, r)
		case "subgraph":
			if cfg.SubgraphURL == "" {
				return nil, nil, errors.New("subgraph strategy requires registry.subgraph-url")
			}
			var r *RegistryResolver
			if cfg.Address != "" {
				var err error
				if r, err = onChain(); err != nil {
					return nil, nil, err
				}
			}
			strategies = append(strategies, NewSubgraphResolver(cfg.SubgraphURL, 0, r, logger))
		case "index":
			r, err := onChain()
			if err != nil {
				return nil, nil, err
			}
			index = NewIndex(common.HexToAddress(cfg.Address), cfg.StartBlock, r, logger)
			strategies = append(strategies, index)
		default:
			return nil, nil, fmt.Errorf("unknown handle strategy %q", name)
		}
	}

	return NewChain(logger, metrics, strategies...), index, nil
}
