package ethereum

import (
	"context"
	"fmt"
	"sync"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/handlepay/handlepay-cctp/types"
)

// ClientPool shares one RPC client per chain across transfers.
type ClientPool struct {
	mu      sync.Mutex
	clients map[string]*ethclient.Client
	logger  log.Logger
}

func NewClientPool(logger log.Logger) *ClientPool {
	return &ClientPool{
		clients: make(map[string]*ethclient.Client),
		logger:  logger.With("component", "rpc-pool"),
	}
}

// Client returns the pooled client for chain, dialing it on first use.
func (p *ClientPool) Client(ctx context.Context, chain *types.ChainDescriptor) (*ethclient.Client, error) {
	return p.dial(ctx, chain.Key, chain.RPC)
}

// StreamClient returns a websocket client when the chain has one configured, for log subscriptions.
func (p *ClientPool) StreamClient(ctx context.Context, chain *types.ChainDescriptor) (*ethclient.Client, error) {
	if chain.WS == "" {
		return p.Client(ctx, chain)
	}
	return p.dial(ctx, chain.Key+"/ws", chain.WS)
}

func (p *ClientPool) dial(ctx context.Context, key, url string) (*ethclient.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[key]; ok {
		return c, nil
	}

	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to dial %s rpc: %w: %v", key, types.ErrRPC, err)
	}
	p.logger.Debug("Dialed rpc", "chain", key)
	p.clients[key] = c
	return c, nil
}

func (p *ClientPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, c := range p.clients {
		c.Close()
		delete(p.clients, key)
	}
}
