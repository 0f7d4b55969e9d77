package types

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

type Domain uint32

// ChainDescriptor is the immutable address table of one chain.
type ChainDescriptor struct {
	Key                string
	ChainID            int64 // native EVM chain id
	Domain             Domain
	RPC                string
	WS                 string
	Asset              common.Address // USDC
	TokenMessenger     common.Address // bridge sender
	MessageTransmitter common.Address // bridge receiver
	HookReceiver       common.Address // zero when the chain has no hook receiver deployed
	MinAmount          uint64
}

func (c *ChainDescriptor) HasHookReceiver() bool {
	return c.HookReceiver != (common.Address{})
}

func (c *ChainDescriptor) String() string {
	return fmt.Sprintf("%s(domain=%d)", c.Key, c.Domain)
}

// ChainRegistry resolves chain keys to descriptors. It performs no I/O.
type ChainRegistry struct {
	chains   map[string]*ChainDescriptor
	byDomain map[Domain]*ChainDescriptor
}

// NewChainRegistry builds a registry from descriptors. Keys and domains must be unique.
func NewChainRegistry(chains ...*ChainDescriptor) (*ChainRegistry, error) {
	r := &ChainRegistry{
		chains:   make(map[string]*ChainDescriptor, len(chains)),
		byDomain: make(map[Domain]*ChainDescriptor, len(chains)),
	}
	for _, c := range chains {
		if _, ok := r.chains[c.Key]; ok {
			return nil, fmt.Errorf("duplicate chain key=%s", c.Key)
		}
		if other, ok := r.byDomain[c.Domain]; ok {
			return nil, fmt.Errorf("duplicate domain found domain=%d name=%s other=%s", c.Domain, c.Key, other.Key)
		}
		r.chains[c.Key] = c
		r.byDomain[c.Domain] = c
	}
	return r, nil
}

func (r *ChainRegistry) Describe(key string) (*ChainDescriptor, error) {
	c, ok := r.chains[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChain, key)
	}
	return c, nil
}

func (r *ChainRegistry) RequireAsset(key string) (common.Address, error) {
	c, err := r.Describe(key)
	if err != nil {
		return common.Address{}, err
	}
	if c.Asset == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: chain %s", ErrAssetNotConfigured, key)
	}
	return c.Asset, nil
}

func (r *ChainRegistry) RequireHookReceiver(key string) (common.Address, error) {
	c, err := r.Describe(key)
	if err != nil {
		return common.Address{}, err
	}
	if !c.HasHookReceiver() {
		return common.Address{}, fmt.Errorf("%w: chain %s", ErrMissingHookReceiver, key)
	}
	return c.HookReceiver, nil
}

func (r *ChainRegistry) ByDomain(domain Domain) (*ChainDescriptor, error) {
	c, ok := r.byDomain[domain]
	if !ok {
		return nil, fmt.Errorf("%w: domain %d", ErrUnknownChain, domain)
	}
	return c, nil
}

// Keys returns the configured chain keys in sorted order.
func (r *ChainRegistry) Keys() []string {
	keys := make([]string, 0, len(r.chains))
	for k := range r.chains {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateRequest checks the chain pair and the fields the mode needs. It never touches the network.
func (r *ChainRegistry) ValidateRequest(req *TransferRequest) error {
	if req.Source == nil || req.Destination == nil {
		return fmt.Errorf("%w: source and destination chains are required", ErrInvalidRequest)
	}
	if _, err := r.RequireAsset(req.Source.Key); err != nil {
		return err
	}
	if _, err := r.Describe(req.Destination.Key); err != nil {
		return err
	}
	if req.Mode == ModeHook {
		if _, err := r.RequireHookReceiver(req.Destination.Key); err != nil {
			return err
		}
	}
	return req.Validate()
}

// Wallet is the signing provider: it holds the authorizing key and the active network context.
// Transactions always target the active chain.
type Wallet interface {
	Address() common.Address
	ActiveChain() *ChainDescriptor
	// SwitchChain binds the wallet to chain and confirms the RPC reports the expected chain id.
	SwitchChain(ctx context.Context, chain *ChainDescriptor) error
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	Transact(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// AssetClient covers the ERC20 calls the payment paths need.
type AssetClient interface {
	BalanceOf(ctx context.Context, w Wallet, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, w Wallet, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, w Wallet, token, spender common.Address, amount *big.Int) (common.Hash, error)
	Transfer(ctx context.Context, w Wallet, token, to common.Address, amount *big.Int) (common.Hash, error)
}
