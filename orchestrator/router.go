package orchestrator

import (
	"context"
	"fmt"
	"math/big"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"

	"github.com/handlepay/handlepay-cctp/relayer"
	"github.com/handlepay/handlepay-cctp/types"
)

// SameChainPayer sends USDC with a single ERC20 transfer when payer and recipient share a chain.
type SameChainPayer struct {
	registry *types.ChainRegistry
	wallets  WalletFactory
	assets   types.AssetClient
	logger   log.Logger
	metrics  *relayer.PromMetrics
}

func NewSameChainPayer(registry *types.ChainRegistry, wallets WalletFactory, assets types.AssetClient, logger log.Logger, metrics *relayer.PromMetrics) *SameChainPayer {
	return &SameChainPayer{
		registry: registry,
		wallets:  wallets,
		assets:   assets,
		logger:   logger.With("component", "same-chain"),
		metrics:  metrics,
	}
}

func (p *SameChainPayer) Pay(ctx context.Context, chain *types.ChainDescriptor, recipient common.Address, amount uint64) (*types.PaymentReceipt, error) {
	if chain == nil {
		return nil, fmt.Errorf("%w: chain is required", types.ErrInvalidRequest)
	}
	token, err := p.registry.RequireAsset(chain.Key)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", types.ErrInvalidRequest)
	}
	if recipient == (common.Address{}) {
		return nil, fmt.Errorf("%w: recipient is the zero address", types.ErrInvalidRequest)
	}

	w := p.wallets.NewWallet()
	if err := w.SwitchChain(ctx, chain); err != nil {
		return nil, err
	}

	value := new(big.Int).SetUint64(amount)
	balance, err := p.assets.BalanceOf(ctx, w, token, w.Address())
	if err != nil {
		return nil, err
	}
	if balance.Cmp(value) < 0 {
		return nil, fmt.Errorf("%w: balance %s USDC is below %s USDC on %s", types.ErrInsufficientBalance,
			types.FormatUSDC(balance.Uint64()), types.FormatUSDC(amount), chain.Key)
	}

	hash, err := p.assets.Transfer(ctx, w, token, recipient, value)
	if err != nil {
		p.metrics.IncBroadcastErrors(chain.Key, "transfer")
		return nil, err
	}
	p.logger.Info("USDC transfer submitted", "chain", chain.Key, "to", recipient.Hex(), "amount", types.FormatUSDC(amount), "tx", hash.Hex())

	receipt := &types.PaymentReceipt{Chain: chain.Key, Recipient: recipient, Amount: amount, TxHash: hash}
	if _, err := w.WaitMined(ctx, hash); err != nil {
		return receipt, err
	}
	receipt.Success = true
	return receipt, nil
}

// PaymentOrder is a payment expressed with chain keys, as received from the CLI or API.
type PaymentOrder struct {
	SourceChain      string
	DestinationChain string
	Recipient        common.Address
	Amount           uint64
	Finality         types.Finality
	Mode             types.Mode
	HookPayload      []byte
}

// Outcome holds either the same-chain receipt or the cross-chain update stream.
type Outcome struct {
	Receipt *types.PaymentReceipt
	Updates <-chan types.TransferState
}

// Router picks the same-chain path when both ends share a domain and the orchestrator otherwise.
type Router struct {
	registry     *types.ChainRegistry
	payer        *SameChainPayer
	orchestrator *Orchestrator
}

func NewRouter(registry *types.ChainRegistry, payer *SameChainPayer, orchestrator *Orchestrator) *Router {
	return &Router{registry: registry, payer: payer, orchestrator: orchestrator}
}

// Request resolves the order's chain keys. It performs no I/O.
func (r *Router) Request(order PaymentOrder) (*types.TransferRequest, error) {
	src, err := r.registry.Describe(order.SourceChain)
	if err != nil {
		return nil, err
	}
	dst, err := r.registry.Describe(order.DestinationChain)
	if err != nil {
		return nil, err
	}
	mode := order.Mode
	if mode == "" {
		mode = types.ModeDirect
	}
	finality := order.Finality
	if finality == 0 {
		finality = types.FinalityStandard
	}
	return &types.TransferRequest{
		Source:      src,
		Destination: dst,
		Recipient:   order.Recipient,
		Amount:      order.Amount,
		Finality:    finality,
		Mode:        mode,
		HookPayload: order.HookPayload,
	}, nil
}

func (r *Router) Pay(ctx context.Context, order PaymentOrder) (*Outcome, error) {
	req, err := r.Request(order)
	if err != nil {
		return nil, err
	}
	if req.Source.Domain == req.Destination.Domain {
		receipt, err := r.payer.Pay(ctx, req.Source, req.Recipient, req.Amount)
		return &Outcome{Receipt: receipt}, err
	}
	return &Outcome{Updates: r.orchestrator.Initiate(ctx, req)}, nil
}

// Resume continues a cross-chain transfer from its burn hash.
func (r *Router) Resume(ctx context.Context, burnTxHash common.Hash, req *types.TransferRequest) <-chan types.TransferState {
	return r.orchestrator.Resume(ctx, burnTxHash, req)
}

func (r *Router) Registry() *types.ChainRegistry {
	return r.registry
}
