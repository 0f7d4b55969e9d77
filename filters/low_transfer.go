package filters

import (
	"context"
	"fmt"

	"cosmossdk.io/log"
	"cosmossdk.io/math"

	"github.com/handlepay/handlepay-cctp/types"
)

// LowTransferFilter rejects transfers below the destination chain's minimum mint amount
type LowTransferFilter struct {
	chains *types.ChainRegistry
	logger log.Logger
}

var _ types.TransferFilter = (*LowTransferFilter)(nil)

func NewLowTransferFilter() *LowTransferFilter {
	return &LowTransferFilter{}
}

func (f *LowTransferFilter) Name() string {
	return "low-transfer"
}

func (f *LowTransferFilter) RejectionError() error {
	return types.ErrAmountTooLow
}

func (f *LowTransferFilter) Initialize(ctx context.Context, config map[string]interface{}, logger log.Logger) error {
	f.logger = logger
	chainsRaw, ok := config["chains"]
	if !ok {
		return fmt.Errorf("low-transfer filter requires 'chains' in config")
	}
	chains, ok := chainsRaw.(*types.ChainRegistry)
	if !ok {
		return fmt.Errorf("chains has invalid type")
	}
	f.chains = chains
	logger.Info("Low transfer filter initialized", "chain_count", len(chains.Keys()))
	return nil
}

func (f *LowTransferFilter) Filter(ctx context.Context, req *types.TransferRequest) (bool, string, error) {
	minMintAmount := f.getMinMintAmount(req.Destination.Domain)
	if minMintAmount == 0 {
		return false, "", nil
	}

	if math.NewIntFromUint64(req.Amount).LT(math.NewIntFromUint64(minMintAmount)) {
		reason := fmt.Sprintf("transfer amount too low: amount=%s min_amount=%s dest_domain=%d",
			types.FormatUSDC(req.Amount), types.FormatUSDC(minMintAmount), req.Destination.Domain)
		return true, reason, nil
	}

	return false, "", nil
}

// Close cleans up filter resources
func (f *LowTransferFilter) Close() error {
	return nil
}

func (f *LowTransferFilter) getMinMintAmount(destDomain types.Domain) uint64 {
	chain, err := f.chains.ByDomain(destDomain)
	if err != nil {
		f.logger.Info("No chain configured for destination domain", "dest_domain", destDomain)
		return 0
	}
	return chain.MinAmount
}
