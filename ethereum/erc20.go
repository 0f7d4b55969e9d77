package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/handlepay/handlepay-cctp/types"
)

// ERC20 reads and moves USDC through whichever chain the wallet is bound to.
type ERC20 struct{}

var _ types.AssetClient = ERC20{}

func (ERC20) BalanceOf(ctx context.Context, w types.Wallet, token, owner common.Address) (*big.Int, error) {
	return callUint256(ctx, w, token, "balanceOf", owner)
}

func (ERC20) Allowance(ctx context.Context, w types.Wallet, token, owner, spender common.Address) (*big.Int, error) {
	return callUint256(ctx, w, token, "allowance", owner, spender)
}

func (ERC20) Approve(ctx context.Context, w types.Wallet, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := ERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to pack approve: %w", err)
	}
	return w.Transact(ctx, token, data)
}

func (ERC20) Transfer(ctx context.Context, w types.Wallet, token, to common.Address, amount *big.Int) (common.Hash, error) {
	data, err := ERC20ABI.Pack("transfer", to, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to pack transfer: %w", err)
	}
	return w.Transact(ctx, token, data)
}

func callUint256(ctx context.Context, w types.Wallet, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := ERC20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to pack %s: %w", method, err)
	}
	out, err := w.Call(ctx, token, data)
	if err != nil {
		return nil, err
	}
	values, err := ERC20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to decode %s: %v", types.ErrRPC, method, err)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected %s result %T", types.ErrRPC, method, values[0])
	}
	return v, nil
}
