package handles

import (
	"context"
	"fmt"
	"math/big"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/handlepay/handlepay-cctp/ethereum"
	"github.com/handlepay/handlepay-cctp/types"
)

// Member is one registry membership record.
type Member struct {
	ID          *big.Int
	Wallet      common.Address
	JoinedBlock *big.Int
	IsActive    bool
}

// RegistryResolver reads the handle registry contract directly.
type RegistryResolver struct {
	contract *bind.BoundContract
	logger   log.Logger
}

var _ types.HandleResolver = (*RegistryResolver)(nil)

func NewRegistryResolver(address common.Address, caller bind.ContractCaller, logger log.Logger) *RegistryResolver {
	return &RegistryResolver{
		contract: bind.NewBoundContract(address, ethereum.HandleRegistryABI, caller, nil, nil),
		logger:   logger.With("strategy", "registry"),
	}
}

func (r *RegistryResolver) Name() string {
	return "registry"
}

func (r *RegistryResolver) Resolve(ctx context.Context, platform, username string) (*types.HandleBinding, error) {
	platform = NormalizePlatform(platform)
	for _, candidate := range Candidates(username) {
		id, err := r.memberID(ctx, platform, candidate)
		if err != nil {
			return nil, err
		}
		if id.Sign() == 0 {
			continue
		}

		member, err := r.Member(ctx, id)
		if err != nil {
			return nil, err
		}
		if member.Wallet == (common.Address{}) {
			return nil, fmt.Errorf("%w: member %s has no wallet", types.ErrHandleNotFound, id)
		}
		if !member.IsActive {
			return nil, fmt.Errorf("%w: %s:%s (member %s)", types.ErrMemberInactive, platform, candidate, id)
		}
		r.logger.Debug("Resolved handle", "platform", platform, "username", candidate, "member", id.String(), "wallet", member.Wallet.Hex())
		return &types.HandleBinding{Platform: platform, Username: candidate, Wallet: member.Wallet, MemberID: id}, nil
	}
	return nil, fmt.Errorf("%w: %s:%s", types.ErrHandleNotFound, platform, username)
}

func (r *RegistryResolver) memberID(ctx context.Context, platform, username string) (*big.Int, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "handleToMemberId", HandleKey(platform, username)); err != nil {
		return nil, fmt.Errorf("%w: handleToMemberId: %v", types.ErrRPC, err)
	}
	id, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected handleToMemberId result %T", types.ErrRPC, out[0])
	}
	return id, nil
}

// Member reads members(id).
func (r *RegistryResolver) Member(ctx context.Context, id *big.Int) (*Member, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "members", id); err != nil {
		return nil, fmt.Errorf("%w: members(%s): %v", types.ErrRPC, id, err)
	}
	if len(out) != 4 {
		return nil, fmt.Errorf("%w: members returned %d values", types.ErrRPC, len(out))
	}
	m := &Member{}
	m.ID, _ = out[0].(*big.Int)
	m.Wallet, _ = out[1].(common.Address)
	m.JoinedBlock, _ = out[2].(*big.Int)
	m.IsActive, _ = out[3].(bool)
	return m, nil
}
