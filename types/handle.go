package types

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// HandleBinding is a read-only projection of a registry member's handle.
type HandleBinding struct {
	Platform string         `json:"platform"`
	Username string         `json:"username"`
	Wallet   common.Address `json:"wallet"`
	MemberID *big.Int       `json:"memberId"`
}

// HandleResolver maps (platform, username) to a wallet. Implementations must be side-effect free.
type HandleResolver interface {
	Resolve(ctx context.Context, platform, username string) (*HandleBinding, error)
}
