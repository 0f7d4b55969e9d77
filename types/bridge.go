package types

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// BurnParams are the arguments of a depositForBurn call on the wallet's active chain.
type BurnParams struct {
	Source            *ChainDescriptor
	DestinationDomain Domain
	MintRecipient     common.Address
	Amount            *big.Int
	DestinationCaller common.Address
	MaxFee            *big.Int
	MinFinality       Finality
	HookData          []byte
}

// MessageHeader holds the envelope fields finalize needs.
type MessageHeader struct {
	Version           uint32
	SourceDomain      Domain
	DestinationDomain Domain
	Nonce             []byte // 8 bytes on v1, 32 on v2
	Sender            common.Hash
	Recipient         common.Hash
	DestinationCaller common.Hash
	Body              []byte
}

// DestinationCallerAddress returns the authorized relayer as an EVM address.
func (h *MessageHeader) DestinationCallerAddress() common.Address {
	return common.BytesToAddress(h.DestinationCaller.Bytes())
}

// BridgeAdapter is one CCTP protocol generation. Write calls submit on the wallet's active chain.
type BridgeAdapter interface {
	Version() APIVersion
	Burn(ctx context.Context, w Wallet, p BurnParams) (common.Hash, error)
	BurnWithHook(ctx context.Context, w Wallet, p BurnParams) (common.Hash, error)
	ReceiveMessage(ctx context.Context, w Wallet, dst *ChainDescriptor, message, attestation []byte) (common.Hash, error)
	MintAndLog(ctx context.Context, w Wallet, dst *ChainDescriptor, message, attestation []byte) (common.Hash, error)
	ParseHeader(message []byte) (*MessageHeader, error)
	// IsExecuted reports whether the destination transmitter already consumed the message nonce.
	IsExecuted(ctx context.Context, w Wallet, dst *ChainDescriptor, header *MessageHeader) (bool, error)
	// MessageFromReceipt extracts the MessageSent payload of a burn receipt.
	MessageFromReceipt(receipt *ethtypes.Receipt, src *ChainDescriptor) ([]byte, error)
}
