package ethereum

import (
	"context"
	"encoding/binary"
	"fmt"

	cctptypes "github.com/circlefin/noble-cctp/x/cctp/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/handlepay/handlepay-cctp/types"
)

// BridgeV1 speaks to the legacy TokenMessenger. It has no fee, finality or hook data.
type BridgeV1 struct {
	transmitter
}

var _ types.BridgeAdapter = (*BridgeV1)(nil)

func (*BridgeV1) Version() types.APIVersion {
	return types.APIVersionV1
}

func (b *BridgeV1) Burn(ctx context.Context, w types.Wallet, p types.BurnParams) (common.Hash, error) {
	if p.DestinationCaller != (common.Address{}) {
		return b.burnWithCaller(ctx, w, p)
	}
	data, err := TokenMessengerV1ABI.Pack("depositForBurn",
		p.Amount,
		uint32(p.DestinationDomain),
		addressToBytes32(p.MintRecipient),
		p.Source.Asset,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to pack depositForBurn: %w", err)
	}
	return w.Transact(ctx, p.Source.TokenMessenger, data)
}

// BurnWithHook restricts the mint to the hook receiver. v1 messages cannot carry hook data.
func (b *BridgeV1) BurnWithHook(ctx context.Context, w types.Wallet, p types.BurnParams) (common.Hash, error) {
	if len(p.HookData) > 0 {
		return common.Hash{}, fmt.Errorf("%w: v1 burns cannot carry hook data", types.ErrInvalidRequest)
	}
	return b.burnWithCaller(ctx, w, p)
}

func (b *BridgeV1) burnWithCaller(ctx context.Context, w types.Wallet, p types.BurnParams) (common.Hash, error) {
	data, err := TokenMessengerV1ABI.Pack("depositForBurnWithCaller",
		p.Amount,
		uint32(p.DestinationDomain),
		addressToBytes32(p.MintRecipient),
		p.Source.Asset,
		addressToBytes32(p.DestinationCaller),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to pack depositForBurnWithCaller: %w", err)
	}
	return w.Transact(ctx, p.Source.TokenMessenger, data)
}

func (*BridgeV1) ParseHeader(message []byte) (*types.MessageHeader, error) {
	msg, err := new(cctptypes.Message).Parse(message)
	if err != nil {
		return nil, fmt.Errorf("unable to parse v1 message: %w", err)
	}
	nonce := make([]byte, 8)
	binary.BigEndian.PutUint64(nonce, msg.Nonce)
	return &types.MessageHeader{
		Version:           msg.Version,
		SourceDomain:      types.Domain(msg.SourceDomain),
		DestinationDomain: types.Domain(msg.DestinationDomain),
		Nonce:             nonce,
		Sender:            common.BytesToHash(msg.Sender),
		Recipient:         common.BytesToHash(msg.Recipient),
		DestinationCaller: common.BytesToHash(msg.DestinationCaller),
		Body:              msg.MessageBody,
	}, nil
}

// IsExecuted keys usedNonces by keccak256(sourceDomain ++ nonce).
func (b *BridgeV1) IsExecuted(ctx context.Context, w types.Wallet, dst *types.ChainDescriptor, header *types.MessageHeader) (bool, error) {
	key, err := V1NonceKey(header)
	if err != nil {
		return false, err
	}
	return b.usedNonce(ctx, w, dst, key)
}

// V1NonceKey is the usedNonces slot of a v1 message.
func V1NonceKey(header *types.MessageHeader) ([32]byte, error) {
	if len(header.Nonce) != 8 {
		return [32]byte{}, fmt.Errorf("v1 nonce must be 8 bytes, got %d", len(header.Nonce))
	}
	packed := make([]byte, 12)
	binary.BigEndian.PutUint32(packed[:4], uint32(header.SourceDomain))
	copy(packed[4:], header.Nonce)
	return crypto.Keccak256Hash(packed), nil
}
