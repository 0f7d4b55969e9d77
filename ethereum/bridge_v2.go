package ethereum

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/handlepay/handlepay-cctp/types"
)

// v2 message header offsets
const (
	v2VersionEnd           = 4
	v2SourceDomainEnd      = 8
	v2DestinationDomainEnd = 12
	v2NonceEnd             = 44
	v2SenderEnd            = 76
	v2RecipientEnd         = 108
	v2DestinationCallerEnd = 140
	v2HeaderLen            = 148
)

// BridgeV2 speaks to TokenMessengerV2 and MessageTransmitterV2.
type BridgeV2 struct {
	transmitter
}

var _ types.BridgeAdapter = (*BridgeV2)(nil)

func (*BridgeV2) Version() types.APIVersion {
	return types.APIVersionV2
}

func (b *BridgeV2) Burn(ctx context.Context, w types.Wallet, p types.BurnParams) (common.Hash, error) {
	data, err := TokenMessengerV2ABI.Pack("depositForBurn",
		p.Amount,
		uint32(p.DestinationDomain),
		addressToBytes32(p.MintRecipient),
		p.Source.Asset,
		addressToBytes32(p.DestinationCaller),
		amountOrZero(p.MaxFee),
		uint32(p.MinFinality),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to pack depositForBurn: %w", err)
	}
	return w.Transact(ctx, p.Source.TokenMessenger, data)
}

func (b *BridgeV2) BurnWithHook(ctx context.Context, w types.Wallet, p types.BurnParams) (common.Hash, error) {
	hookData := p.HookData
	if hookData == nil {
		hookData = []byte{}
	}
	data, err := TokenMessengerV2ABI.Pack("depositForBurnWithHook",
		p.Amount,
		uint32(p.DestinationDomain),
		addressToBytes32(p.MintRecipient),
		p.Source.Asset,
		addressToBytes32(p.DestinationCaller),
		amountOrZero(p.MaxFee),
		uint32(p.MinFinality),
		hookData,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to pack depositForBurnWithHook: %w", err)
	}
	return w.Transact(ctx, p.Source.TokenMessenger, data)
}

func (*BridgeV2) ParseHeader(message []byte) (*types.MessageHeader, error) {
	if len(message) < v2HeaderLen {
		return nil, fmt.Errorf("message too short for v2 header: %d bytes", len(message))
	}
	h := &types.MessageHeader{
		Version:           binary.BigEndian.Uint32(message[0:v2VersionEnd]),
		SourceDomain:      types.Domain(binary.BigEndian.Uint32(message[v2VersionEnd:v2SourceDomainEnd])),
		DestinationDomain: types.Domain(binary.BigEndian.Uint32(message[v2SourceDomainEnd:v2DestinationDomainEnd])),
		Nonce:             append([]byte(nil), message[v2DestinationDomainEnd:v2NonceEnd]...),
		Sender:            common.BytesToHash(message[v2NonceEnd:v2SenderEnd]),
		Recipient:         common.BytesToHash(message[v2SenderEnd:v2RecipientEnd]),
		DestinationCaller: common.BytesToHash(message[v2RecipientEnd:v2DestinationCallerEnd]),
		Body:              append([]byte(nil), message[v2HeaderLen:]...),
	}
	return h, nil
}

// IsExecuted keys usedNonces by the 32-byte header nonce.
func (b *BridgeV2) IsExecuted(ctx context.Context, w types.Wallet, dst *types.ChainDescriptor, header *types.MessageHeader) (bool, error) {
	if len(header.Nonce) != 32 {
		return false, fmt.Errorf("v2 nonce must be 32 bytes, got %d", len(header.Nonce))
	}
	var key [32]byte
	copy(key[:], header.Nonce)
	return b.usedNonce(ctx, w, dst, key)
}
