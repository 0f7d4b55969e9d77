package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/handlepay/handlepay-cctp/types"
)

var messageSentTopic = MessageTransmitterABI.Events["MessageSent"].ID

// NewBridgeAdapter returns the adapter for the configured protocol generation.
func NewBridgeAdapter(version types.APIVersion) types.BridgeAdapter {
	if version == types.APIVersionV1 {
		return &BridgeV1{}
	}
	return &BridgeV2{}
}

// transmitter holds the receive side, identical across generations except for the nonce key.
type transmitter struct{}

func (transmitter) ReceiveMessage(ctx context.Context, w types.Wallet, dst *types.ChainDescriptor, message, attestation []byte) (common.Hash, error) {
	data, err := MessageTransmitterABI.Pack("receiveMessage", message, attestation)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to pack receiveMessage: %w", err)
	}
	return w.Transact(ctx, dst.MessageTransmitter, data)
}

func (transmitter) MintAndLog(ctx context.Context, w types.Wallet, dst *types.ChainDescriptor, message, attestation []byte) (common.Hash, error) {
	if !dst.HasHookReceiver() {
		return common.Hash{}, fmt.Errorf("%w: chain %s", types.ErrMissingHookReceiver, dst.Key)
	}
	data, err := HookReceiverABI.Pack("mintAndLog", message, attestation)
	if err != nil {
		return common.Hash{}, fmt.Errorf("unable to pack mintAndLog: %w", err)
	}
	return w.Transact(ctx, dst.HookReceiver, data)
}

func (transmitter) MessageFromReceipt(receipt *ethtypes.Receipt, src *types.ChainDescriptor) ([]byte, error) {
	if receipt == nil {
		return nil, errors.New("missing burn receipt")
	}
	for _, l := range receipt.Logs {
		if l.Address != src.MessageTransmitter || len(l.Topics) == 0 || l.Topics[0] != messageSentTopic {
			continue
		}
		values, err := MessageTransmitterABI.Unpack("MessageSent", l.Data)
		if err != nil {
			return nil, fmt.Errorf("unable to decode MessageSent: %w", err)
		}
		if msg, ok := values[0].([]byte); ok && len(msg) > 0 {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("no MessageSent event in tx %s on %s", receipt.TxHash.Hex(), src.Key)
}

func (transmitter) usedNonce(ctx context.Context, w types.Wallet, dst *types.ChainDescriptor, key [32]byte) (bool, error) {
	data, err := MessageTransmitterABI.Pack("usedNonces", key)
	if err != nil {
		return false, fmt.Errorf("unable to pack usedNonces: %w", err)
	}
	out, err := w.Call(ctx, dst.MessageTransmitter, data)
	if err != nil {
		return false, err
	}
	values, err := MessageTransmitterABI.Unpack("usedNonces", out)
	if err != nil {
		return false, fmt.Errorf("%w: unable to decode usedNonces: %v", types.ErrRPC, err)
	}
	used, ok := values[0].(*big.Int)
	if !ok {
		return false, fmt.Errorf("%w: unexpected usedNonces result %T", types.ErrRPC, values[0])
	}
	return used.Sign() != 0, nil
}

func addressToBytes32(a common.Address) [32]byte {
	var out [32]byte
	copy(out[:], common.LeftPadBytes(a.Bytes(), 32))
	return out
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
