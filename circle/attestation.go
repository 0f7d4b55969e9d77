package circle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/handlepay/handlepay-cctp/types"
)

const (
	v1StatusComplete = "complete"
	v1StatusPending  = "pending_confirmations"
	attestationPend  = "PENDING"
)

// Messages fetches the v2 messages emitted by a burn transaction. A burn Iris has not indexed yet
// yields an empty response, not an error.
func (c *Client) Messages(ctx context.Context, sourceDomain types.Domain, txHash common.Hash) (*types.AttestationResponseV2, error) {
	path := fmt.Sprintf("/v2/messages/%d?transactionHash=%s", sourceDomain, txHash.Hex())

	var resp types.AttestationResponseV2
	if err := c.get(ctx, path, &resp); err != nil {
		if isNotFound(err) {
			return &types.AttestationResponseV2{}, nil
		}
		return nil, err
	}
	return &resp, nil
}

// AttestationV1 fetches {base}/attestations/{keccak256(message)}. Returns nil when not indexed yet.
func (c *Client) AttestationV1(ctx context.Context, message []byte) (*types.AttestationResponse, error) {
	lookupID := crypto.Keccak256Hash(message).Hex()

	var resp types.AttestationResponse
	if err := c.get(ctx, "/attestations/"+lookupID, &resp); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &resp, nil
}

// CheckAttestation performs one poll and classifies the answer.
func (c *Client) CheckAttestation(ctx context.Context, version types.APIVersion, q types.AttestationQuery) (types.AttestationStatus, *types.AttestationRecord, error) {
	if version == types.APIVersionV1 {
		if len(q.Message) == 0 {
			return "", nil, fmt.Errorf("v1 attestation lookup needs the MessageSent bytes of %s", q.BurnTxHash)
		}
		resp, err := c.AttestationV1(ctx, q.Message)
		if err != nil {
			return "", nil, err
		}
		return classifyV1(resp, q.Message)
	}

	resp, err := c.Messages(ctx, q.SourceDomain, q.BurnTxHash)
	if err != nil {
		return "", nil, err
	}
	if len(resp.Messages) > 1 {
		c.logger.Info(fmt.Sprintf("Found %d messages for tx %s, using first", len(resp.Messages), q.BurnTxHash))
	}
	return classifyV2(resp)
}

func isPendingAttestation(attestation string) bool {
	a := strings.TrimSpace(attestation)
	return a == "" || a == "0x" || strings.EqualFold(a, attestationPend)
}

func isEmptyMessage(message string) bool {
	m := strings.TrimSpace(message)
	return m == "" || m == "0x"
}

// classifyV2 maps a v2 response to WAITING, PENDING or READY.
// A signed attestation over an empty message is still PENDING.
func classifyV2(resp *types.AttestationResponseV2) (types.AttestationStatus, *types.AttestationRecord, error) {
	if resp == nil || len(resp.Messages) == 0 {
		return types.AttestationWaiting, nil, nil
	}

	m := resp.Messages[0]
	if isPendingAttestation(m.Attestation) || isEmptyMessage(m.Message) || m.Status == v1StatusPending {
		return types.AttestationPending, nil, nil
	}

	message, err := hexutil.Decode(normalizeHex(m.Message))
	if err != nil {
		return "", nil, fmt.Errorf("malformed message hex: %w", err)
	}
	attestation, err := hexutil.Decode(normalizeHex(m.Attestation))
	if err != nil {
		return "", nil, fmt.Errorf("malformed attestation hex: %w", err)
	}

	return types.AttestationReady, &types.AttestationRecord{
		Message:         message,
		Attestation:     attestation,
		ReadyAt:         time.Now(),
		Nonce:           m.EventNonce,
		ExpirationBlock: ParseExpirationBlock(m.ExpirationBlock),
	}, nil
}

func classifyV1(resp *types.AttestationResponse, message []byte) (types.AttestationStatus, *types.AttestationRecord, error) {
	if resp == nil {
		return types.AttestationWaiting, nil, nil
	}
	if resp.Status != v1StatusComplete || isPendingAttestation(resp.Attestation) {
		return types.AttestationPending, nil, nil
	}

	attestation, err := hexutil.Decode(normalizeHex(resp.Attestation))
	if err != nil {
		return "", nil, fmt.Errorf("malformed attestation hex: %w", err)
	}

	return types.AttestationReady, &types.AttestationRecord{
		Message:     message,
		Attestation: attestation,
		ReadyAt:     time.Now(),
	}, nil
}
