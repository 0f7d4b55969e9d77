package circle

import (
	"context"
	"fmt"
	"strconv"

	"cosmossdk.io/log"

	"github.com/handlepay/handlepay-cctp/types"
)

const defaultReattestRetries = 3

// Reattester refreshes Fast Transfer attestations that expire before the mint can land.
type Reattester struct {
	client       *Client
	logger       log.Logger
	bufferBlocks uint64
	maxRetries   int
}

func NewReattester(client *Client, cfg types.CircleSettings, logger log.Logger) *Reattester {
	maxRetries := cfg.ReattestMaxRetries
	if maxRetries == 0 {
		maxRetries = defaultReattestRetries
	}
	return &Reattester{
		client:       client,
		logger:       logger.With("component", "reattester"),
		bufferBlocks: uint64(cfg.ExpirationBufferBlocks),
		maxRetries:   maxRetries,
	}
}

// ParseExpirationBlock converts expiration block string to uint64, returns 0 on error
func ParseExpirationBlock(expirationBlock string) uint64 {
	if expirationBlock == "" {
		return 0
	}
	block, err := strconv.ParseUint(expirationBlock, 10, 64)
	if err != nil {
		return 0
	}
	return block
}

// Expiring reports whether the record's attestation expires within the buffer of currentBlock.
func (r *Reattester) Expiring(record *types.AttestationRecord, currentBlock uint64) bool {
	if record == nil || record.ExpirationBlock == 0 {
		return false
	}
	return currentBlock+r.bufferBlocks >= record.ExpirationBlock
}

// Refresh requests re-attestation when the record is expiring and returns the re-signed record.
// The second return value reports whether a refresh happened.
func (r *Reattester) Refresh(ctx context.Context, q types.AttestationQuery, record *types.AttestationRecord, currentBlock uint64) (*types.AttestationRecord, bool, error) {
	if !r.Expiring(record, currentBlock) {
		return record, false, nil
	}
	if record.Nonce == "" {
		return record, false, fmt.Errorf("attestation for %s expires at block %d but carries no nonce", q.BurnTxHash, record.ExpirationBlock)
	}

	r.logger.Info(fmt.Sprintf("Fast Transfer attestation expiring soon for nonce %s (current: %d, expires: %d), requesting re-attestation",
		record.Nonce, currentBlock, record.ExpirationBlock))

	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		var resp types.ReattestResponse
		if err := r.client.post(ctx, "/v2/reattest/"+normalizeHex(record.Nonce), &resp); err != nil {
			lastErr = fmt.Errorf("re-attestation request for nonce %s: %w", record.Nonce, err)
			r.logger.Debug("Re-attestation request failed", "attempt", attempt, "error", err)
			continue
		}

		status, refreshed, err := r.client.CheckAttestation(ctx, types.APIVersionV2, q)
		if err != nil {
			lastErr = err
			continue
		}
		if status != types.AttestationReady {
			lastErr = fmt.Errorf("re-attestation for nonce %s is %s", record.Nonce, status)
			continue
		}
		if refreshed.ExpirationBlock != 0 && r.Expiring(refreshed, currentBlock) {
			lastErr = fmt.Errorf("re-attestation for nonce %s still expires at block %d", record.Nonce, refreshed.ExpirationBlock)
			continue
		}

		r.logger.Info(fmt.Sprintf("Re-attestation successful for nonce %s", record.Nonce))
		return refreshed, true, nil
	}
	return record, false, fmt.Errorf("max re-attestation attempts reached for nonce %s (attempts: %d): %w", record.Nonce, r.maxRetries, lastErr)
}
