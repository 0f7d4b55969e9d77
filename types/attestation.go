package types

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AttestationResponse is the v1 API response format
type AttestationResponse struct {
	Attestation string `json:"attestation"`
	Status      string `json:"status"`
}

// AttestationResponseV2 is the v2 API response format
type AttestationResponseV2 struct {
	Messages []MessageResponseV2 `json:"messages"`
}

// MessageResponseV2 represents a message in v2 response
type MessageResponseV2 struct {
	Message                   string `json:"message"`
	Attestation               string `json:"attestation"`
	Status                    string `json:"status"`
	EventNonce                string `json:"eventNonce"`
	CctpVersion               int    `json:"cctpVersion"`
	ExpirationBlock           string `json:"expirationBlock,omitempty"`
	FinalityThresholdExecuted string `json:"finalityThresholdExecuted,omitempty"`
}

// FeeResponse is the single-value form of /v2/burn/USDC/fees/{src}/{dst}.
type FeeResponse struct {
	Data *struct {
		MinimumFee json.Number `json:"minimumFee"`
	} `json:"data"`
}

// FeeTier is one entry of the per-finality form of the fee endpoint.
type FeeTier struct {
	FinalityThreshold uint32      `json:"finalityThreshold"`
	MinimumFee        json.Number `json:"minimumFee"`
}

// FastTransferAllowance is the v2 allowance response
type FastTransferAllowance struct {
	Allowance   float64 `json:"allowance"`
	LastUpdated string  `json:"lastUpdated"`
}

// ReattestResponse is the v2 re-attestation response
type ReattestResponse struct {
	Message string `json:"message"`
	Nonce   string `json:"nonce"`
}

// AttestationStatus classifies one poll of the attestation service.
type AttestationStatus string

const (
	AttestationWaiting AttestationStatus = "WAITING" // burn not indexed yet
	AttestationPending AttestationStatus = "PENDING" // indexed, not signed
	AttestationReady   AttestationStatus = "READY"
)

// AttestationQuery identifies the burn to poll for. Message is only needed by the v1 service.
type AttestationQuery struct {
	SourceDomain Domain
	BurnTxHash   common.Hash
	Message      []byte
}

// AttestationRecord is consumed exactly once by the mint step.
type AttestationRecord struct {
	Message         []byte
	Attestation     []byte
	ReadyAt         time.Time
	Nonce           string
	ExpirationBlock uint64 // fast transfers only
}
