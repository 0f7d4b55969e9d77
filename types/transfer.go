package types

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Phase string

const (
	PhasePendingBurn         Phase = "PENDING_BURN"
	PhaseBurnSubmitted       Phase = "BURN_SUBMITTED"
	PhaseAwaitingAttestation Phase = "AWAITING_ATTESTATION"
	PhaseAttested            Phase = "ATTESTED"
	PhaseMintSubmitted       Phase = "MINT_SUBMITTED"
	PhaseComplete            Phase = "COMPLETE"
	PhaseFailed              Phase = "FAILED"
)

// Finality is the CCTP v2 minFinalityThreshold.
type Finality uint32

const (
	FinalityFast     Finality = 1000
	FinalityStandard Finality = 2000
)

func (f Finality) String() string {
	switch f {
	case FinalityFast:
		return "FAST"
	case FinalityStandard:
		return "STANDARD"
	default:
		return fmt.Sprintf("%d", uint32(f))
	}
}

func ParseFinality(s string) (Finality, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FAST", "1000":
		return FinalityFast, nil
	case "STANDARD", "2000", "":
		return FinalityStandard, nil
	default:
		return 0, fmt.Errorf("invalid finality %q: must be 'fast' or 'standard'", s)
	}
}

type Mode string

const (
	ModeDirect Mode = "DIRECT"
	ModeHook   Mode = "HOOK"
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DIRECT", "":
		return ModeDirect, nil
	case "HOOK":
		return ModeHook, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be 'direct' or 'hook'", s)
	}
}

// TransferRequest is immutable once the burn has been submitted.
type TransferRequest struct {
	Source      *ChainDescriptor
	Destination *ChainDescriptor
	Recipient   common.Address
	Amount      uint64 // smallest asset unit
	Finality    Finality
	Mode        Mode
	HookPayload []byte
}

func (r *TransferRequest) Validate() error {
	if r.Source == nil || r.Destination == nil {
		return fmt.Errorf("%w: source and destination chains are required", ErrInvalidRequest)
	}
	if r.Source.Domain == r.Destination.Domain {
		return fmt.Errorf("%w: source and destination share domain %d", ErrInvalidRequest, r.Source.Domain)
	}
	if r.Amount == 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if r.Recipient == (common.Address{}) {
		return fmt.Errorf("%w: recipient is the zero address", ErrInvalidRequest)
	}
	if r.Mode != ModeHook && len(r.HookPayload) > 0 {
		return fmt.Errorf("%w: hook payload requires hook mode", ErrInvalidRequest)
	}
	return nil
}

// ExpectedDestinationCaller is the authorized relayer the burn sets and finalize expects.
func (r *TransferRequest) ExpectedDestinationCaller() common.Address {
	if r.Mode == ModeHook {
		return r.Destination.HookReceiver
	}
	return common.Address{}
}

// TransferState is the resumable record of one in-flight transfer.
type TransferState struct {
	RequestID   string      `json:"requestId"`
	Phase       Phase       `json:"phase"`
	BurnTxHash  common.Hash `json:"burnTxHash,omitempty"`
	Message     []byte      `json:"message,omitempty"`
	Attestation []byte      `json:"attestation,omitempty"`
	MintTxHash  common.Hash `json:"mintTxHash,omitempty"`
	LastError   string      `json:"lastError,omitempty"`
	ErrorTag    string      `json:"errorTag,omitempty"`
	Status      string      `json:"status"`
	Updated     time.Time   `json:"updated"`
}

func (s *TransferState) Terminal() bool {
	return s.Phase == PhaseComplete || s.Phase == PhaseFailed
}

// Resumable reports whether the burn happened but no mint was recorded.
func (s *TransferState) Resumable() bool {
	return s.BurnTxHash != (common.Hash{}) && s.MintTxHash == (common.Hash{}) && s.Phase != PhaseComplete
}

// Equal compares two states ignoring timestamps.
func (s *TransferState) Equal(other *TransferState) bool {
	return s.RequestID == other.RequestID &&
		s.Phase == other.Phase &&
		s.BurnTxHash == other.BurnTxHash &&
		bytes.Equal(s.Message, other.Message) &&
		bytes.Equal(s.Attestation, other.Attestation) &&
		s.MintTxHash == other.MintTxHash &&
		s.LastError == other.LastError &&
		s.ErrorTag == other.ErrorTag
}

// Checkpoint is the durable record needed to resume a transfer after a crash.
type Checkpoint struct {
	SourceChain      string         `json:"sourceChain"`
	DestinationChain string         `json:"destinationChain"`
	Recipient        common.Address `json:"recipient"`
	Amount           uint64         `json:"amount"`
	BurnTxHash       common.Hash    `json:"burnTxHash"`
	Mode             Mode           `json:"mode,omitempty"`
	Finality         Finality       `json:"finality,omitempty"`
	HookPayload      []byte         `json:"hookPayload,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
}

func NewCheckpoint(req *TransferRequest, burnTxHash common.Hash) *Checkpoint {
	return &Checkpoint{
		SourceChain:      req.Source.Key,
		DestinationChain: req.Destination.Key,
		Recipient:        req.Recipient,
		Amount:           req.Amount,
		BurnTxHash:       burnTxHash,
		Mode:             req.Mode,
		Finality:         req.Finality,
		HookPayload:      req.HookPayload,
		CreatedAt:        time.Now(),
	}
}

// Request rebuilds the transfer request against the registry.
func (c *Checkpoint) Request(r *ChainRegistry) (*TransferRequest, error) {
	src, err := r.Describe(c.SourceChain)
	if err != nil {
		return nil, err
	}
	dst, err := r.Describe(c.DestinationChain)
	if err != nil {
		return nil, err
	}
	mode := c.Mode
	if mode == "" {
		mode = ModeDirect
	}
	finality := c.Finality
	if finality == 0 {
		finality = FinalityStandard
	}
	return &TransferRequest{
		Source:      src,
		Destination: dst,
		Recipient:   c.Recipient,
		Amount:      c.Amount,
		Finality:    finality,
		Mode:        mode,
		HookPayload: c.HookPayload,
	}, nil
}

// PaymentReceipt is the outcome of the single-transaction same-chain path.
type PaymentReceipt struct {
	Chain     string         `json:"chain"`
	Recipient common.Address `json:"recipient"`
	Amount    uint64         `json:"amount"`
	TxHash    common.Hash    `json:"txHash"`
	Success   bool           `json:"success"`
}
