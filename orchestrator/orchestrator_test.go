package orchestrator_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/handlepay/handlepay-cctp/types"
)

func TestInitiateDirectCompletes(t *testing.T) {
	h := newHarness(t)
	req := h.request(t, "base", "ethereum")

	states := drain(h.orch.Initiate(context.Background(), req))
	final := states[len(states)-1]

	require.Equal(t, []types.Phase{
		types.PhasePendingBurn,
		types.PhaseBurnSubmitted,
		types.PhaseAwaitingAttestation,
		types.PhaseAttested,
		types.PhaseMintSubmitted,
		types.PhaseComplete,
	}, phases(states))

	require.Equal(t, types.PhaseComplete, final.Phase)
	require.Equal(t, burnHash, final.BurnTxHash)
	require.Equal(t, burnHash.Hex(), final.RequestID)
	require.Equal(t, testMessage, final.Message)
	require.Equal(t, testSig, final.Attestation)
	require.NotEqual(t, common.Hash{}, final.MintTxHash)
	require.Empty(t, final.LastError)

	// request id is a correlation id until the burn hash is known
	require.NotEqual(t, burnHash.Hex(), states[0].RequestID)
	require.NotEmpty(t, states[0].RequestID)

	// allowance was zero: one approval before the burn
	require.Equal(t, 1, h.assets.approvals)
	require.Len(t, h.adapter.burns, 1)
	burn := h.adapter.burns[0]
	require.Equal(t, types.Domain(0), burn.DestinationDomain)
	require.Equal(t, recipient, burn.MintRecipient)
	require.Equal(t, int64(2_000_000), burn.Amount.Int64())
	require.Equal(t, int64(200), burn.MaxFee.Int64())
	require.Equal(t, common.Address{}, burn.DestinationCaller)
	require.Equal(t, types.FinalityStandard, burn.MinFinality)
	require.Equal(t, 1, h.adapter.receives)

	// source first, then destination
	require.Equal(t, []string{"base", "ethereum"}, h.ledger.switches)

	pending, err := h.store.Pending(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
	cp, err := h.store.Get(context.Background(), burnHash)
	require.NoError(t, err)
	require.Equal(t, "base", cp.SourceChain)
	require.Equal(t, "ethereum", cp.DestinationChain)

	switches := 0
	for _, s := range states {
		require.NotEmpty(t, s.Status)
		if s.Status == "switching network to ethereum" {
			switches++
		}
		if s.Phase == types.PhaseBurnSubmitted {
			require.Contains(t, s.Status, burnHash.Hex())
		}
		if s.Phase == types.PhaseMintSubmitted {
			require.Contains(t, s.Status, final.MintTxHash.Hex())
		}
	}
	require.Equal(t, 1, switches)
}

func TestInitiateHookMode(t *testing.T) {
	h := newHarness(t)
	h.adapter.header = types.MessageHeader{SourceDomain: 0, DestinationDomain: 6, DestinationCaller: common.BytesToHash(hookReceiver.Bytes())}
	req := h.request(t, "ethereum", "base")
	req.Mode = types.ModeHook
	req.HookPayload = []byte{0x01}

	states := drain(h.orch.Initiate(context.Background(), req))
	require.Equal(t, types.PhaseComplete, states[len(states)-1].Phase)
	require.Equal(t, 1, h.adapter.hookBurns)
	require.Equal(t, hookReceiver, h.adapter.burns[0].DestinationCaller)
	require.Equal(t, []byte{0x01}, h.adapter.burns[0].HookData)
	require.Equal(t, 1, h.adapter.mintAndLog)
	require.Equal(t, 0, h.adapter.receives)
}

// unconfigured chains fail before any wallet is opened
func TestInitiateFailsBeforeNetwork(t *testing.T) {
	h := newHarness(t)

	req := h.request(t, "base", "ethereum")
	req.Source = &types.ChainDescriptor{Key: "solana", Domain: 5}
	states := drain(h.orch.Initiate(context.Background(), req))
	final := states[len(states)-1]
	require.Equal(t, types.PhaseFailed, final.Phase)
	require.Equal(t, "UnknownChain", final.ErrorTag)

	req = h.request(t, "base", "ethereum")
	req.Mode = types.ModeHook
	final = lastState(drain(h.orch.Initiate(context.Background(), req)))
	require.Equal(t, "MissingHookReceiver", final.ErrorTag)

	req = h.request(t, "base", "ethereum")
	req.Amount = 0
	final = lastState(drain(h.orch.Initiate(context.Background(), req)))
	require.Equal(t, "InvalidRequest", final.ErrorTag)

	require.Equal(t, 0, h.ledger.wallets)
	require.Equal(t, 0, h.ledger.network())
	require.Equal(t, 0, h.adapter.calls)
}

func lastState(states []types.TransferState) types.TransferState {
	return states[len(states)-1]
}

func TestInitiatePreBurnFailures(t *testing.T) {
	t.Run("fee service unavailable", func(t *testing.T) {
		h := newHarness(t)
		h.fees.err = fmt.Errorf("%w: status 503", types.ErrFeeServiceUnavailable)
		final := lastState(drain(h.orch.Initiate(context.Background(), h.request(t, "base", "ethereum"))))
		require.Equal(t, types.PhaseFailed, final.Phase)
		require.Equal(t, "FeeServiceUnavailable", final.ErrorTag)
		require.Empty(t, h.adapter.burns)
		require.Equal(t, common.Hash{}, final.BurnTxHash)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		h := newHarness(t)
		h.assets.balance = 1_000_000
		final := lastState(drain(h.orch.Initiate(context.Background(), h.request(t, "base", "ethereum"))))
		require.Equal(t, "InsufficientBalance", final.ErrorTag)
		require.Equal(t, 0, h.assets.approvals)
		require.Empty(t, h.adapter.burns)
	})

	t.Run("fee consumes amount", func(t *testing.T) {
		h := newHarness(t)
		h.fees.fee = 2_000_000
		final := lastState(drain(h.orch.Initiate(context.Background(), h.request(t, "base", "ethereum"))))
		require.Equal(t, "AmountTooLow", final.ErrorTag)
		require.Empty(t, h.adapter.burns)
	})

	t.Run("allowance already sufficient", func(t *testing.T) {
		h := newHarness(t)
		h.assets.allowance = 5_000_000
		final := lastState(drain(h.orch.Initiate(context.Background(), h.request(t, "base", "ethereum"))))
		require.Equal(t, types.PhaseComplete, final.Phase)
		require.Equal(t, 0, h.assets.approvals)
	})

	t.Run("cancelled before burn", func(t *testing.T) {
		h := newHarness(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		final := lastState(drain(h.orch.Initiate(ctx, h.request(t, "base", "ethereum"))))
		require.Equal(t, types.PhaseFailed, final.Phase)
		require.Equal(t, "Cancelled", final.ErrorTag)
		require.Empty(t, h.adapter.burns)
	})
}

func TestBurnRevertFails(t *testing.T) {
	h := newHarness(t)
	h.assets.allowance = 5_000_000
	h.wallets.waitErr = map[common.Hash]error{burnHash: fmt.Errorf("tx: %w", types.ErrReverted)}

	final := lastState(drain(h.orch.Initiate(context.Background(), h.request(t, "base", "ethereum"))))
	require.Equal(t, types.PhaseFailed, final.Phase)
	require.Equal(t, "Reverted", final.ErrorTag)
	require.Equal(t, burnHash, final.BurnTxHash)

	pending, err := h.store.Pending(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestFinalizeAlreadyExecutedRevertCompletes(t *testing.T) {
	h := newHarness(t)
	h.adapter.receiveErr = fmt.Errorf("send ethereum: %w: %w: execution reverted: Nonce already used", types.ErrReverted, types.ErrAlreadyExecuted)

	final := lastState(drain(h.orch.Initiate(context.Background(), h.request(t, "base", "ethereum"))))
	require.Equal(t, types.PhaseComplete, final.Phase)
	require.Empty(t, final.ErrorTag)
	require.Equal(t, common.Hash{}, final.MintTxHash)
}

func TestFinalizeMintRevertFails(t *testing.T) {
	h := newHarness(t)
	h.adapter.receiveErr = fmt.Errorf("send ethereum: %w: execution reverted: Invalid attestation", types.ErrReverted)

	final := lastState(drain(h.orch.Initiate(context.Background(), h.request(t, "base", "ethereum"))))
	require.Equal(t, types.PhaseFailed, final.Phase)
	require.Equal(t, "Reverted", final.ErrorTag)
	require.True(t, final.Resumable())

	// reverts are retried by the recovery sweep
	pending, err := h.store.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	req := h.request(t, "base", "ethereum")
	attested := types.TransferState{
		RequestID:   burnHash.Hex(),
		Phase:       types.PhaseAttested,
		BurnTxHash:  burnHash,
		Message:     testMessage,
		Attestation: testSig,
	}

	first := h.orch.Finalize(context.Background(), attested, req)
	require.Equal(t, types.PhaseComplete, first.Phase)
	require.NotEqual(t, common.Hash{}, first.MintTxHash)

	// a second call after a crash post-mint finds the nonce used
	second := h.orch.Finalize(context.Background(), attested, req)
	require.Equal(t, types.PhaseComplete, second.Phase)
	require.Empty(t, second.LastError)
	require.Equal(t, 1, h.adapter.receives)
}

func TestFinalizeRelayerMismatch(t *testing.T) {
	h := newHarness(t)
	h.adapter.header.DestinationCaller = common.BytesToHash(hookReceiver.Bytes())

	final := lastState(drain(h.orch.Initiate(context.Background(), h.request(t, "base", "ethereum"))))
	require.Equal(t, types.PhaseFailed, final.Phase)
	require.Equal(t, "RelayerMismatch", final.ErrorTag)
	require.Equal(t, 0, h.adapter.receives)

	// not retried
	pending, err := h.store.Pending(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestResumeEquivalence(t *testing.T) {
	uninterrupted := newHarness(t)
	expected := lastState(drain(uninterrupted.orch.Initiate(context.Background(), uninterrupted.request(t, "base", "ethereum"))))
	require.Equal(t, types.PhaseComplete, expected.Phase)

	resumed := newHarness(t)
	states := drain(resumed.orch.Resume(context.Background(), burnHash, resumed.request(t, "base", "ethereum")))
	final := lastState(states)

	require.Equal(t, types.PhaseAwaitingAttestation, states[0].Phase)
	require.True(t, expected.Equal(&final), "expected %+v, got %+v", expected, final)
	require.Empty(t, resumed.adapter.burns)
	require.Equal(t, 0, resumed.assets.approvals)
	require.Equal(t, burnHash, resumed.poller.queries[0].BurnTxHash)
	require.Equal(t, types.Domain(6), resumed.poller.queries[0].SourceDomain)
}

func TestCancelAfterBurnKeepsResumeKey(t *testing.T) {
	h := newHarness(t)
	h.poller.block = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var states []types.TransferState
	for s := range h.orch.Initiate(ctx, h.request(t, "base", "ethereum")) {
		states = append(states, s)
		if s.Phase == types.PhaseAwaitingAttestation {
			cancel()
		}
	}

	final := lastState(states)
	require.Equal(t, types.PhaseAwaitingAttestation, final.Phase)
	require.Equal(t, burnHash, final.BurnTxHash)
	require.Contains(t, final.LastError, context.Canceled.Error())
	require.Equal(t, "Cancelled", final.ErrorTag)
	require.True(t, final.Resumable())
	require.False(t, final.Terminal())
	require.Equal(t, 0, h.adapter.receives)

	pending, err := h.store.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, burnHash, pending[0].BurnTxHash)
}

func TestCancelDuringBurnPersistsCheckpoint(t *testing.T) {
	h := newHarness(t)
	h.withNetworkStore()
	h.assets.allowance = 5_000_000

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.adapter.afterBurn = cancel

	final := lastState(drain(h.orch.Initiate(ctx, h.request(t, "base", "ethereum"))))
	require.Equal(t, types.PhaseBurnSubmitted, final.Phase)
	require.Equal(t, "Cancelled", final.ErrorTag)
	require.True(t, final.Resumable())

	pending, err := h.store.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, burnHash, pending[0].BurnTxHash)
	require.Equal(t, "base", pending[0].SourceChain)
}

func TestResumeCancelledStillPersistsCheckpoint(t *testing.T) {
	h := newHarness(t)
	h.withNetworkStore()
	h.poller.block = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	final := lastState(drain(h.orch.Resume(ctx, burnHash, h.request(t, "base", "ethereum"))))
	require.Equal(t, types.PhaseAwaitingAttestation, final.Phase)
	require.Equal(t, "Cancelled", final.ErrorTag)

	cp, err := h.store.Get(context.Background(), burnHash)
	require.NoError(t, err)
	require.Equal(t, "ethereum", cp.DestinationChain)
	pending, err := h.store.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestInitiateHonoursCallerTimeout(t *testing.T) {
	h := newHarness(t)
	h.poller.block = true

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	final := lastState(drain(h.orch.Initiate(ctx, h.request(t, "base", "ethereum"))))
	require.Equal(t, types.PhaseAwaitingAttestation, final.Phase)
	require.Equal(t, "Timeout", final.ErrorTag)
	require.Equal(t, burnHash, final.BurnTxHash)
}
