package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/handlepay/handlepay-cctp/circle"
	"github.com/handlepay/handlepay-cctp/relayer"
	"github.com/handlepay/handlepay-cctp/store"
	"github.com/handlepay/handlepay-cctp/types"
)

// FeeSource quotes the maximum fee for a burn.
type FeeSource interface {
	EstimateMaxFeeForFinality(ctx context.Context, src, dst types.Domain, amount uint64, finality types.Finality) (uint64, error)
}

// AttestationSource blocks until the signed message for a burn is available.
type AttestationSource interface {
	AwaitAttestation(ctx context.Context, q types.AttestationQuery, observe circle.PollObserver) (*types.AttestationRecord, error)
}

// Reattester refreshes fast-transfer attestations that expire before the mint lands.
type Reattester interface {
	Refresh(ctx context.Context, q types.AttestationQuery, record *types.AttestationRecord, currentBlock uint64) (*types.AttestationRecord, bool, error)
}

// WalletFactory returns a fresh wallet session per transfer.
type WalletFactory interface {
	NewWallet() types.Wallet
}

// Orchestrator drives burn, attestation and mint for one bridge generation.
// Every transfer runs in its own goroutine with its own wallet session.
type Orchestrator struct {
	registry *types.ChainRegistry
	wallets  WalletFactory
	assets   types.AssetClient
	adapter  types.BridgeAdapter
	fees     FeeSource
	poller   AttestationSource
	logger   log.Logger

	filters    *types.FilterRegistry
	reattester Reattester
	allowance  *circle.AllowanceState
	store      store.CheckpointStore
	metrics    *relayer.PromMetrics
}

type Option func(*Orchestrator)

func WithFilters(f *types.FilterRegistry) Option {
	return func(o *Orchestrator) { o.filters = f }
}

func WithReattester(r Reattester) Option {
	return func(o *Orchestrator) { o.reattester = r }
}

func WithAllowanceState(a *circle.AllowanceState) Option {
	return func(o *Orchestrator) { o.allowance = a }
}

func WithStore(s store.CheckpointStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

func WithMetrics(m *relayer.PromMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func New(
	registry *types.ChainRegistry,
	wallets WalletFactory,
	assets types.AssetClient,
	adapter types.BridgeAdapter,
	fees FeeSource,
	poller AttestationSource,
	logger log.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		wallets:  wallets,
		assets:   assets,
		adapter:  adapter,
		fees:     fees,
		poller:   poller,
		logger:   logger.With("component", "orchestrator"),
		store:    store.NewMemoryStore(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Registry() *types.ChainRegistry {
	return o.registry
}

func (o *Orchestrator) Store() store.CheckpointStore {
	return o.store
}

// run carries one transfer's state and publishes every change on out.
type run struct {
	o      *Orchestrator
	req    *types.TransferRequest
	state  types.TransferState
	out    chan<- types.TransferState
	logger log.Logger
}

func (o *Orchestrator) newRun(req *types.TransferRequest, state types.TransferState, out chan<- types.TransferState) *run {
	if req == nil {
		req = &types.TransferRequest{}
	}
	logger := o.logger
	if req.Source != nil && req.Destination != nil {
		logger = logger.With("src", req.Source.Key, "dest", req.Destination.Key)
	}
	return &run{o: o, req: req, state: state, out: out, logger: logger}
}

func (r *run) emit() {
	if r.out == nil {
		return
	}
	r.state.Updated = time.Now()
	s := r.state
	r.out <- s
}

func (r *run) status(format string, args ...interface{}) {
	r.state.Status = fmt.Sprintf(format, args...)
	r.emit()
}

func (r *run) transition(phase types.Phase, status string) {
	r.state.Phase = phase
	r.state.Status = status
	if r.req.Source != nil && r.req.Destination != nil {
		r.o.metrics.IncTransferPhase(r.req.Source.Key, r.req.Destination.Key, string(phase))
	}
	r.logger.Info(status, "request_id", r.state.RequestID, "phase", phase)
	r.emit()
}

// fail records a terminal failure. Burned transfers stay in the checkpoint store unless the error
// cannot be fixed by retrying.
func (r *run) fail(err error) {
	r.state.LastError = err.Error()
	r.state.ErrorTag = types.Tag(err)
	if r.state.BurnTxHash != (common.Hash{}) && !retryable(err) {
		r.markDone()
	}
	r.logger.Error("Transfer failed", "request_id", r.state.RequestID, "phase", r.state.Phase, "tag", r.state.ErrorTag, "error", err)
	r.transition(types.PhaseFailed, "failed: "+err.Error())
}

// abandon stops after the burn without changing the phase so the transfer can be resumed.
func (r *run) abandon(err error) {
	r.state.LastError = err.Error()
	r.state.ErrorTag = types.Tag(err)
	r.logger.Info("Transfer interrupted; resume with burn tx", "burn_tx", r.state.BurnTxHash.Hex(), "phase", r.state.Phase, "error", err)
	r.status("interrupted; resume with burn tx %s", r.state.BurnTxHash.Hex())
}

// stop routes a post-burn error: cancellation and timeouts abandon, everything else fails.
func (r *run) stop(err error) {
	if interrupted(err) {
		r.abandon(err)
		return
	}
	r.fail(err)
}

func (r *run) complete(status string) {
	r.state.LastError = ""
	r.state.ErrorTag = ""
	r.markDone()
	r.transition(types.PhaseComplete, status)
}

func (r *run) markDone() {
	if err := r.o.store.MarkDone(context.Background(), r.state.BurnTxHash); err != nil {
		r.logger.Error("Unable to mark checkpoint done", "burn_tx", r.state.BurnTxHash.Hex(), "error", err)
	}
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, types.ErrTimeout)
}

func retryable(err error) bool {
	return errors.Is(err, types.ErrRPC) ||
		errors.Is(err, types.ErrChainMismatch) ||
		errors.Is(err, types.ErrInsufficientBalance) ||
		(errors.Is(err, types.ErrReverted) && !errors.Is(err, types.ErrAlreadyExecuted)) ||
		interrupted(err)
}

// Initiate validates, burns and follows the transfer to a terminal phase. The returned channel must be
// drained; it closes after COMPLETE, FAILED or an interruption after the burn.
func (o *Orchestrator) Initiate(ctx context.Context, req *types.TransferRequest) <-chan types.TransferState {
	out := make(chan types.TransferState)
	r := o.newRun(req, types.TransferState{
		RequestID: uuid.NewString(),
		Phase:     types.PhasePendingBurn,
	}, out)

	go func() {
		defer close(out)
		r.transition(types.PhasePendingBurn, "validating request")

		if err := o.validate(ctx, r.req); err != nil {
			r.fail(err)
			return
		}

		w := o.wallets.NewWallet()
		receipt, ok := r.burn(ctx, w)
		if !ok {
			return
		}

		var message []byte
		if o.adapter.Version() == types.APIVersionV1 {
			msg, err := o.adapter.MessageFromReceipt(receipt, req.Source)
			if err != nil {
				r.fail(err)
				return
			}
			message = msg
		}
		r.attestAndFinalize(ctx, w, message)
	}()
	return out
}

func (o *Orchestrator) validate(ctx context.Context, req *types.TransferRequest) error {
	if err := o.registry.ValidateRequest(req); err != nil {
		return err
	}
	return o.filters.Check(ctx, req)
}

// burn runs the pre-burn steps and submits the burn. It returns false once the run has ended.
func (r *run) burn(ctx context.Context, w types.Wallet) (*ethtypes.Receipt, bool) {
	o, req := r.o, r.req
	src, dst := req.Source, req.Destination
	amount := new(big.Int).SetUint64(req.Amount)

	r.status("switching network to %s", src.Key)
	if err := w.SwitchChain(ctx, src); err != nil {
		r.fail(err)
		return nil, false
	}

	r.status("checking %s USDC balance", src.Key)
	balance, err := o.assets.BalanceOf(ctx, w, src.Asset, w.Address())
	if err != nil {
		r.fail(err)
		return nil, false
	}
	o.metrics.SetWalletBalance(src.Key, w.Address().Hex(), "USDC", usdcFloat(balance))
	if balance.Cmp(amount) < 0 {
		r.fail(fmt.Errorf("%w: balance %s USDC is below %s USDC on %s", types.ErrInsufficientBalance,
			types.FormatUSDC(balance.Uint64()), types.FormatUSDC(req.Amount), src.Key))
		return nil, false
	}

	allowance, err := o.assets.Allowance(ctx, w, src.Asset, w.Address(), src.TokenMessenger)
	if err != nil {
		r.fail(err)
		return nil, false
	}
	if allowance.Cmp(amount) < 0 {
		r.status("approving %s USDC for the token messenger", types.FormatUSDC(req.Amount))
		approveHash, err := o.assets.Approve(ctx, w, src.Asset, src.TokenMessenger, amount)
		if err != nil {
			o.metrics.IncBroadcastErrors(src.Key, "approve")
			r.fail(err)
			return nil, false
		}
		r.status("waiting for approval %s", approveHash.Hex())
		if _, err := w.WaitMined(ctx, approveHash); err != nil {
			r.fail(fmt.Errorf("approval %s: %w", approveHash.Hex(), err))
			return nil, false
		}
	}

	var maxFee uint64
	if o.adapter.Version() == types.APIVersionV2 {
		r.status("estimating fee")
		maxFee, err = o.fees.EstimateMaxFeeForFinality(ctx, src.Domain, dst.Domain, req.Amount, req.Finality)
		if err != nil {
			r.fail(err)
			return nil, false
		}
		if maxFee >= req.Amount {
			r.fail(fmt.Errorf("%w: fee bound %d leaves nothing to mint from %d", types.ErrAmountTooLow, maxFee, req.Amount))
			return nil, false
		}
		if req.Finality == types.FinalityFast && o.allowance != nil && !o.allowance.Covers(src.Domain, req.Amount) {
			r.logger.Info("Fast transfer allowance below amount; attestation may fall back to standard finality",
				"domain", src.Domain, "amount", types.FormatUSDC(req.Amount))
		}
	}

	params := types.BurnParams{
		Source:            src,
		DestinationDomain: dst.Domain,
		MintRecipient:     req.Recipient,
		Amount:            amount,
		DestinationCaller: req.ExpectedDestinationCaller(),
		MaxFee:            new(big.Int).SetUint64(maxFee),
		MinFinality:       req.Finality,
		HookData:          req.HookPayload,
	}

	r.status("burning %s USDC on %s", types.FormatUSDC(req.Amount), src.Key)
	var burnHash common.Hash
	if req.Mode == types.ModeHook {
		burnHash, err = o.adapter.BurnWithHook(ctx, w, params)
	} else {
		burnHash, err = o.adapter.Burn(ctx, w, params)
	}
	if err != nil {
		o.metrics.IncBroadcastErrors(src.Key, "burn")
		r.fail(err)
		return nil, false
	}

	r.state.BurnTxHash = burnHash
	r.state.RequestID = burnHash.Hex()
	// the burn is on chain: the checkpoint must outlive the caller
	if err := o.store.Save(context.WithoutCancel(ctx), types.NewCheckpoint(req, burnHash)); err != nil {
		r.logger.Error("Unable to persist checkpoint", "burn_tx", burnHash.Hex(), "error", err)
	}
	r.transition(types.PhaseBurnSubmitted, fmt.Sprintf("burn %s submitted, waiting for confirmation", burnHash.Hex()))

	receipt, err := w.WaitMined(ctx, burnHash)
	if err != nil {
		if errors.Is(err, types.ErrReverted) {
			// nothing was burned
			r.markDone()
			r.fail(fmt.Errorf("burn %s: %w", burnHash.Hex(), err))
			return nil, false
		}
		r.stop(err)
		return nil, false
	}
	return receipt, true
}

// Resume re-enters a transfer at AWAITING_ATTESTATION from a recorded burn hash.
// The returned channel must be drained.
func (o *Orchestrator) Resume(ctx context.Context, burnTxHash common.Hash, req *types.TransferRequest) <-chan types.TransferState {
	out := make(chan types.TransferState)
	r := o.newRun(req, types.TransferState{
		RequestID:  burnTxHash.Hex(),
		Phase:      types.PhaseAwaitingAttestation,
		BurnTxHash: burnTxHash,
	}, out)

	go func() {
		defer close(out)

		if err := o.registry.ValidateRequest(r.req); err != nil {
			r.fail(err)
			return
		}
		persistCtx := context.WithoutCancel(ctx)
		if _, err := o.store.Get(persistCtx, burnTxHash); errors.Is(err, store.ErrNotFound) {
			if err := o.store.Save(persistCtx, types.NewCheckpoint(req, burnTxHash)); err != nil {
				r.logger.Error("Unable to persist checkpoint", "burn_tx", burnTxHash.Hex(), "error", err)
			}
		}

		w := o.wallets.NewWallet()
		var message []byte
		if o.adapter.Version() == types.APIVersionV1 {
			r.status("reading burn receipt on %s", req.Source.Key)
			if err := w.SwitchChain(ctx, req.Source); err != nil {
				r.stop(err)
				return
			}
			receipt, err := w.WaitMined(ctx, burnTxHash)
			if err != nil {
				r.stop(err)
				return
			}
			if message, err = o.adapter.MessageFromReceipt(receipt, req.Source); err != nil {
				r.fail(err)
				return
			}
		}
		r.attestAndFinalize(ctx, w, message)
	}()
	return out
}

func (r *run) attestAndFinalize(ctx context.Context, w types.Wallet, message []byte) {
	req := r.req
	r.transition(types.PhaseAwaitingAttestation, "waiting for attestation")

	query := types.AttestationQuery{
		SourceDomain: req.Source.Domain,
		BurnTxHash:   r.state.BurnTxHash,
		Message:      message,
	}
	record, err := r.o.poller.AwaitAttestation(ctx, query, func(status types.AttestationStatus, changed bool) {
		if changed && status != types.AttestationReady {
			r.status("waiting for attestation (%s)", status)
		}
	})
	if err != nil {
		r.stop(err)
		return
	}

	r.state.Message = record.Message
	r.state.Attestation = record.Attestation
	r.transition(types.PhaseAttested, "attestation received")

	r.finalize(ctx, w, record, query)
}

// Finalize mints an attested transfer on the destination chain and returns the terminal state.
// It is idempotent: a message the destination already consumed yields COMPLETE.
func (o *Orchestrator) Finalize(ctx context.Context, state types.TransferState, req *types.TransferRequest) types.TransferState {
	r := o.newRun(req, state, nil)
	if err := o.registry.ValidateRequest(r.req); err != nil {
		r.fail(err)
		return r.state
	}
	if len(state.Message) == 0 || len(state.Attestation) == 0 {
		r.fail(fmt.Errorf("%w: finalize requires the attested message", types.ErrInvalidRequest))
		return r.state
	}
	record := &types.AttestationRecord{Message: state.Message, Attestation: state.Attestation}
	query := types.AttestationQuery{SourceDomain: req.Source.Domain, BurnTxHash: state.BurnTxHash, Message: state.Message}
	r.finalize(ctx, o.wallets.NewWallet(), record, query)
	return r.state
}

func (r *run) finalize(ctx context.Context, w types.Wallet, record *types.AttestationRecord, query types.AttestationQuery) {
	o, req := r.o, r.req
	dst := req.Destination

	header, err := o.adapter.ParseHeader(r.state.Message)
	if err != nil {
		r.fail(fmt.Errorf("%w: %v", types.ErrInvalidRequest, err))
		return
	}
	if header.DestinationDomain != dst.Domain {
		r.fail(fmt.Errorf("%w: message is for domain %d, request destination %s is domain %d",
			types.ErrInvalidRequest, header.DestinationDomain, dst.Key, dst.Domain))
		return
	}
	if expected, got := req.ExpectedDestinationCaller(), header.DestinationCallerAddress(); got != expected {
		r.fail(fmt.Errorf("%w: message destination caller %s, %s mode expects %s",
			types.ErrRelayerMismatch, got.Hex(), req.Mode, expected.Hex()))
		return
	}

	if active := w.ActiveChain(); active == nil || active.Key != dst.Key {
		r.status("switching network to %s", dst.Key)
	}
	if err := w.SwitchChain(ctx, dst); err != nil {
		r.stop(err)
		return
	}

	executed, err := o.adapter.IsExecuted(ctx, w, dst, header)
	if err != nil {
		r.logger.Debug("usedNonces pre-check failed", "error", err)
	} else if executed {
		r.complete("message already received on " + dst.Key)
		return
	}

	if o.reattester != nil && record.ExpirationBlock != 0 {
		if head, err := w.BlockNumber(ctx); err == nil {
			refreshed, ok, err := o.reattester.Refresh(ctx, query, record, head)
			if err != nil {
				r.logger.Error("Re-attestation failed; minting with the current attestation", "error", err)
			} else if ok {
				r.state.Message = refreshed.Message
				r.state.Attestation = refreshed.Attestation
				r.status("attestation refreshed")
			}
		}
	}

	if err := ctx.Err(); err != nil {
		r.abandon(err)
		return
	}

	r.status("minting on %s", dst.Key)
	var mintHash common.Hash
	if req.Mode == types.ModeHook {
		mintHash, err = o.adapter.MintAndLog(ctx, w, dst, r.state.Message, r.state.Attestation)
	} else {
		mintHash, err = o.adapter.ReceiveMessage(ctx, w, dst, r.state.Message, r.state.Attestation)
	}
	if err != nil {
		if errors.Is(err, types.ErrAlreadyExecuted) {
			r.complete("message already received on " + dst.Key)
			return
		}
		o.metrics.IncBroadcastErrors(dst.Key, "mint")
		r.stop(err)
		return
	}

	r.state.MintTxHash = mintHash
	r.transition(types.PhaseMintSubmitted, fmt.Sprintf("mint %s submitted, waiting for confirmation", mintHash.Hex()))

	// the mint is on the network; its outcome is awaited even if the caller goes away
	if _, err := w.WaitMined(context.WithoutCancel(ctx), mintHash); err != nil {
		if errors.Is(err, types.ErrReverted) {
			if executed, checkErr := o.adapter.IsExecuted(context.WithoutCancel(ctx), w, dst, header); checkErr == nil && executed {
				r.complete("message already received on " + dst.Key)
				return
			}
		}
		r.fail(fmt.Errorf("mint %s: %w", mintHash.Hex(), err))
		return
	}

	r.complete("complete")
}

func usdcFloat(units *big.Int) float64 {
	v, err := math.LegacyNewDecFromInt(math.NewIntFromBigInt(units)).QuoInt64(1_000_000).Float64()
	if err != nil {
		return 0
	}
	return v
}
