package orchestrator_test

import (
	"context"
	"math/big"
	"os"
	"sync"
	"testing"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/handlepay/handlepay-cctp/circle"
	"github.com/handlepay/handlepay-cctp/orchestrator"
	"github.com/handlepay/handlepay-cctp/store"
	"github.com/handlepay/handlepay-cctp/types"
)

var (
	testLogger = log.NewLogger(os.Stdout, log.LevelOption(zerolog.ErrorLevel))

	signer       = common.HexToAddress("0x5150000000000000000000000000000000000001")
	recipient    = common.HexToAddress("0xABCD000000000000000000000000000000000000")
	hookReceiver = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	burnHash     = common.HexToHash("0xb0b0000000000000000000000000000000000000000000000000000000000001")
	testMessage  = []byte("cctp message")
	testSig      = []byte("signature")
)

func testRegistry(t *testing.T) *types.ChainRegistry {
	t.Helper()
	registry, err := types.NewChainRegistry(
		&types.ChainDescriptor{
			Key: "ethereum", ChainID: 1, Domain: 0,
			Asset:              common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
			TokenMessenger:     common.HexToAddress(types.TokenMessengerV2),
			MessageTransmitter: common.HexToAddress(types.MessageTransmitterV2),
		},
		&types.ChainDescriptor{
			Key: "base", ChainID: 8453, Domain: 6,
			Asset:              common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
			TokenMessenger:     common.HexToAddress(types.TokenMessengerV2),
			MessageTransmitter: common.HexToAddress(types.MessageTransmitterV2),
			HookReceiver:       hookReceiver,
		},
	)
	require.NoError(t, err)
	return registry
}

// counters shared by every wallet session a factory hands out
type ledger struct {
	mu        sync.Mutex
	wallets   int
	switches  []string
	calls     int
	transacts int
	waits     int
}

func (l *ledger) network() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.switches) + l.calls + l.transacts + l.waits
}

type fakeWallets struct {
	ledger  *ledger
	waitErr map[common.Hash]error
}

func (f *fakeWallets) NewWallet() types.Wallet {
	f.ledger.mu.Lock()
	f.ledger.wallets++
	f.ledger.mu.Unlock()
	return &fakeWallet{factory: f}
}

type fakeWallet struct {
	factory *fakeWallets
	active  *types.ChainDescriptor
}

func (w *fakeWallet) Address() common.Address              { return signer }
func (w *fakeWallet) ActiveChain() *types.ChainDescriptor { return w.active }

func (w *fakeWallet) SwitchChain(_ context.Context, c *types.ChainDescriptor) error {
	l := w.factory.ledger
	l.mu.Lock()
	l.switches = append(l.switches, c.Key)
	l.mu.Unlock()
	w.active = c
	return nil
}

func (w *fakeWallet) Call(context.Context, common.Address, []byte) ([]byte, error) {
	l := w.factory.ledger
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return nil, nil
}

// Transact derives the hash from the call so separate runs produce the same hashes.
func (w *fakeWallet) Transact(_ context.Context, to common.Address, data []byte) (common.Hash, error) {
	l := w.factory.ledger
	l.mu.Lock()
	l.transacts++
	l.mu.Unlock()
	return crypto.Keccak256Hash(to.Bytes(), data), nil
}

func (w *fakeWallet) WaitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	l := w.factory.ledger
	l.mu.Lock()
	l.waits++
	l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := w.factory.waitErr[hash]; err != nil {
		return nil, err
	}
	return &ethtypes.Receipt{TxHash: hash, Status: ethtypes.ReceiptStatusSuccessful}, nil
}

func (w *fakeWallet) BlockNumber(context.Context) (uint64, error) { return 100, nil }

type fakeAssets struct {
	mu        sync.Mutex
	balance   uint64
	allowance uint64
	approvals int
	transfers []common.Address
}

func (a *fakeAssets) BalanceOf(context.Context, types.Wallet, common.Address, common.Address) (*big.Int, error) {
	return new(big.Int).SetUint64(a.balance), nil
}

func (a *fakeAssets) Allowance(context.Context, types.Wallet, common.Address, common.Address, common.Address) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(big.Int).SetUint64(a.allowance), nil
}

func (a *fakeAssets) Approve(ctx context.Context, w types.Wallet, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	a.mu.Lock()
	a.approvals++
	a.allowance = amount.Uint64()
	a.mu.Unlock()
	return w.Transact(ctx, token, append([]byte("approve"), amount.Bytes()...))
}

func (a *fakeAssets) Transfer(ctx context.Context, w types.Wallet, token, to common.Address, amount *big.Int) (common.Hash, error) {
	a.mu.Lock()
	a.transfers = append(a.transfers, to)
	a.mu.Unlock()
	return w.Transact(ctx, token, append(to.Bytes(), amount.Bytes()...))
}

// fakeAdapter consumes nonces like a transmitter so a second mint is detected.
type fakeAdapter struct {
	mu         sync.Mutex
	header     types.MessageHeader
	burns      []types.BurnParams
	hookBurns  int
	receives   int
	mintAndLog int
	executed   bool
	receiveErr error
	calls      int

	// afterBurn runs once the burn hash is known, before it is returned.
	afterBurn func()
}

func (a *fakeAdapter) Version() types.APIVersion { return types.APIVersionV2 }

func (a *fakeAdapter) Burn(_ context.Context, _ types.Wallet, p types.BurnParams) (common.Hash, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.burns = append(a.burns, p)
	if a.afterBurn != nil {
		a.afterBurn()
	}
	return burnHash, nil
}

func (a *fakeAdapter) BurnWithHook(_ context.Context, _ types.Wallet, p types.BurnParams) (common.Hash, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.hookBurns++
	a.burns = append(a.burns, p)
	return burnHash, nil
}

func (a *fakeAdapter) mint(ctx context.Context, w types.Wallet, dst *types.ChainDescriptor, message []byte) (common.Hash, error) {
	a.mu.Lock()
	a.calls++
	err := a.receiveErr
	if err == nil {
		a.executed = true
	}
	a.mu.Unlock()
	if err != nil {
		return common.Hash{}, err
	}
	return w.Transact(ctx, dst.MessageTransmitter, message)
}

func (a *fakeAdapter) ReceiveMessage(ctx context.Context, w types.Wallet, dst *types.ChainDescriptor, message, _ []byte) (common.Hash, error) {
	a.mu.Lock()
	a.receives++
	a.mu.Unlock()
	return a.mint(ctx, w, dst, message)
}

func (a *fakeAdapter) MintAndLog(ctx context.Context, w types.Wallet, dst *types.ChainDescriptor, message, _ []byte) (common.Hash, error) {
	a.mu.Lock()
	a.mintAndLog++
	a.mu.Unlock()
	return a.mint(ctx, w, dst, message)
}

func (a *fakeAdapter) ParseHeader([]byte) (*types.MessageHeader, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.header
	return &h, nil
}

func (a *fakeAdapter) IsExecuted(context.Context, types.Wallet, *types.ChainDescriptor, *types.MessageHeader) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.executed, nil
}

func (a *fakeAdapter) MessageFromReceipt(*ethtypes.Receipt, *types.ChainDescriptor) ([]byte, error) {
	return testMessage, nil
}

type fakeFees struct {
	fee   uint64
	err   error
	calls int
}

func (f *fakeFees) EstimateMaxFeeForFinality(context.Context, types.Domain, types.Domain, uint64, types.Finality) (uint64, error) {
	f.calls++
	return f.fee, f.err
}

// fakePoller returns the record at once, or blocks until the context ends when block is set.
type fakePoller struct {
	block   bool
	queries []types.AttestationQuery
}

func (p *fakePoller) AwaitAttestation(ctx context.Context, q types.AttestationQuery, observe circle.PollObserver) (*types.AttestationRecord, error) {
	p.queries = append(p.queries, q)
	if p.block {
		observe(types.AttestationWaiting, true)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	observe(types.AttestationPending, true)
	observe(types.AttestationReady, true)
	return &types.AttestationRecord{Message: testMessage, Attestation: testSig}, nil
}

// ctxStore fails like a network store once the caller's context is done.
type ctxStore struct {
	*store.MemoryStore
}

func (s ctxStore) Save(ctx context.Context, cp *types.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Save(ctx, cp)
}

func (s ctxStore) Get(ctx context.Context, burnTxHash common.Hash) (*types.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.MemoryStore.Get(ctx, burnTxHash)
}

func (s ctxStore) MarkDone(ctx context.Context, burnTxHash common.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.MarkDone(ctx, burnTxHash)
}

type harness struct {
	registry *types.ChainRegistry
	ledger   *ledger
	wallets  *fakeWallets
	assets   *fakeAssets
	adapter  *fakeAdapter
	fees     *fakeFees
	poller   *fakePoller
	store    *store.MemoryStore
	orch     *orchestrator.Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		registry: testRegistry(t),
		ledger:   &ledger{},
		assets:   &fakeAssets{balance: 10_000_000},
		adapter:  &fakeAdapter{header: types.MessageHeader{SourceDomain: 6, DestinationDomain: 0}},
		fees:     &fakeFees{fee: 200},
		poller:   &fakePoller{},
		store:    store.NewMemoryStore(),
	}
	h.wallets = &fakeWallets{ledger: h.ledger}
	h.orch = orchestrator.New(h.registry, h.wallets, h.assets, h.adapter, h.fees, h.poller, testLogger,
		orchestrator.WithStore(h.store))
	return h
}

// withNetworkStore rebuilds the orchestrator over a store that honours cancellation.
func (h *harness) withNetworkStore() {
	h.orch = orchestrator.New(h.registry, h.wallets, h.assets, h.adapter, h.fees, h.poller, testLogger,
		orchestrator.WithStore(ctxStore{h.store}))
}

func (h *harness) request(t *testing.T, src, dst string) *types.TransferRequest {
	t.Helper()
	s, err := h.registry.Describe(src)
	require.NoError(t, err)
	d, err := h.registry.Describe(dst)
	require.NoError(t, err)
	return &types.TransferRequest{
		Source:      s,
		Destination: d,
		Recipient:   recipient,
		Amount:      2_000_000,
		Finality:    types.FinalityStandard,
		Mode:        types.ModeDirect,
	}
}

func drain(updates <-chan types.TransferState) []types.TransferState {
	var out []types.TransferState
	for s := range updates {
		out = append(out, s)
	}
	return out
}

func phases(states []types.TransferState) []types.Phase {
	var out []types.Phase
	for _, s := range states {
		if len(out) == 0 || out[len(out)-1] != s.Phase {
			out = append(out, s.Phase)
		}
	}
	return out
}
