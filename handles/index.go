package handles

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"cosmossdk.io/log"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pascaldekloe/etherstream"

	cctpeth "github.com/handlepay/handlepay-cctp/ethereum"
	"github.com/handlepay/handlepay-cctp/types"
)

var (
	memberCreatedEvent = cctpeth.HandleRegistryABI.Events["MemberCreated"]
	handleAddedEvent   = cctpeth.HandleRegistryABI.Events["HandleAdded"]
)

const resubscribeDelay = 5 * time.Second

type handleEntry struct {
	memberID *big.Int
	username string
	block    uint64
	index    uint
}

func (e handleEntry) newerThan(o handleEntry) bool {
	if e.block != o.block {
		return e.block > o.block
	}
	return e.index > o.index
}

// Index keeps registry handles in memory from MemberCreated and HandleAdded logs.
type Index struct {
	address    common.Address
	startBlock uint64
	members    *RegistryResolver // optional isActive check
	logger     log.Logger

	mu        sync.RWMutex
	handles   map[string]handleEntry
	wallets   map[string]common.Address
	lastBlock uint64
	synced    bool
}

var _ types.HandleResolver = (*Index)(nil)

func NewIndex(address common.Address, startBlock uint64, members *RegistryResolver, logger log.Logger) *Index {
	return &Index{
		address:    address,
		startBlock: startBlock,
		members:    members,
		logger:     logger.With("strategy", "index"),
		handles:    make(map[string]handleEntry),
		wallets:    make(map[string]common.Address),
	}
}

func (x *Index) Name() string {
	return "index"
}

// Start backfills registry history and then follows new logs until ctx is done.
func (x *Index) Start(ctx context.Context, client *ethclient.Client) {
	reader := etherstream.Reader{Backend: client}
	from := x.startBlock

	for {
		query := ethereum.FilterQuery{
			Addresses: []common.Address{x.address},
			Topics:    [][]common.Hash{{memberCreatedEvent.ID, handleAddedEvent.ID}},
			FromBlock: new(big.Int).SetUint64(from),
		}

		stream, sub, history, err := reader.QueryWithHistory(ctx, &query)
		if err != nil {
			x.logger.Error("Unable to subscribe to registry logs", "error", err)
		} else {
			for i := range history {
				x.apply(&history[i])
			}
			x.markSynced()
			x.logger.Info("Registry index synced", "from", from, "logs", len(history), "handles", x.Size())

			err = x.follow(ctx, stream, sub)
			sub.Unsubscribe()
			if ctx.Err() != nil {
				return
			}
			x.logger.Error("Registry log subscription dropped", "error", err)
		}

		from = x.resumeBlock()
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

func (x *Index) follow(ctx context.Context, stream <-chan ethtypes.Log, sub ethereum.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case l, ok := <-stream:
			if !ok {
				return fmt.Errorf("registry log stream closed")
			}
			x.apply(&l)
		}
	}
}

func (x *Index) markSynced() {
	x.mu.Lock()
	x.synced = true
	x.mu.Unlock()
}

func (x *Index) resumeBlock() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.lastBlock >= x.startBlock {
		return x.lastBlock
	}
	return x.startBlock
}

func (x *Index) apply(l *ethtypes.Log) {
	if l.Removed || len(l.Topics) < 2 {
		return
	}
	memberID := new(big.Int).SetBytes(l.Topics[1].Bytes())

	switch l.Topics[0] {
	case memberCreatedEvent.ID:
		values, err := memberCreatedEvent.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil || len(values) != 1 {
			x.logger.Error("Unable to decode MemberCreated", "tx", l.TxHash.Hex(), "error", err)
			return
		}
		wallet, _ := values[0].(common.Address)
		x.mu.Lock()
		x.wallets[memberID.String()] = wallet
		x.mu.Unlock()

	case handleAddedEvent.ID:
		values, err := handleAddedEvent.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil || len(values) != 2 {
			x.logger.Error("Unable to decode HandleAdded", "tx", l.TxHash.Hex(), "error", err)
			return
		}
		platform, _ := values[0].(string)
		username, _ := values[1].(string)
		entry := handleEntry{memberID: memberID, username: username, block: l.BlockNumber, index: l.Index}
		key := indexKey(NormalizePlatform(platform), username)

		x.mu.Lock()
		if prev, ok := x.handles[key]; !ok || entry.newerThan(prev) {
			x.handles[key] = entry
		}
		x.mu.Unlock()

	default:
		return
	}

	x.mu.Lock()
	if l.BlockNumber > x.lastBlock {
		x.lastBlock = l.BlockNumber
	}
	x.mu.Unlock()
}

func indexKey(platform, username string) string {
	return platform + ":" + username
}

// Resolve picks the most recently added spelling among the candidates.
func (x *Index) Resolve(ctx context.Context, platform, username string) (*types.HandleBinding, error) {
	platform = NormalizePlatform(platform)

	x.mu.RLock()
	var (
		best  handleEntry
		found bool
	)
	for _, c := range Candidates(username) {
		if e, ok := x.handles[indexKey(platform, c)]; ok && (!found || e.newerThan(best)) {
			best, found = e, true
		}
	}
	var wallet common.Address
	if found {
		wallet = x.wallets[best.memberID.String()]
	}
	synced := x.synced
	x.mu.RUnlock()

	if !found || wallet == (common.Address{}) {
		if !synced {
			return nil, fmt.Errorf("%w: registry index not synced", types.ErrHandleNotFound)
		}
		return nil, fmt.Errorf("%w: %s:%s", types.ErrHandleNotFound, platform, username)
	}

	if x.members != nil {
		member, err := x.members.Member(ctx, best.memberID)
		if err != nil {
			return nil, err
		}
		if !member.IsActive {
			return nil, fmt.Errorf("%w: %s:%s (member %s)", types.ErrMemberInactive, platform, best.username, best.memberID)
		}
	}

	return &types.HandleBinding{
		Platform: platform,
		Username: best.username,
		Wallet:   wallet,
		MemberID: new(big.Int).Set(best.memberID),
	}, nil
}

// Size returns the number of indexed handles.
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.handles)
}
