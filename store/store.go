package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/handlepay/handlepay-cctp/types"
)

var ErrNotFound = errors.New("checkpoint not found")

// CheckpointStore persists burns until their mint is final.
type CheckpointStore interface {
	Save(ctx context.Context, cp *types.Checkpoint) error
	Get(ctx context.Context, burnTxHash common.Hash) (*types.Checkpoint, error)
	// Pending lists checkpoints not yet marked done, oldest first.
	Pending(ctx context.Context) ([]*types.Checkpoint, error)
	// MarkDone records that the transfer reached a terminal phase.
	MarkDone(ctx context.Context, burnTxHash common.Hash) error
}

// MemoryStore keeps checkpoints for the life of the process.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[common.Hash]*types.Checkpoint
	pending     map[common.Hash]struct{}
}

var _ CheckpointStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[common.Hash]*types.Checkpoint),
		pending:     make(map[common.Hash]struct{}),
	}
}

func (s *MemoryStore) Save(_ context.Context, cp *types.Checkpoint) error {
	if cp == nil || cp.BurnTxHash == (common.Hash{}) {
		return errors.New("checkpoint requires a burn tx hash")
	}
	c := *cp
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[cp.BurnTxHash] = &c
	s.pending[cp.BurnTxHash] = struct{}{}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, burnTxHash common.Hash) (*types.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[burnTxHash]
	if !ok {
		return nil, ErrNotFound
	}
	c := *cp
	return &c, nil
}

func (s *MemoryStore) Pending(_ context.Context) ([]*types.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Checkpoint, 0, len(s.pending))
	for hash := range s.pending {
		c := *s.checkpoints[hash]
		out = append(out, &c)
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *MemoryStore) MarkDone(_ context.Context, burnTxHash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, burnTxHash)
	return nil
}

func sortOldestFirst(cps []*types.Checkpoint) {
	sort.Slice(cps, func(i, j int) bool {
		return cps[i].CreatedAt.Before(cps[j].CreatedAt)
	})
}
