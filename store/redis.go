package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gomodule/redigo/redis"

	"github.com/handlepay/handlepay-cctp/types"
)

const defaultKeyPrefix = "handlepay:"

func timeoutDialOptions(cfg types.RedisSettings) []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
		redis.DialPassword(cfg.Password),
		redis.DialDatabase(cfg.DB),
	}
}

// RedisStore keeps each checkpoint as JSON under checkpoint:<hash> and indexes the
// unfinished ones in the checkpoints:pending set.
type RedisStore struct {
	pool   *redis.Pool
	prefix string
}

var _ CheckpointStore = (*RedisStore)(nil)

func NewRedisStore(cfg types.RedisSettings) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{
		pool: &redis.Pool{
			MaxIdle:     5,
			IdleTimeout: 240 * time.Second,
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", cfg.Address, timeoutDialOptions(cfg)...)
			},
		},
		prefix: prefix,
	}
}

func (s *RedisStore) checkpointKey(hash common.Hash) string {
	return fmt.Sprintf("%scheckpoint:%s", s.prefix, hash.Hex())
}

func (s *RedisStore) pendingKey() string {
	return s.prefix + "checkpoints:pending"
}

// Ping verifies the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Do("PING")
	return err
}

func (s *RedisStore) Save(ctx context.Context, cp *types.Checkpoint) error {
	if cp == nil || cp.BurnTxHash == (common.Hash{}) {
		return errors.New("checkpoint requires a burn tx hash")
	}
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	cpJSON, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("cannot marshal checkpoint to JSON: %w", err)
	}

	if err := conn.Send("MULTI"); err != nil {
		return err
	}
	if err := conn.Send("SET", s.checkpointKey(cp.BurnTxHash), cpJSON); err != nil {
		return err
	}
	if err := conn.Send("SADD", s.pendingKey(), cp.BurnTxHash.Hex()); err != nil {
		return err
	}
	if _, err := conn.Do("EXEC"); err != nil {
		return fmt.Errorf("error redis save checkpoint: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, burnTxHash common.Hash) (*types.Checkpoint, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return s.get(conn, burnTxHash)
}

func (s *RedisStore) get(conn redis.Conn, burnTxHash common.Hash) (*types.Checkpoint, error) {
	raw, err := redis.Bytes(conn.Do("GET", s.checkpointKey(burnTxHash)))
	if errors.Is(err, redis.ErrNil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error redis get checkpoint: %w", err)
	}
	cp := &types.Checkpoint{}
	if err := json.Unmarshal(raw, cp); err != nil {
		return nil, fmt.Errorf("cannot unmarshal checkpoint %s: %w", burnTxHash.Hex(), err)
	}
	return cp, nil
}

func (s *RedisStore) Pending(ctx context.Context) ([]*types.Checkpoint, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	hashes, err := redis.Strings(conn.Do("SMEMBERS", s.pendingKey()))
	if err != nil {
		return nil, fmt.Errorf("error redis list pending: %w", err)
	}

	out := make([]*types.Checkpoint, 0, len(hashes))
	for _, h := range hashes {
		cp, err := s.get(conn, common.HexToHash(h))
		if errors.Is(err, ErrNotFound) {
			// set member without a record
			if _, err := conn.Do("SREM", s.pendingKey(), h); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *RedisStore) MarkDone(ctx context.Context, burnTxHash common.Hash) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.Do("SREM", s.pendingKey(), burnTxHash.Hex()); err != nil {
		return fmt.Errorf("error redis mark done: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.pool.Close()
}
