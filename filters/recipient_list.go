package filters

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cosmossdk.io/log"
	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gomodule/redigo/redis"

	"github.com/handlepay/handlepay-cctp/types"
)

const DefaultRecipientListRefreshInterval = 300 // 5 minutes

// AddressSource supplies the addresses of a recipient list.
type AddressSource interface {
	FetchList(ctx context.Context) ([]string, error)
	Close() error
}

type staticSource []string

func (s staticSource) FetchList(context.Context) ([]string, error) { return s, nil }
func (s staticSource) Close() error                                { return nil }

// redisSource reads the list from a Redis set so operators can edit it without a restart.
type redisSource struct {
	pool *redis.Pool
	key  string
}

func newRedisSource(address, key string) *redisSource {
	return &redisSource{
		pool: &redis.Pool{
			MaxIdle:     1,
			IdleTimeout: 240 * time.Second,
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", address, redis.DialConnectTimeout(5*time.Second))
			},
		},
		key: key,
	}
}

func (s *redisSource) FetchList(ctx context.Context) ([]string, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return redis.Strings(conn.Do("SMEMBERS", s.key))
}

func (s *redisSource) Close() error {
	return s.pool.Close()
}

// RecipientListFilter allows or blocks mint recipients by address.
// In allow mode only listed recipients pass; in block mode listed recipients are rejected.
type RecipientListFilter struct {
	mu              sync.RWMutex
	addresses       map[string]bool
	allow           bool
	source          AddressSource
	refreshInterval time.Duration
	logger          log.Logger
	stopCh          chan struct{}
}

var _ types.TransferFilter = (*RecipientListFilter)(nil)

func NewRecipientListFilter() *RecipientListFilter {
	return &RecipientListFilter{
		addresses: make(map[string]bool),
		stopCh:    make(chan struct{}),
	}
}

func (f *RecipientListFilter) Name() string {
	return "recipient-list"
}

func (f *RecipientListFilter) Initialize(ctx context.Context, config map[string]interface{}, logger log.Logger) error {
	f.logger = logger

	mode, _ := config["mode"].(string)
	switch mode {
	case "allow":
		f.allow = true
	case "block", "":
	default:
		return fmt.Errorf("recipient-list mode must be 'allow' or 'block', got %q", mode)
	}

	switch {
	case config["redis_key"] != nil:
		key, _ := config["redis_key"].(string)
		address, _ := config["redis_address"].(string)
		if key == "" || address == "" {
			return fmt.Errorf("recipient-list filter requires 'redis_address' with 'redis_key'")
		}
		f.source = newRedisSource(address, key)
	case config["addresses"] != nil:
		list, err := stringList(config["addresses"])
		if err != nil {
			return err
		}
		f.source = staticSource(list)
	default:
		return fmt.Errorf("recipient-list filter requires 'addresses' or 'redis_key' in config")
	}

	refreshInterval := DefaultRecipientListRefreshInterval
	if val, ok := config["refresh_interval"].(int); ok && val > 0 {
		refreshInterval = val
	}
	f.refreshInterval = time.Duration(refreshInterval) * time.Second

	if err := f.refresh(ctx); err != nil {
		f.logger.Error("Failed to fetch initial recipient list", "error", err)
		return err
	}

	f.logger.Info("Recipient list filter initialized",
		"allow", f.allow,
		"refresh_interval", f.refreshInterval,
		"initial_count", f.Count())

	if _, static := f.source.(staticSource); !static {
		go f.startRefresh(ctx)
	}
	return nil
}

func (f *RecipientListFilter) Filter(ctx context.Context, req *types.TransferRequest) (shouldFilter bool, reason string, err error) {
	listed := f.isListed(req.Recipient.Hex())
	if f.allow && !listed {
		return true, fmt.Sprintf("recipient %s is not on the allow list", req.Recipient.Hex()), nil
	}
	if !f.allow && listed {
		return true, fmt.Sprintf("recipient %s is blocked", req.Recipient.Hex()), nil
	}
	return false, "", nil
}

// Close stops the background refresh and cleans up resources
func (f *RecipientListFilter) Close() error {
	close(f.stopCh)
	if f.source != nil {
		return f.source.Close()
	}
	return nil
}

func (f *RecipientListFilter) startRefresh(ctx context.Context) {
	ticker := time.NewTicker(f.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Recipient list filter stopping")
			return
		case <-f.stopCh:
			return
		case <-ticker.C:
			if err := f.refresh(ctx); err != nil {
				f.logger.Error("Failed to refresh recipient list", "error", err)
			} else {
				f.logger.Debug("Recipient list refreshed", "count", f.Count())
			}
		}
	}
}

func (f *RecipientListFilter) refresh(ctx context.Context) error {
	addresses, err := f.source.FetchList(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]bool, len(addresses))
	for _, addr := range addresses {
		normalized := normalizeAddress(addr)
		if normalized == "" {
			f.logger.Info("Skipping invalid recipient list entry", "address", addr)
			continue
		}
		next[normalized] = true
	}

	f.mu.Lock()
	f.addresses = next
	f.mu.Unlock()

	if len(next) == 0 {
		f.logger.Info("Recipient list is empty after refresh")
	}
	return nil
}

func (f *RecipientListFilter) isListed(address string) bool {
	normalized := normalizeAddress(address)
	if normalized == "" {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.addresses[normalized]
}

func (f *RecipientListFilter) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.addresses)
}

func normalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return ""
	}
	checksummed := common.HexToAddress(address).Hex()
	if ethav.Validate(checksummed) != nil {
		return ""
	}
	return strings.ToLower(checksummed)
}

func stringList(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("addresses must be strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("addresses has invalid type %T", raw)
	}
}
