package circle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/log"

	"github.com/handlepay/handlepay-cctp/relayer"
	"github.com/handlepay/handlepay-cctp/types"
)

const allowanceToken = "USDC"

// FastTransferAllowance queries the remaining Fast Transfer capacity for burns out of sourceDomain.
func (c *Client) FastTransferAllowance(ctx context.Context, sourceDomain types.Domain) (*types.FastTransferAllowance, error) {
	path := fmt.Sprintf("/v2/fastBurn/%s/allowance?sourceDomain=%d", allowanceToken, sourceDomain)

	var allowance types.FastTransferAllowance
	if err := c.get(ctx, path, &allowance); err != nil {
		return nil, err
	}
	return &allowance, nil
}

// AllowanceState stores Fast Transfer allowance state per domain
type AllowanceState struct {
	mu         sync.RWMutex
	allowances map[types.Domain]*types.FastTransferAllowance
}

func NewAllowanceState() *AllowanceState {
	return &AllowanceState{
		allowances: make(map[types.Domain]*types.FastTransferAllowance),
	}
}

func (a *AllowanceState) Get(domain types.Domain) *types.FastTransferAllowance {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.allowances[domain]
}

func (a *AllowanceState) Set(domain types.Domain, allowance *types.FastTransferAllowance) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allowances[domain] = allowance
}

// Covers reports whether the last known allowance can absorb amount (smallest units).
// Unknown domains report true.
func (a *AllowanceState) Covers(domain types.Domain, amount uint64) bool {
	allowance := a.Get(domain)
	if allowance == nil {
		return true
	}
	return allowance.Allowance*1e6 >= float64(amount)
}

// AllowanceMonitor tracks Fast Transfer allowance across source domains
type AllowanceMonitor struct {
	client   *Client
	logger   log.Logger
	metrics  *relayer.PromMetrics
	state    *AllowanceState
	domains  []types.Domain
	interval time.Duration
}

func NewAllowanceMonitor(client *Client, cfg types.CircleSettings, logger log.Logger, domains []types.Domain, metrics *relayer.PromMetrics) *AllowanceMonitor {
	interval := cfg.AllowanceMonitorInterval
	if interval == 0 {
		interval = 30 * time.Second
	}

	return &AllowanceMonitor{
		client:   client,
		logger:   logger.With("component", "allowance-monitor"),
		metrics:  metrics,
		state:    NewAllowanceState(),
		domains:  domains,
		interval: interval,
	}
}

func (m *AllowanceMonitor) State() *AllowanceState {
	return m.state
}

func (m *AllowanceMonitor) Start(ctx context.Context) {
	m.logger.Info("Starting Fast Transfer allowance monitoring", "domains", m.domains, "interval", m.interval)
	m.queryAllowances(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Stopping Fast Transfer allowance monitoring")
			return
		case <-ticker.C:
			m.queryAllowances(ctx)
		}
	}
}

func (m *AllowanceMonitor) queryAllowances(ctx context.Context) {
	for _, domain := range m.domains {
		allowance, err := m.client.FastTransferAllowance(ctx, domain)
		if err != nil {
			m.logger.Error("Failed to fetch allowance", "domain", domain, "error", err)
			continue
		}
		m.state.Set(domain, allowance)

		if m.metrics != nil {
			m.metrics.SetFastTransferAllowance(fmt.Sprint(domain), allowanceToken, allowance.Allowance)
		}
	}
}

// StartAllowanceMonitor starts background monitoring if v2 API and monitoring are enabled.
// Returns nil if disabled.
func StartAllowanceMonitor(ctx context.Context, client *Client, cfg types.CircleSettings, logger log.Logger, domains []types.Domain, metrics *relayer.PromMetrics) *AllowanceMonitor {
	apiVersion, err := cfg.GetAPIVersion()
	if err != nil {
		logger.Error("Failed to parse API version for allowance monitoring", "error", err)
		return nil
	}

	if apiVersion != types.APIVersionV2 {
		logger.Info("Fast Transfer allowance monitoring disabled (requires v2 API)")
		return nil
	}

	if !cfg.EnableFastTransferMonitoring {
		logger.Info("Fast Transfer allowance monitoring disabled by config")
		return nil
	}

	monitor := NewAllowanceMonitor(client, cfg, logger, domains, metrics)
	go monitor.Start(ctx)
	return monitor
}
