package circle

import (
	"context"
	"fmt"
	"time"

	"cosmossdk.io/log"

	"github.com/handlepay/handlepay-cctp/relayer"
	"github.com/handlepay/handlepay-cctp/types"
)

// PollObserver sees every classification. changed is true when it differs from the previous poll.
type PollObserver func(status types.AttestationStatus, changed bool)

// Poller waits for Iris to sign a burn's message.
type Poller struct {
	client   *Client
	version  types.APIVersion
	interval time.Duration
	maxWait  time.Duration
	logger   log.Logger
	metrics  *relayer.PromMetrics
}

func NewPoller(client *Client, cfg types.CircleSettings, logger log.Logger, metrics *relayer.PromMetrics) (*Poller, error) {
	version, err := cfg.GetAPIVersion()
	if err != nil {
		return nil, err
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = types.DefaultPollInterval
	}
	return &Poller{
		client:   client,
		version:  version,
		interval: interval,
		maxWait:  cfg.MaxAttestationWait,
		logger:   logger.With("component", "attestation-poller"),
		metrics:  metrics,
	}, nil
}

// AwaitAttestation polls at a fixed interval until the attestation is READY. Request failures are
// retried at the same interval. It returns only on READY, on ctx cancellation, or when the configured
// max wait elapses (wrapped ErrTimeout); the burn stays resumable in the last two cases.
func (p *Poller) AwaitAttestation(ctx context.Context, q types.AttestationQuery, observe PollObserver) (*types.AttestationRecord, error) {
	if p.maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.maxWait)
		defer cancel()
	}

	logger := p.logger.With("tx", q.BurnTxHash.Hex(), "source_domain", q.SourceDomain)
	domain := fmt.Sprint(q.SourceDomain)
	start := time.Now()

	var last types.AttestationStatus
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if p.maxWait > 0 && ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("%w: attestation for %s not ready after %s: %w", types.ErrTimeout, q.BurnTxHash, p.maxWait, ctx.Err())
			}
			return nil, ctx.Err()
		case <-timer.C:
		}

		status, record, err := p.client.CheckAttestation(ctx, p.version, q)
		if err != nil {
			if ctx.Err() == nil {
				logger.Debug("Attestation request failed, retrying", "error", err, "interval", p.interval)
			}
			timer.Reset(p.interval)
			continue
		}

		changed := status != last
		if changed {
			logger.Info("Attestation status", "status", status, "elapsed", time.Since(start).Round(time.Second))
			if p.metrics != nil {
				p.metrics.IncAttestation(domain, string(status))
			}
			last = status
		}
		if observe != nil {
			observe(status, changed)
		}

		if status == types.AttestationReady {
			if p.metrics != nil {
				p.metrics.ObserveAttestationWait(domain, time.Since(start).Seconds())
			}
			return record, nil
		}
		timer.Reset(p.interval)
	}
}
