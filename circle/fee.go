package circle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"

	"github.com/handlepay/handlepay-cctp/relayer"
	"github.com/handlepay/handlepay-cctp/types"
)

const maxBps = 10_000

// FeeEstimator turns Iris' minimum fee (basis points) into a maxFee bound for depositForBurn.
type FeeEstimator struct {
	client        *Client
	logger        log.Logger
	metrics       *relayer.PromMetrics
	retries       int
	retryInterval time.Duration
}

func NewFeeEstimator(client *Client, logger log.Logger, metrics *relayer.PromMetrics) *FeeEstimator {
	return &FeeEstimator{
		client:        client,
		logger:        logger.With("component", "fee-estimator"),
		metrics:       metrics,
		retries:       2,
		retryInterval: time.Second,
	}
}

// WithRetries overrides the transient-failure retry policy.
func (f *FeeEstimator) WithRetries(retries int, interval time.Duration) *FeeEstimator {
	f.retries = retries
	f.retryInterval = interval
	return f
}

// EstimateMaxFee uses the highest tier when Iris reports fees per finality.
func (f *FeeEstimator) EstimateMaxFee(ctx context.Context, src, dst types.Domain, amount uint64) (uint64, error) {
	return f.EstimateMaxFeeForFinality(ctx, src, dst, amount, 0)
}

func (f *FeeEstimator) EstimateMaxFeeForFinality(ctx context.Context, src, dst types.Domain, amount uint64, finality types.Finality) (uint64, error) {
	bps, err := f.MinimumFeeBps(ctx, src, dst, finality)
	if err != nil {
		return 0, err
	}
	fee, err := ComputeMaxFee(amount, bps)
	if err != nil {
		return 0, err
	}
	f.logger.Debug("Estimated max fee", "source_domain", src, "dest_domain", dst, "bps", bps.String(), "amount", amount, "max_fee", fee)
	return fee, nil
}

// MinimumFeeBps fetches the fee for a domain pair. Any failure maps to ErrFeeServiceUnavailable.
func (f *FeeEstimator) MinimumFeeBps(ctx context.Context, src, dst types.Domain, finality types.Finality) (math.LegacyDec, error) {
	path := fmt.Sprintf("/v2/burn/USDC/fees/%d/%d", src, dst)

	var (
		raw json.RawMessage
		err error
	)
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return math.LegacyDec{}, fmt.Errorf("%w: %w", types.ErrFeeServiceUnavailable, ctx.Err())
			case <-time.After(f.retryInterval):
			}
		}
		if err = f.client.get(ctx, path, &raw); err == nil {
			break
		}
		f.logger.Debug("Fee request failed", "attempt", attempt+1, "error", err)
	}
	if err != nil {
		return math.LegacyDec{}, fmt.Errorf("%w: %s: %v", types.ErrFeeServiceUnavailable, path, err)
	}

	bps, err := parseFeeBps(raw, finality)
	if err != nil {
		return math.LegacyDec{}, fmt.Errorf("%w: %s: %v", types.ErrFeeServiceUnavailable, path, err)
	}
	if f.metrics != nil {
		f.metrics.SetFeeBps(fmt.Sprint(src), fmt.Sprint(dst), bps.MustFloat64())
	}
	return bps, nil
}

// parseFeeBps accepts {"data":{"minimumFee":n}} and [{"finalityThreshold":t,"minimumFee":n}].
func parseFeeBps(raw json.RawMessage, finality types.Finality) (math.LegacyDec, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return math.LegacyDec{}, fmt.Errorf("empty fee payload")
	}

	if raw[0] == '[' {
		var tiers []types.FeeTier
		if err := json.Unmarshal(raw, &tiers); err != nil {
			return math.LegacyDec{}, fmt.Errorf("malformed fee payload: %w", err)
		}
		var (
			best  math.LegacyDec
			found bool
		)
		for _, tier := range tiers {
			bps, err := parseBps(tier.MinimumFee)
			if err != nil {
				return math.LegacyDec{}, err
			}
			if finality != 0 && tier.FinalityThreshold == uint32(finality) {
				return bps, nil
			}
			if !found || bps.GT(best) {
				best, found = bps, true
			}
		}
		if !found {
			return math.LegacyDec{}, fmt.Errorf("fee payload has no tiers")
		}
		return best, nil
	}

	var resp types.FeeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return math.LegacyDec{}, fmt.Errorf("malformed fee payload: %w", err)
	}
	if resp.Data == nil {
		return math.LegacyDec{}, fmt.Errorf("fee payload missing data.minimumFee")
	}
	return parseBps(resp.Data.MinimumFee)
}

func parseBps(n json.Number) (math.LegacyDec, error) {
	if n == "" {
		return math.LegacyDec{}, fmt.Errorf("fee payload missing minimumFee")
	}
	bps, err := math.LegacyNewDecFromStr(n.String())
	if err != nil {
		return math.LegacyDec{}, fmt.Errorf("malformed minimumFee %q: %w", n, err)
	}
	if bps.IsNegative() || bps.GT(math.LegacyNewDec(maxBps)) {
		return math.LegacyDec{}, fmt.Errorf("minimumFee %s outside [0, %d]", bps, maxBps)
	}
	return bps, nil
}

// ComputeMaxFee returns floor(amount * bps / 10000). bps must be within [0, 10000], so fee <= amount.
func ComputeMaxFee(amount uint64, bps math.LegacyDec) (uint64, error) {
	if bps.IsNil() || bps.IsNegative() || bps.GT(math.LegacyNewDec(maxBps)) {
		return 0, fmt.Errorf("%w: fee bps out of range", types.ErrFeeServiceUnavailable)
	}
	fee := math.LegacyNewDecFromInt(math.NewIntFromUint64(amount)).
		Mul(bps).
		QuoInt64(maxBps).
		TruncateInt()
	return fee.Uint64(), nil
}
