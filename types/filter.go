package types

import (
	"context"
	"fmt"

	"cosmossdk.io/log"
)

// TransferFilter rejects requests before any on-chain write.
type TransferFilter interface {
	Name() string
	Filter(ctx context.Context, req *TransferRequest) (shouldFilter bool, reason string, err error)
	Initialize(ctx context.Context, config map[string]interface{}, logger log.Logger) error
	Close() error
}

// FilterRegistry manages transfer filters
type FilterRegistry struct {
	filters []TransferFilter
	logger  log.Logger
}

func NewFilterRegistry(logger log.Logger) *FilterRegistry {
	return &FilterRegistry{
		filters: make([]TransferFilter, 0),
		logger:  logger,
	}
}

func (r *FilterRegistry) Register(filter TransferFilter) {
	r.filters = append(r.filters, filter)
	r.logger.Debug("Registered filter", "name", filter.Name())
}

// Filter returns the first filter that rejects req and its reason, or nil. A filter that errors is skipped.
func (r *FilterRegistry) Filter(ctx context.Context, req *TransferRequest) (TransferFilter, string) {
	for _, filter := range r.filters {
		filtered, reason, err := filter.Filter(ctx, req)
		if err != nil {
			r.logger.Error("Filter error", "filter", filter.Name(), "error", err)
			continue
		}
		if filtered {
			return filter, reason
		}
	}
	return nil, ""
}

// RejectionError is implemented by filters whose rejections map to a specific sentinel error.
type RejectionError interface {
	RejectionError() error
}

// Check runs the filters and converts a rejection into an error wrapping the filter's sentinel,
// or ErrInvalidRequest when the filter names none.
func (r *FilterRegistry) Check(ctx context.Context, req *TransferRequest) error {
	if r == nil {
		return nil
	}
	filter, reason := r.Filter(ctx, req)
	if filter == nil {
		return nil
	}
	sentinel := ErrInvalidRequest
	if re, ok := filter.(RejectionError); ok {
		sentinel = re.RejectionError()
	}
	return fmt.Errorf("%w: filtered by %s: %s", sentinel, filter.Name(), reason)
}

func (r *FilterRegistry) Close() error {
	for _, filter := range r.filters {
		if err := filter.Close(); err != nil {
			r.logger.Error("Error closing filter", "filter", filter.Name(), "error", err)
		}
	}
	return nil
}
