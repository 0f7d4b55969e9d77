package filters

import (
	"context"
	"fmt"

	"cosmossdk.io/log"

	"github.com/handlepay/handlepay-cctp/types"
)

// RouteFilter validates transfers against enabled CCTP routes
type RouteFilter struct {
	enabledRoutes map[types.Domain][]types.Domain
	logger        log.Logger
}

var _ types.TransferFilter = (*RouteFilter)(nil)

func NewRouteFilter() *RouteFilter {
	return &RouteFilter{}
}

func (f *RouteFilter) Name() string {
	return "route"
}

func (f *RouteFilter) RejectionError() error {
	return types.ErrRouteDisabled
}

func (f *RouteFilter) Initialize(ctx context.Context, config map[string]interface{}, logger log.Logger) error {
	f.logger = logger
	routesRaw, ok := config["enabled_routes"]
	if !ok {
		return fmt.Errorf("route filter requires 'enabled_routes' in config")
	}
	routes, ok := routesRaw.(map[types.Domain][]types.Domain)
	if !ok {
		return fmt.Errorf("enabled_routes has invalid type")
	}
	f.enabledRoutes = routes
	logger.Info("Route filter initialized", "route_count", len(routes))
	return nil
}

func (f *RouteFilter) Filter(ctx context.Context, req *types.TransferRequest) (bool, string, error) {
	src, dst := req.Source.Domain, req.Destination.Domain
	destDomains, ok := f.enabledRoutes[src]
	if !ok {
		reason := fmt.Sprintf("route disabled: source_domain=%d dest_domain=%d (source not configured)", src, dst)
		return true, reason, nil
	}
	for _, dd := range destDomains {
		if dd == dst {
			return false, "", nil
		}
	}
	reason := fmt.Sprintf("route disabled: source_domain=%d dest_domain=%d (destination not in route)", src, dst)
	return true, reason, nil
}

func (f *RouteFilter) Close() error {
	return nil
}
