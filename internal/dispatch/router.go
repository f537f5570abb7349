// ABOUTME: Locality routing: pure resolution of a method spec against the route table.
// ABOUTME: Same method and config always produce the same decision.

package dispatch

import (
	"github.com/2389/drawbridge/internal/config"
	"github.com/2389/drawbridge/internal/forward"
	"github.com/2389/drawbridge/internal/registry"
)

// Decision says where and how one call executes. Endpoint and Policy are
// meaningful only when Local is false; FallbackLocal permits a local retry
// when the endpoint is unreachable.
type Decision struct {
	Local         bool
	Endpoint      string
	FallbackLocal bool
	Policy        forward.Policy
}

// Route resolves a method's execution site from its locality class and the
// route table. It is a pure function: no clocks, no health state. Unreachable
// endpoints are the forwarding client's problem, not the router's.
func Route(spec *registry.MethodSpec, routes config.RoutesConfig) Decision {
	route := routeFor(spec.Domain, routes)
	policy := forward.Policy{
		Timeout: route.Timeout,
		Retries: route.Retries,
		Backoff: route.Backoff,
	}
	if policy.Timeout == 0 {
		policy.Timeout = forward.DefaultPolicy.Timeout
	}
	if policy.Backoff == 0 {
		policy.Backoff = forward.DefaultPolicy.Backoff
	}

	switch spec.Locality {
	case registry.LocalityRemote:
		return Decision{Endpoint: route.Endpoint, Policy: policy}
	case registry.LocalityRemoteFallbackLocal:
		return Decision{Endpoint: route.Endpoint, FallbackLocal: true, Policy: policy}
	default:
		return Decision{Local: true, Policy: policy}
	}
}

// LocalityFromRoutes maps the route table onto the registry's locality
// classes, for registry.Build.
func LocalityFromRoutes(routes config.RoutesConfig) func(registry.Domain) registry.Locality {
	return func(domain registry.Domain) registry.Locality {
		switch routeFor(domain, routes).Mode {
		case config.ModeRemote:
			return registry.LocalityRemote
		case config.ModeRemoteFallbackLocal:
			return registry.LocalityRemoteFallbackLocal
		default:
			return registry.LocalityLocal
		}
	}
}

func routeFor(domain registry.Domain, routes config.RoutesConfig) config.RouteConfig {
	switch domain {
	case registry.DomainAutomation:
		return routes.Automation
	case registry.DomainAI:
		return routes.AI
	default:
		// System methods have no route entry; they run locally under the
		// default policy's timeout.
		return config.RouteConfig{Mode: config.ModeLocal}
	}
}
