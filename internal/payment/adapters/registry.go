package adapters

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/trailpay/internal/payment/domain"
)

// Registry maps a provider name to the factory building its webhook adapter.
type Registry struct {
	factories map[string]domain.AdapterFactory
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{factories: map[string]domain.AdapterFactory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		if provider := normalize(factory.Provider()); provider != "" {
			registry.factories[provider] = factory
		}
	}
	return registry
}

// NewAdapter builds a configured adapter for provider.
func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	provider = normalize(provider)
	if r == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, provider)
	}
	factory, ok := r.factories[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, provider)
	}
	return factory.NewAdapter(cfg)
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
