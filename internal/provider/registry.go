package provider

import (
	"fmt"

	"github.com/adrienlc/payhub-backend/internal/domain"
)

// Registry resolves a provider name to its gateway. Built once at startup;
// read-only afterwards.
type Registry struct {
	gateways map[domain.Provider]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	byName := make(map[domain.Provider]Gateway, len(gateways))
	for _, gw := range gateways {
		byName[gw.Name()] = gw
	}
	return &Registry{gateways: byName}
}

func (r *Registry) Resolve(name domain.Provider) (Gateway, error) {
	gw, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("Resolve: %q: %w", name, domain.ErrUnsupportedProvider)
	}
	return gw, nil
}
