package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrienlc/payhub-backend/internal/domain"
)

type namedGateway struct {
	Gateway
	name domain.Provider
}

func (g namedGateway) Name() domain.Provider { return g.name }

func TestRegistryResolve(t *testing.T) {
	stripe := namedGateway{name: domain.ProviderStripe}
	paypal := namedGateway{name: domain.ProviderPayPal}
	registry := NewRegistry(stripe, paypal)

	got, err := registry.Resolve(domain.ProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderStripe, got.Name())

	got, err = registry.Resolve(domain.ProviderPayPal)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderPayPal, got.Name())
}

func TestRegistryResolveUnknown(t *testing.T) {
	registry := NewRegistry(namedGateway{name: domain.ProviderStripe})

	_, err := registry.Resolve(domain.Provider("square"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)
}
