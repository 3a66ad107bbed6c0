package provider

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownGateway is returned for a gateway name nothing registered
var ErrUnknownGateway = errors.New("payment gateway is not registered")

// ProviderFactory creates an uninitialized gateway
type ProviderFactory func() GatewayProvider

// ProviderRegistry maps gateway names, as they appear in the tokenization
// specification, to their factories. Names are case-insensitive.
type ProviderRegistry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{factories: map[string]ProviderFactory{}}
}

func normalizeGatewayName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a gateway factory. Registering the same name twice or a nil
// factory panics, since both are wiring mistakes made in init functions.
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	key := normalizeGatewayName(name)
	if key == "" || factory == nil {
		panic("provider: Register called with an empty name or nil factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[key]; dup {
		panic("provider: Register called twice for gateway " + key)
	}
	r.factories[key] = factory
}

// Get returns the factory registered under name
func (r *ProviderRegistry) Get(name string) (ProviderFactory, error) {
	r.mu.RLock()
	factory, ok := r.factories[normalizeGatewayName(name)]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return factory, nil
}

// CreateProvider returns a fresh, uninitialized gateway
func (r *ProviderRegistry) CreateProvider(name string) (GatewayProvider, error) {
	factory, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return factory(), nil
}

// GetProviderNames returns the registered gateway names, sorted
func (r *ProviderRegistry) GetProviderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultRegistry holds the gateways registered by the provider subpackages
var DefaultRegistry = NewProviderRegistry()

func Register(name string, factory ProviderFactory) { DefaultRegistry.Register(name, factory) }

func Get(name string) (ProviderFactory, error) { return DefaultRegistry.Get(name) }

func CreateProvider(name string) (GatewayProvider, error) { return DefaultRegistry.CreateProvider(name) }

func GetProviderNames() []string { return DefaultRegistry.GetProviderNames() }
