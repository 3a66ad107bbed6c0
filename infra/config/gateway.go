package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// GatewayConfig holds gateway credentials keyed by gateway name
type GatewayConfig struct {
	configs map[string]map[string]string
	mu      sync.RWMutex
}

// NewGatewayConfig creates an empty gateway configuration
func NewGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		configs: make(map[string]map[string]string),
	}
}

// LoadGatewayConfigFromEnv collects every <GATEWAY>_<KEY> variable for the
// given gateways, e.g. STRIPE_SECRET_KEY becomes stripe/secretKey.
func LoadGatewayConfigFromEnv(gateways ...string) *GatewayConfig {
	c := NewGatewayConfig()
	environ := os.Environ()

	for _, gateway := range gateways {
		prefix := strings.ToUpper(gateway) + "_"
		conf := make(map[string]string)
		for _, kv := range environ {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || value == "" || !strings.HasPrefix(key, prefix) {
				continue
			}
			if name := envKeyToConfigKey(strings.TrimPrefix(key, prefix)); name != "" {
				conf[name] = value
			}
		}
		if len(conf) > 0 {
			c.configs[strings.ToLower(gateway)] = conf
		}
	}

	return c
}

// SetConfig stores the configuration for a gateway
func (c *GatewayConfig) SetConfig(gateway string, conf map[string]string) error {
	if gateway == "" {
		return fmt.Errorf("gateway name cannot be empty")
	}
	if len(conf) == 0 {
		return fmt.Errorf("config cannot be empty")
	}

	copied := make(map[string]string, len(conf))
	for k, v := range conf {
		copied[k] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs[strings.ToLower(gateway)] = copied
	return nil
}

// GetConfig returns a copy of the configuration for a gateway. A gateway with
// no configured keys yields an empty map.
func (c *GatewayConfig) GetConfig(gateway string) map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	conf := c.configs[strings.ToLower(gateway)]
	copied := make(map[string]string, len(conf))
	for k, v := range conf {
		copied[k] = v
	}
	return copied
}

// GetAvailableGateways returns the names of gateways with configuration
func (c *GatewayConfig) GetAvailableGateways() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.configs))
	for name := range c.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// envKeyToConfigKey turns SECRET_KEY into secretKey
func envKeyToConfigKey(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(part)
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}
