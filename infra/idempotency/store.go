// Package idempotency stores payment results by idempotency key so a retried
// request is answered from the first outcome instead of charging twice.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/mstgnz/walletpay/infra/config"
	"github.com/mstgnz/walletpay/infra/logger"
	"github.com/mstgnz/walletpay/payment"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendNone   = "none"

	DefaultMaxEntries = 10000
)

// Stats describes the state of a store
type Stats struct {
	Backend     string `json:"backend"`
	Size        int    `json:"size"`
	InFlight    int    `json:"in_flight"`
	MaxSize     int    `json:"max_size,omitempty"`
	Hits        int64  `json:"hits,omitempty"`
	Misses      int64  `json:"misses,omitempty"`
	Evictions   int64  `json:"evictions,omitempty"`
	TTLExpiries int64  `json:"ttl_expiries,omitempty"`
	TTL         string `json:"ttl"`
}

// Store is a payment.Deduplicator with housekeeping
type Store interface {
	payment.Deduplicator
	Cleanup()
	Stats() Stats
}

// New builds the store selected by IDEMPOTENCY_BACKEND. It returns a nil
// Store for the "none" backend.
func New(cfg *config.AppConfig) (Store, error) {
	switch cfg.IdempotencyBackend {
	case "", BackendMemory:
		return NewMemoryStore(cfg.IdempotencyMaxSize, cfg.IdempotencyTTL), nil
	case BackendSQLite:
		store, err := NewSQLiteStore(cfg.SQLitePath, cfg.IdempotencyTTL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown idempotency backend %q", cfg.IdempotencyBackend)
	}
}

// RunCleanup expires old keys every interval until ctx is done
func RunCleanup(ctx context.Context, store Store, interval time.Duration) {
	if store == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Cleanup()
			stats := store.Stats()
			logger.Info("Idempotency store cleaned", logger.LogContext{Fields: map[string]any{
				"backend":   stats.Backend,
				"size":      stats.Size,
				"in_flight": stats.InFlight,
			}})
		}
	}
}
