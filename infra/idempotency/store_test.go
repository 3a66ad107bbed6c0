package idempotency

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mstgnz/walletpay/infra/config"
	"github.com/mstgnz/walletpay/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var declined = payment.Result{State: payment.StateFailed, Reason: "card declined"}

func newSQLiteTestStore(t *testing.T, ttl time.Duration) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "idem.db"), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// backends runs the same behaviour against every persistent implementation
func backends(t *testing.T, ttl time.Duration) map[string]Store {
	return map[string]Store{
		BackendMemory: NewMemoryStore(10, ttl),
		BackendSQLite: newSQLiteTestStore(t, ttl),
	}
}

func TestStore_Lifecycle(t *testing.T) {
	for name, store := range backends(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			stored, err := store.Begin(ctx, "k1")
			require.NoError(t, err)
			assert.Nil(t, stored)

			_, err = store.Begin(ctx, "k1")
			assert.ErrorIs(t, err, payment.ErrPaymentInFlight)

			result := declined
			result.Err = fmt.Errorf("ignored")
			result.Replayed = true
			require.NoError(t, store.Complete(ctx, "k1", result))

			stored, err = store.Begin(ctx, "k1")
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, payment.StateFailed, stored.State)
			assert.Equal(t, "card declined", stored.Reason)
			assert.False(t, stored.Success)
			assert.Nil(t, stored.Err)
			assert.False(t, stored.Replayed)
		})
	}
}

func TestStore_Release(t *testing.T) {
	for name, store := range backends(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Begin(ctx, "k1")
			require.NoError(t, err)
			require.NoError(t, store.Release(ctx, "k1"))

			stored, err := store.Begin(ctx, "k1")
			require.NoError(t, err)
			assert.Nil(t, stored)

			assert.NoError(t, store.Release(ctx, "missing"))
		})
	}
}

func TestStore_Stats(t *testing.T) {
	for name, store := range backends(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, _ = store.Begin(ctx, "pending")
			_, _ = store.Begin(ctx, "done")
			require.NoError(t, store.Complete(ctx, "done", payment.Result{State: payment.StateSucceeded, Success: true}))

			stats := store.Stats()
			assert.Equal(t, name, stats.Backend)
			assert.Equal(t, 2, stats.Size)
			assert.Equal(t, 1, stats.InFlight)
			assert.Equal(t, "1h0m0s", stats.TTL)
		})
	}
}

func TestStore_ConcurrentBegin(t *testing.T) {
	for name, store := range backends(t, time.Hour) {
		t.Run(name, func(t *testing.T) {
			var owners, inFlight atomic.Int32
			var wg sync.WaitGroup

			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					stored, err := store.Begin(context.Background(), "same")
					switch {
					case err == nil && stored == nil:
						owners.Add(1)
					case err == payment.ErrPaymentInFlight:
						inFlight.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), owners.Load())
			assert.Equal(t, int32(9), inFlight.Load())
		})
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(10, time.Minute)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = store.Begin(ctx, "k1")
	require.NoError(t, store.Complete(ctx, "k1", declined))

	now = now.Add(2 * time.Minute)
	stored, err := store.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Equal(t, int64(1), store.Stats().TTLExpiries)

	_, _ = store.Begin(ctx, "k2")
	now = now.Add(2 * time.Minute)
	store.Cleanup()
	assert.Equal(t, 0, store.Size())
}

func TestMemoryStore_EvictsCompletedBeforePending(t *testing.T) {
	store := NewMemoryStore(2, 0)
	ctx := context.Background()

	_, _ = store.Begin(ctx, "pending")
	_, _ = store.Begin(ctx, "done")
	require.NoError(t, store.Complete(ctx, "done", declined))

	_, err := store.Begin(ctx, "new")
	require.NoError(t, err)

	_, err = store.Begin(ctx, "pending")
	assert.ErrorIs(t, err, payment.ErrPaymentInFlight)

	stored, err := store.Begin(ctx, "done")
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Equal(t, int64(1), store.Stats().Evictions)
}

func TestSQLiteStore_TTL(t *testing.T) {
	store := newSQLiteTestStore(t, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = store.Begin(ctx, "k1")
	require.NoError(t, store.Complete(ctx, "k1", declined))
	_, _ = store.Begin(ctx, "k2")

	now = now.Add(2 * time.Minute)
	stored, err := store.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, stored)

	store.Cleanup()
	assert.Equal(t, 1, store.Stats().Size)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idem.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(path, time.Hour)
	require.NoError(t, err)
	_, _ = first.Begin(ctx, "k1")
	require.NoError(t, first.Complete(ctx, "k1", payment.Result{State: payment.StateSucceeded, Success: true, GatewayReference: "ref-1"}))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path, time.Hour)
	require.NoError(t, err)
	defer second.Close()

	stored, err := second.Begin(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.Success)
	assert.Equal(t, "ref-1", stored.GatewayReference)
}

func TestNew(t *testing.T) {
	tests := []struct {
		backend string
		want    string
		wantErr bool
	}{
		{"", BackendMemory, false},
		{"memory", BackendMemory, false},
		{"sqlite", BackendSQLite, false},
		{"none", "", false},
		{"redis", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			store, err := New(&config.AppConfig{
				IdempotencyBackend: tt.backend,
				IdempotencyTTL:     time.Hour,
				IdempotencyMaxSize: 5,
				SQLitePath:         filepath.Join(t.TempDir(), "idem.db"),
			})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, store)
				return
			}
			assert.Equal(t, tt.want, store.Stats().Backend)
			if s, ok := store.(*SQLiteStore); ok {
				s.Close()
			}
		})
	}
}

func TestRunCleanup_StopsOnCancel(t *testing.T) {
	store := NewMemoryStore(10, time.Millisecond)
	_, _ = store.Begin(context.Background(), "k1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunCleanup(ctx, store, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.Size() == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not stop")
	}
}
