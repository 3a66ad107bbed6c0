package idempotency

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/mstgnz/walletpay/payment"
)

// entry is a key that is either in flight or holds a stored result
type entry struct {
	key         string
	result      *payment.Result
	createdAt   time.Time
	listElement *list.Element
}

func (e *entry) pending() bool {
	return e.result == nil
}

// MemoryStore is an in-process LRU with TTL expiry. Keys in flight are never
// evicted, so the store may briefly exceed maxSize under load.
type MemoryStore struct {
	entries     map[string]*entry
	accessOrder *list.List // most recent at front
	maxSize     int
	ttl         time.Duration
	now         func() time.Time
	mu          sync.Mutex

	hits        int64
	misses      int64
	evictions   int64
	ttlExpiries int64
}

// NewMemoryStore creates an in-memory idempotency store
func NewMemoryStore(maxSize int, ttl time.Duration) *MemoryStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	return &MemoryStore{
		entries:     make(map[string]*entry),
		accessOrder: list.New(),
		maxSize:     maxSize,
		ttl:         ttl,
		now:         time.Now,
	}
}

// Begin claims a key or reports what already happened to it
func (s *MemoryStore) Begin(_ context.Context, key string) (*payment.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		if s.expiredUnsafe(e) {
			s.deleteEntryUnsafe(e)
			s.ttlExpiries++
		} else {
			s.accessOrder.MoveToFront(e.listElement)
			if e.pending() {
				return nil, payment.ErrPaymentInFlight
			}
			s.hits++
			stored := *e.result
			return &stored, nil
		}
	}

	s.misses++
	if len(s.entries) >= s.maxSize {
		s.evictLRUUnsafe()
	}

	e := &entry{key: key, createdAt: s.now()}
	e.listElement = s.accessOrder.PushFront(e)
	s.entries[key] = e
	return nil, nil
}

// Complete stores the decided result for a claimed key
func (s *MemoryStore) Complete(_ context.Context, key string, result payment.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := result
	stored.Err = nil
	stored.Replayed = false

	e, ok := s.entries[key]
	if !ok {
		e = &entry{key: key}
		e.listElement = s.accessOrder.PushFront(e)
		s.entries[key] = e
	}
	e.result = &stored
	e.createdAt = s.now()
	s.accessOrder.MoveToFront(e.listElement)
	return nil
}

// Release frees a claimed key so the payment can be retried
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		s.deleteEntryUnsafe(e)
	}
	return nil
}

// Cleanup removes expired entries
func (s *MemoryStore) Cleanup() {
	if s.ttl <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if s.expiredUnsafe(e) {
			s.deleteEntryUnsafe(e)
			s.ttlExpiries++
		}
	}
}

// Size returns the number of tracked keys
func (s *MemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats returns store statistics
func (s *MemoryStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Backend:     BackendMemory,
		Size:        len(s.entries),
		MaxSize:     s.maxSize,
		Hits:        s.hits,
		Misses:      s.misses,
		Evictions:   s.evictions,
		TTLExpiries: s.ttlExpiries,
		TTL:         s.ttl.String(),
	}
	for _, e := range s.entries {
		if e.pending() {
			stats.InFlight++
		}
	}
	return stats
}

func (s *MemoryStore) expiredUnsafe(e *entry) bool {
	return s.ttl > 0 && s.now().Sub(e.createdAt) > s.ttl
}

// evictLRUUnsafe drops the least recently used completed entry
func (s *MemoryStore) evictLRUUnsafe() {
	for el := s.accessOrder.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if e.pending() {
			continue
		}
		s.deleteEntryUnsafe(e)
		s.evictions++
		return
	}
}

func (s *MemoryStore) deleteEntryUnsafe(e *entry) {
	delete(s.entries, e.key)
	if e.listElement != nil {
		s.accessOrder.Remove(e.listElement)
	}
}
