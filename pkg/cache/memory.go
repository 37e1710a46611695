package cache

import (
	"context"
	"sync"
	"time"

	"github.com/platformbuilds/workcell-kpi/internal/monitoring"
	"github.com/platformbuilds/workcell-kpi/pkg/logger"
)

const sweepThreshold = 1024

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// memoryStore is a process-local Store. Entries are not shared across
// replicas and are lost on restart.
type memoryStore struct {
	mu     sync.RWMutex
	m      map[string]memoryEntry
	now    func() time.Time
	logger logger.Logger
}

func NewMemoryStore(log logger.Logger) Store {
	return newMemoryStore(log, time.Now)
}

func newMemoryStore(log logger.Logger, now func() time.Time) *memoryStore {
	if log == nil {
		log = logger.Nop()
	}
	return &memoryStore{m: make(map[string]memoryEntry), now: now, logger: log}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok || (!e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)) {
		monitoring.RecordCacheOperation("get", "miss")
		return nil, ErrNotFound
	}
	monitoring.RecordCacheOperation("get", "hit")
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := encodeValue(key, value)
	if err != nil {
		monitoring.RecordCacheOperation("set", "error")
		return err
	}
	e := memoryEntry{data: append([]byte(nil), b...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.m[key] = e
	size := len(s.m)
	s.mu.Unlock()
	if size >= sweepThreshold {
		if n := s.sweep(); n > 0 {
			s.logger.Debug("Swept expired cache entries", "removed", n)
		}
	}
	monitoring.RecordCacheOperation("set", "success")
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	monitoring.RecordCacheOperation("delete", "success")
	return nil
}

func (s *memoryStore) HealthCheck(ctx context.Context) error { return nil }

// sweep drops expired entries and reports how many were removed.
func (s *memoryStore) sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.m {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(s.m, k)
			n++
		}
	}
	return n
}
