package cache

import (
	"context"
	"sync"
	"time"

	"github.com/platformbuilds/workcell-kpi/pkg/logger"
)

// autoSwapStore starts on a fallback Store (normally the in-memory one) and
// keeps dialing Valkey in the background until it succeeds, then swaps.
type autoSwapStore struct {
	mu      sync.RWMutex
	current Store
	swapped bool
	logger  logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newAutoSwapStore(fallback Store, log logger.Logger, every time.Duration, dial func() (Store, error)) *autoSwapStore {
	a := &autoSwapStore{
		current: fallback,
		logger:  log,
		stopCh:  make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-a.stopCh:
				return
			case <-ticker.C:
				real, err := dial()
				if err != nil {
					a.logger.Warn("Valkey connection attempt failed; will retry", "error", err)
					continue
				}
				a.mu.Lock()
				a.current = real
				a.swapped = true
				a.mu.Unlock()
				a.logger.Info("Valkey connection established; switched from in-memory to real cache")
				return
			}
		}
	}()

	return a
}

// Stop ends the background dialer.
func (a *autoSwapStore) Stop() { a.stopOnce.Do(func() { close(a.stopCh) }) }

func (a *autoSwapStore) active() Store {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

func (a *autoSwapStore) Swapped() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.swapped
}

func (a *autoSwapStore) Get(ctx context.Context, key string) ([]byte, error) {
	return a.active().Get(ctx, key)
}

func (a *autoSwapStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return a.active().Set(ctx, key, value, ttl)
}

func (a *autoSwapStore) Delete(ctx context.Context, key string) error {
	return a.active().Delete(ctx, key)
}

func (a *autoSwapStore) HealthCheck(ctx context.Context) error {
	return a.active().HealthCheck(ctx)
}
