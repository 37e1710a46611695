package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/platformbuilds/workcell-kpi/pkg/logger"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Store is the key/value surface the KPI services cache through. Values that
// are not []byte or string are stored as JSON.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
}

// Options selects and configures a Store implementation.
type Options struct {
	Enabled    bool
	Nodes      []string
	DB         int
	Password   string
	DefaultTTL time.Duration
	// AutoSwap starts on the in-memory store and upgrades to Valkey once it
	// becomes reachable, instead of failing startup.
	AutoSwap bool
}

// New returns a Valkey-backed store (single node for one address, cluster
// otherwise) or the in-memory store when caching is disabled or no nodes are
// configured.
func New(opts Options, log logger.Logger) (Store, error) {
	if !opts.Enabled || len(opts.Nodes) == 0 {
		return NewMemoryStore(log), nil
	}

	dial := func() (Store, error) {
		if len(opts.Nodes) == 1 {
			return NewValkeySingle(opts.Nodes[0], opts.DB, opts.Password, opts.DefaultTTL, log)
		}
		return NewValkeyCluster(opts.Nodes, opts.Password, opts.DefaultTTL, log)
	}

	if opts.AutoSwap {
		s, err := dial()
		if err == nil {
			return s, nil
		}
		log.Warn("Valkey unreachable at startup; serving from memory until it connects", "nodes", opts.Nodes, "error", err)
		return newAutoSwapStore(NewMemoryStore(log), log, 5*time.Second, dial), nil
	}

	return dial()
}

func encodeValue(key string, value interface{}) ([]byte, error) {
	switch x := value.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		j, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %s: %w", key, err)
		}
		return j, nil
	}
}
