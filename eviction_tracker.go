package evloop

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

// EvictionTracker remembers how many times each peer host was evicted for
// idleness within a TTL window. Hosts that keep going idle can be refused.
type EvictionTracker struct {
	cache       *ristretto.Cache
	ttl         time.Duration
	rejectAfter int64
}

func NewEvictionTracker(config EvictionsConfig) (*EvictionTracker, error) {
	maxPeers := int64(config.MaxPeers)
	if maxPeers <= 0 {
		maxPeers = defFdLimit
	}
	ttl := time.Duration(config.TTLSec) * time.Second
	if ttl <= 0 {
		ttl = defEvictionTTLSec * time.Second
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxPeers * 10,
		MaxCost:            maxPeers,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &EvictionTracker{
		cache:       cache,
		ttl:         ttl,
		rejectAfter: int64(config.RejectAfter),
	}, nil
}

// Record counts one eviction of host and returns the count in the window.
func (t *EvictionTracker) Record(host string) int64 {
	if value, ok := t.cache.Get(host); ok {
		return value.(*atomic.Int64).Inc()
	}
	counter := atomic.NewInt64(1)
	if !t.cache.SetWithTTL(host, counter, 1, t.ttl) {
		log.Warn().Msgf("eviction counter for %s was not admitted", host)
	}
	t.cache.Wait()
	return 1
}

func (t *EvictionTracker) Count(host string) int64 {
	if value, ok := t.cache.Get(host); ok {
		return value.(*atomic.Int64).Load()
	}
	return 0
}

// Rejected reports whether host reached the reject threshold. A threshold
// of zero never rejects.
func (t *EvictionTracker) Rejected(host string) (bool, int64) {
	if t.rejectAfter <= 0 {
		return false, 0
	}
	count := t.Count(host)
	return count >= t.rejectAfter, count
}

func (t *EvictionTracker) Forget(host string) {
	t.cache.Del(host)
}

func (t *EvictionTracker) Close() {
	t.cache.Close()
}
