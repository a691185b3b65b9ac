package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Loader is a read-through front for a Store. Concurrent misses on the same
// key share one computation. A result computed across an eviction is
// returned to its callers but not stored.
type Loader struct {
	store   Store
	group   singleflight.Group
	gen     atomic.Uint64
	evictMu sync.RWMutex // orders stores against evictions
	log     zerolog.Logger
}

func NewLoader(store Store, log zerolog.Logger) *Loader {
	return &Loader{store: store, log: log.With().Str("component", "cache").Logger()}
}

// Load returns the cached value for (ns, key), computing and storing it
// with fn on a miss. Values round-trip through JSON.
func Load[T any](ctx context.Context, l *Loader, ns, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if b, ok := l.store.Get(ctx, ns, key); ok {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
		l.log.Warn().Str("ns", ns).Str("key", key).Msg("discarding undecodable cache entry")
	}

	gen := l.gen.Load()
	sfKey := ns + "\x00" + key + "\x00" + strconv.FormatUint(gen, 10)
	v, err, _ := l.group.Do(sfKey, func() (interface{}, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		l.put(ctx, gen, ns, key, v)
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (l *Loader) put(ctx context.Context, gen uint64, ns, key string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		l.log.Warn().Err(err).Str("ns", ns).Msg("cache value not encodable")
		return
	}
	l.evictMu.RLock()
	defer l.evictMu.RUnlock()
	if l.gen.Load() != gen {
		return
	}
	if err := l.store.Put(ctx, ns, key, b); err != nil {
		l.log.Warn().Err(err).Str("ns", ns).Msg("cache put failed")
	}
}

// Evict drops every entry in the given namespaces.
func (l *Loader) Evict(ctx context.Context, namespaces ...string) error {
	l.evictMu.Lock()
	defer l.evictMu.Unlock()
	l.gen.Add(1)
	if err := l.store.EvictAll(ctx, namespaces...); err != nil {
		return err
	}
	l.log.Debug().Strs("namespaces", namespaces).Msg("cache evicted")
	return nil
}

// EvictListings drops all listing namespaces.
func (l *Loader) EvictListings(ctx context.Context) error {
	return l.Evict(ctx, Listings...)
}
