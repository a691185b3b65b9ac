// Package cache holds the process-wide listing cache. Entries are grouped
// into namespaces and evicted a whole namespace at a time.
package cache

import (
	"context"
	"sync"
	"time"
)

const (
	NamespaceCodes      = "getAllCodes"
	NamespaceCategories = "getAllCategories"
)

// Listings are the namespaces dropped on every write.
var Listings = []string{NamespaceCodes, NamespaceCategories}

// Store is a namespaced byte cache.
type Store interface {
	Get(ctx context.Context, ns, key string) ([]byte, bool)
	Put(ctx context.Context, ns, key string, value []byte) error
	EvictAll(ctx context.Context, namespaces ...string) error
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store with lazy expiration.
type MemoryStore struct {
	ttl        time.Duration
	mu         sync.RWMutex
	namespaces map[string]map[string]*entry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:        ttl,
		namespaces: make(map[string]map[string]*entry),
	}
}

func (s *MemoryStore) Get(_ context.Context, ns, key string) ([]byte, bool) {
	s.mu.RLock()
	e, ok := s.namespaces[ns][key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		if cur, ok := s.namespaces[ns][key]; ok && cur == e {
			delete(s.namespaces[ns], key)
		}
		s.mu.Unlock()
		return nil, false
	}
	return e.data, true
}

func (s *MemoryStore) Put(_ context.Context, ns, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.namespaces[ns]
	if !ok {
		entries = make(map[string]*entry)
		s.namespaces[ns] = entries
	}
	entries[key] = &entry{data: value, expiresAt: time.Now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) EvictAll(_ context.Context, namespaces ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ns := range namespaces {
		delete(s.namespaces, ns)
	}
	return nil
}

// Len returns the number of live and expired entries in ns.
func (s *MemoryStore) Len(ns string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[ns])
}

// StartCleanup periodically drops expired entries until ctx is cancelled.
func (s *MemoryStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				now := time.Now()
				for _, entries := range s.namespaces {
					for k, e := range entries {
						if now.After(e.expiresAt) {
							delete(entries, k)
						}
					}
				}
				s.mu.Unlock()
			}
		}
	}()
}
