// Package cache provides a read-through LRU cache in front of an object
// store. Entries are whole objects keyed by (bucket, key).
package cache

import (
	"container/list"
	"context"
	"io"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/s1-storage/s1/internal/observability"
	"github.com/s1-storage/s1/internal/storage"
)

const DefaultCapacity = 128

type Stats struct {
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
}

type entryKey struct {
	bucket string
	key    string
}

func (k entryKey) flightKey() string {
	return k.bucket + "\x00" + k.key
}

type entry struct {
	key    entryKey
	object storage.Object
}

// Store wraps a backend so that Get is served from memory when possible.
// Writes and listings go straight to the backend; a Put drops the cached copy
// of the written key. Capacity <= 0 disables caching.
type Store struct {
	backend  storage.ObjectStore
	capacity int

	mu      sync.Mutex
	entries map[entryKey]*list.Element
	order   *list.List
	hits    uint64
	misses  uint64
	// generation changes on every invalidation. A load only inserts if it
	// is unchanged since the load began.
	generation uint64

	flights singleflight.Group
}

func New(backend storage.ObjectStore, capacity int) *Store {
	return &Store{
		backend:  backend,
		capacity: capacity,
		entries:  make(map[entryKey]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached object or loads it from the backend. Concurrent
// misses for the same key share one backend call. Failures, including
// storage.ErrObjectNotFound, are returned as-is and never cached. A caller
// whose ctx ends stops waiting and gets ctx.Err(); the shared load runs on.
func (s *Store) Get(ctx context.Context, bucket, key string) (storage.Object, error) {
	k := entryKey{bucket: bucket, key: key}
	if object, ok := s.lookup(k, true); ok {
		return object, nil
	}
	if s.capacity <= 0 {
		return s.backend.Get(ctx, bucket, key)
	}

	// The load is shared by every waiter, so it must not die with the first
	// caller's context.
	loadCtx := context.WithoutCancel(ctx)
	results := s.flights.DoChan(k.flightKey(), func() (any, error) {
		if object, ok := s.lookup(k, false); ok {
			return object, nil
		}
		generation := s.currentGeneration()
		object, err := s.backend.Get(loadCtx, bucket, key)
		if err != nil {
			return storage.Object{}, err
		}
		s.insert(k, object, generation)
		return object, nil
	})
	select {
	case <-ctx.Done():
		return storage.Object{}, ctx.Err()
	case result := <-results:
		if result.Err != nil {
			return storage.Object{}, result.Err
		}
		return result.Val.(storage.Object), nil
	}
}

func (s *Store) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	info, err := s.backend.Put(ctx, bucket, key, body, size, opts)
	s.invalidate(entryKey{bucket: bucket, key: key})
	if err == nil && info.Key != key {
		s.invalidate(entryKey{bucket: bucket, key: info.Key})
	}
	return info, err
}

func (s *Store) List(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	return s.backend.List(ctx, bucket, prefix)
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.backend.HealthCheck(ctx)
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Hits: s.hits, Misses: s.misses, Size: s.order.Len(), Capacity: s.capacity}
}

// Clear drops every entry and resets the hit and miss counters.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[entryKey]*list.Element)
	s.order.Init()
	s.hits = 0
	s.misses = 0
	s.generation++
	observability.SetCacheEntries(0)
}

// lookup marks a hit as most recently used. count controls whether the
// lookup is reflected in the hit/miss counters.
func (s *Store) lookup(k entryKey, count bool) (storage.Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	element, ok := s.entries[k]
	if !ok {
		if count {
			s.misses++
			observability.ObserveCacheLookup(false)
		}
		return storage.Object{}, false
	}
	s.order.MoveToFront(element)
	if count {
		s.hits++
		observability.ObserveCacheLookup(true)
	}
	return element.Value.(*entry).object, true
}

func (s *Store) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// insert stores object unless an invalidation happened after generation was
// read.
func (s *Store) insert(k entryKey, object storage.Object, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return
	}
	if element, ok := s.entries[k]; ok {
		element.Value.(*entry).object = object
		s.order.MoveToFront(element)
		return
	}
	s.entries[k] = s.order.PushFront(&entry{key: k, object: object})
	for s.order.Len() > s.capacity {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*entry).key)
		observability.ObserveCacheEviction()
	}
	observability.SetCacheEntries(s.order.Len())
}

// invalidate drops k and detaches any in-flight load of it, so later Gets
// start a fresh load.
func (s *Store) invalidate(k entryKey) {
	s.flights.Forget(k.flightKey())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if element, ok := s.entries[k]; ok {
		s.order.Remove(element)
		delete(s.entries, k)
		observability.SetCacheEntries(s.order.Len())
	}
}
