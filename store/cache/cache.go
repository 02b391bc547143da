// Package cache decorates a store.Store with an in-process read-through cache
// for GetByID. Every write through the decorator, and every Invalidate call,
// evicts the cached copy, so a revoked session or consumed token cannot be
// re-read from cache.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goIdentity/store"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Store wraps another store.Store.
type Store struct {
	next store.Store
	c    *gocache.Cache
	sf   singleflight.Group

	mu      sync.Mutex
	filling map[string]*fill
}

// fill is an in-flight read of one key. An eviction during the read marks it
// stale and the result is not cached.
type fill struct {
	stale bool
}

// New caches GetByID results for ttl. Misses are not cached.
func New(next store.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Store{
		next:    next,
		c:       gocache.New(ttl, 2*ttl),
		filling: make(map[string]*fill),
	}
}

func key(coll, id string) string { return coll + "/" + id }

func (s *Store) GetByID(ctx context.Context, coll, id string) (store.Document, error) {
	k := key(coll, id)
	if v, ok := s.c.Get(k); ok {
		if d, ok := v.(store.Document); ok {
			return copyDoc(d), nil
		}
	}
	v, err, _ := s.sf.Do(k, func() (interface{}, error) {
		f := &fill{}
		s.mu.Lock()
		s.filling[k] = f
		s.mu.Unlock()

		d, err := s.next.GetByID(ctx, coll, id)

		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.filling, k)
		if err != nil {
			return store.Document{}, err
		}
		if !d.IsEmpty() && !f.stale {
			s.c.SetDefault(k, copyDoc(d))
		}
		return d, nil
	})
	if err != nil {
		return store.Document{}, err
	}
	return copyDoc(v.(store.Document)), nil
}

func (s *Store) FindOne(ctx context.Context, coll string, filter store.Filter) (store.Document, error) {
	return s.next.FindOne(ctx, coll, filter)
}

func (s *Store) Find(ctx context.Context, coll string, filter store.Filter) ([]store.Document, error) {
	return s.next.Find(ctx, coll, filter)
}

func (s *Store) Count(ctx context.Context, coll string, filter store.Filter, max int) (int, error) {
	return s.next.Count(ctx, coll, filter, max)
}

func (s *Store) Create(ctx context.Context, coll string, doc store.Document) (store.Document, error) {
	defer s.evict(key(coll, doc.ID))
	return s.next.Create(ctx, coll, doc)
}

func (s *Store) Update(ctx context.Context, coll string, doc store.Document) (store.Document, error) {
	defer s.evict(key(coll, doc.ID))
	return s.next.Update(ctx, coll, doc)
}

func (s *Store) Delete(ctx context.Context, coll, id string) (bool, error) {
	defer s.evict(key(coll, id))
	return s.next.Delete(ctx, coll, id)
}

func (s *Store) Invalidate(ctx context.Context, coll, id string) error {
	s.evict(key(coll, id))
	return s.next.Invalidate(ctx, coll, id)
}

// evict drops the cached copy of k and spoils any fill of k in progress.
func (s *Store) evict(k string) {
	s.mu.Lock()
	if f, ok := s.filling[k]; ok {
		f.stale = true
	}
	s.c.Delete(k)
	s.mu.Unlock()
}

// Len reports the number of cached documents.
func (s *Store) Len() int { return s.c.ItemCount() }

func copyDoc(d store.Document) store.Document {
	if d.IsEmpty() {
		return store.Document{}
	}
	data := make([]byte, len(d.Data))
	copy(data, d.Data)
	return store.Document{ID: d.ID, Data: data}
}
