// Package memory is an in-process store.Store. It enforces the same unique
// indexes as the persistent adapters and is safe for concurrent use.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/MrEthical07/goIdentity/store"
)

type collection struct {
	docs   map[string]store.Document
	order  []string
	unique map[string]map[string]string // index -> value -> id
}

// Store keeps documents in maps guarded by a single RWMutex.
type Store struct {
	schema store.Schema

	mu          sync.RWMutex
	collections map[string]*collection
}

func New(schema store.Schema) *Store {
	return &Store{
		schema:      schema,
		collections: make(map[string]*collection),
	}
}

func (s *Store) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{
			docs:   make(map[string]store.Document),
			unique: make(map[string]map[string]string),
		}
		s.collections[name] = c
	}
	return c
}

func (s *Store) GetByID(_ context.Context, coll, id string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[coll]
	if !ok {
		return store.Document{}, nil
	}
	return clone(c.docs[id]), nil
}

func (s *Store) FindOne(ctx context.Context, coll string, filter store.Filter) (store.Document, error) {
	docs, err := s.find(coll, filter, 1)
	if err != nil || len(docs) == 0 {
		return store.Document{}, err
	}
	return docs[0], nil
}

func (s *Store) Find(_ context.Context, coll string, filter store.Filter) ([]store.Document, error) {
	return s.find(coll, filter, 0)
}

func (s *Store) Count(_ context.Context, coll string, filter store.Filter, max int) (int, error) {
	docs, err := s.find(coll, filter, max)
	return len(docs), err
}

func (s *Store) find(coll string, filter store.Filter, limit int) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[coll]
	if !ok {
		return nil, nil
	}
	var out []store.Document
	for _, id := range c.order {
		d := c.docs[id]
		if !store.Matches(d.Data, filter) {
			continue
		}
		out = append(out, clone(d))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Create(_ context.Context, coll string, doc store.Document) (store.Document, error) {
	if doc.ID == "" {
		return store.Document{}, errors.New("memory: document id required")
	}
	keys, err := s.schema.UniqueKeys(coll, doc.Data)
	if err != nil {
		return store.Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coll(coll)
	if _, exists := c.docs[doc.ID]; exists {
		return store.Document{}, store.ErrDuplicateKey
	}
	if err := c.checkUnique(keys, doc.ID); err != nil {
		return store.Document{}, err
	}
	c.setUnique(keys, doc.ID)
	c.docs[doc.ID] = clone(doc)
	c.order = append(c.order, doc.ID)
	return clone(doc), nil
}

func (s *Store) Update(_ context.Context, coll string, doc store.Document) (store.Document, error) {
	keys, err := s.schema.UniqueKeys(coll, doc.Data)
	if err != nil {
		return store.Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coll(coll)
	old, exists := c.docs[doc.ID]
	if !exists {
		return store.Document{}, store.ErrNotFound
	}
	if err := c.checkUnique(keys, doc.ID); err != nil {
		return store.Document{}, err
	}
	oldKeys, _ := s.schema.UniqueKeys(coll, old.Data)
	c.clearUnique(oldKeys, doc.ID)
	c.setUnique(keys, doc.ID)
	c.docs[doc.ID] = clone(doc)
	return clone(doc), nil
}

func (s *Store) Delete(_ context.Context, coll, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[coll]
	if !ok {
		return false, nil
	}
	old, exists := c.docs[id]
	if !exists {
		return false, nil
	}
	oldKeys, _ := s.schema.UniqueKeys(coll, old.Data)
	c.clearUnique(oldKeys, id)
	delete(c.docs, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Invalidate is a no-op; the memory store has no cache layer.
func (s *Store) Invalidate(context.Context, string, string) error { return nil }

func (c *collection) checkUnique(keys map[string]string, id string) error {
	for idx, v := range keys {
		if owner, ok := c.unique[idx][v]; ok && owner != id {
			return store.ErrDuplicateKey
		}
	}
	return nil
}

func (c *collection) setUnique(keys map[string]string, id string) {
	for idx, v := range keys {
		m, ok := c.unique[idx]
		if !ok {
			m = make(map[string]string)
			c.unique[idx] = m
		}
		m[v] = id
	}
}

func (c *collection) clearUnique(keys map[string]string, id string) {
	for idx, v := range keys {
		if c.unique[idx][v] == id {
			delete(c.unique[idx], v)
		}
	}
}

func clone(d store.Document) store.Document {
	if d.IsEmpty() {
		return store.Document{}
	}
	data := make([]byte, len(d.Data))
	copy(data, d.Data)
	return store.Document{ID: d.ID, Data: data}
}
