// Package redis stores documents as JSON strings in Redis. Unique indexes are
// separate keys holding the owning document id; multi-key writes run as Lua
// scripts so a duplicate never leaves partial state behind.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goIdentity/store"
	"github.com/redis/go-redis/v9"
)

const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
for i = 4, #KEYS do
  local owner = redis.call("GET", KEYS[i])
  if owner and owner ~= ARGV[1] then
    return 0
  end
end
for i = 4, #KEYS do
  redis.call("SET", KEYS[i], ARGV[1])
end
redis.call("SET", KEYS[1], ARGV[2])
local seq = redis.call("INCR", KEYS[3])
redis.call("ZADD", KEYS[2], seq, ARGV[1])
return 1
`

const updateScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
local n = tonumber(ARGV[3])
for i = 2, n + 1 do
  local owner = redis.call("GET", KEYS[i])
  if owner and owner ~= ARGV[1] then
    return 0
  end
end
for i = n + 2, #KEYS do
  if redis.call("GET", KEYS[i]) == ARGV[1] then
    redis.call("DEL", KEYS[i])
  end
end
for i = 2, n + 1 do
  redis.call("SET", KEYS[i], ARGV[1])
end
redis.call("SET", KEYS[1], ARGV[2])
return 1
`

const deleteScript = `
local existed = redis.call("EXISTS", KEYS[1])
for i = 3, #KEYS do
  if redis.call("GET", KEYS[i]) == ARGV[1] then
    redis.call("DEL", KEYS[i])
  end
end
redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], ARGV[1])
return existed
`

var (
	createLua = redis.NewScript(createScript)
	updateLua = redis.NewScript(updateScript)
	deleteLua = redis.NewScript(deleteScript)
)

// Store implements store.Store on a go-redis client.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	schema store.Schema
}

// New returns a Redis-backed store. prefix namespaces every key.
func New(rdb redis.UniversalClient, prefix string, schema store.Schema) *Store {
	if prefix == "" {
		prefix = "idn"
	}
	return &Store{rdb: rdb, prefix: prefix, schema: schema}
}

func (s *Store) docKey(coll, id string) string { return fmt.Sprintf("%s:%s:d:%s", s.prefix, coll, id) }
func (s *Store) idsKey(coll string) string     { return fmt.Sprintf("%s:%s:ids", s.prefix, coll) }
func (s *Store) seqKey(coll string) string     { return fmt.Sprintf("%s:%s:seq", s.prefix, coll) }
func (s *Store) uniqueKey(coll, index, value string) string {
	return fmt.Sprintf("%s:%s:u:%s:%s", s.prefix, coll, index, value)
}

func (s *Store) uniqueKeys(coll string, doc store.Document) ([]string, error) {
	keys, err := s.schema.UniqueKeys(coll, doc.Data)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for idx, v := range keys {
		out = append(out, s.uniqueKey(coll, idx, v))
	}
	return out, nil
}

func (s *Store) GetByID(ctx context.Context, coll, id string) (store.Document, error) {
	raw, err := s.rdb.Get(ctx, s.docKey(coll, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Document{}, nil
	}
	if err != nil {
		return store.Document{}, err
	}
	return store.Document{ID: id, Data: raw}, nil
}

func (s *Store) FindOne(ctx context.Context, coll string, filter store.Filter) (store.Document, error) {
	docs, err := s.scan(ctx, coll, filter, 1)
	if err != nil || len(docs) == 0 {
		return store.Document{}, err
	}
	return docs[0], nil
}

func (s *Store) Find(ctx context.Context, coll string, filter store.Filter) ([]store.Document, error) {
	return s.scan(ctx, coll, filter, 0)
}

func (s *Store) Count(ctx context.Context, coll string, filter store.Filter, max int) (int, error) {
	if len(filter) == 0 {
		n, err := s.rdb.ZCard(ctx, s.idsKey(coll)).Result()
		if err != nil {
			return 0, err
		}
		if max > 0 && int(n) > max {
			return max, nil
		}
		return int(n), nil
	}
	docs, err := s.scan(ctx, coll, filter, max)
	return len(docs), err
}

func (s *Store) scan(ctx context.Context, coll string, filter store.Filter, limit int) ([]store.Document, error) {
	ids, err := s.rdb.ZRange(ctx, s.idsKey(coll), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(coll, id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	var out []store.Document
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		data := []byte(str)
		if !store.Matches(data, filter) {
			continue
		}
		out = append(out, store.Document{ID: ids[i], Data: data})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, coll string, doc store.Document) (store.Document, error) {
	if doc.ID == "" {
		return store.Document{}, errors.New("redis: document id required")
	}
	unique, err := s.uniqueKeys(coll, doc)
	if err != nil {
		return store.Document{}, err
	}
	keys := append([]string{s.docKey(coll, doc.ID), s.idsKey(coll), s.seqKey(coll)}, unique...)
	res, err := createLua.Run(ctx, s.rdb, keys, doc.ID, string(doc.Data)).Int()
	if err != nil {
		return store.Document{}, err
	}
	if res == 0 {
		return store.Document{}, store.ErrDuplicateKey
	}
	return doc, nil
}

func (s *Store) Update(ctx context.Context, coll string, doc store.Document) (store.Document, error) {
	old, err := s.GetByID(ctx, coll, doc.ID)
	if err != nil {
		return store.Document{}, err
	}
	if old.IsEmpty() {
		return store.Document{}, store.ErrNotFound
	}
	newKeys, err := s.uniqueKeys(coll, doc)
	if err != nil {
		return store.Document{}, err
	}
	oldKeys, err := s.uniqueKeys(coll, old)
	if err != nil {
		return store.Document{}, err
	}

	keys := make([]string, 0, 1+len(newKeys)+len(oldKeys))
	keys = append(keys, s.docKey(coll, doc.ID))
	keys = append(keys, newKeys...)
	keys = append(keys, oldKeys...)
	res, err := updateLua.Run(ctx, s.rdb, keys, doc.ID, string(doc.Data), len(newKeys)).Int()
	if err != nil {
		return store.Document{}, err
	}
	switch res {
	case -1:
		return store.Document{}, store.ErrNotFound
	case 0:
		return store.Document{}, store.ErrDuplicateKey
	}
	return doc, nil
}

func (s *Store) Delete(ctx context.Context, coll, id string) (bool, error) {
	old, err := s.GetByID(ctx, coll, id)
	if err != nil {
		return false, err
	}
	var unique []string
	if !old.IsEmpty() {
		if unique, err = s.uniqueKeys(coll, old); err != nil {
			return false, err
		}
	}
	keys := append([]string{s.docKey(coll, id), s.idsKey(coll)}, unique...)
	res, err := deleteLua.Run(ctx, s.rdb, keys, id).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Invalidate is a no-op; reads always go to Redis.
func (s *Store) Invalidate(context.Context, string, string) error { return nil }
