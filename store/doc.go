// Package store defines the document persistence contract consumed by the
// identity engine, the unique-index schema, and the guarded write path.
//
// Adapters live in sub-packages:
//
//   - memory — in-process maps, used by tests and the demo server
//   - redis — JSON documents in Redis with SETNX unique keys
//   - postgres — JSONB documents in PostgreSQL with goose migrations
//   - cache — read-through cache decorator for any Store
//
// Lookups return the empty [Document] instead of an error when nothing
// matches; callers check [Document.IsEmpty].
package store
