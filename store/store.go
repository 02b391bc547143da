package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrDuplicateKey is returned by Create and Update when a document id or a
	// unique index value is already taken.
	ErrDuplicateKey = errors.New("store: duplicate key")
	// ErrNotFound is returned by Update for a missing document.
	ErrNotFound = errors.New("store: document not found")
	// ErrForbidden is returned by a guarded writer when the actor role lacks
	// the write permission for the collection.
	ErrForbidden = errors.New("store: write not permitted")
)

// Document is one stored record. A Document with an empty ID is the "empty"
// result returned by lookups that match nothing.
type Document struct {
	ID   string
	Data json.RawMessage
}

// IsEmpty reports whether d is the empty sentinel.
func (d Document) IsEmpty() bool { return d.ID == "" }

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if d.IsEmpty() {
		return ErrNotFound
	}
	return json.Unmarshal(d.Data, v)
}

// Encode builds a Document from v.
func Encode(id string, v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Data: raw}, nil
}

// Filter matches documents whose top-level fields equal the given values.
// Values are compared in their text form: strings unquoted, other JSON
// scalars verbatim ("true", "42").
type Filter map[string]string

// Store is the document persistence contract. Lookups never return a nil
// Document; they return the empty sentinel instead.
type Store interface {
	GetByID(ctx context.Context, collection, id string) (Document, error)
	FindOne(ctx context.Context, collection string, filter Filter) (Document, error)
	// Find returns matches in insertion order.
	Find(ctx context.Context, collection string, filter Filter) ([]Document, error)
	// Count stops counting at max when max > 0.
	Count(ctx context.Context, collection string, filter Filter, max int) (int, error)
	Writer
	// Invalidate drops any cached copy of the document.
	Invalidate(ctx context.Context, collection, id string) error
}

// Writer is the mutating half of Store.
type Writer interface {
	Create(ctx context.Context, collection string, doc Document) (Document, error)
	Update(ctx context.Context, collection string, doc Document) (Document, error)
	Delete(ctx context.Context, collection, id string) (bool, error)
}

// Index declares a unique constraint over one or more top-level fields.
// Documents with any of the fields empty are not indexed.
type Index struct {
	Name   string
	Fields []string
}

// Schema maps a collection name to its unique indexes.
type Schema map[string][]Index

// UniqueKeys returns index name to composite value for every index of
// collection that doc participates in.
func (s Schema) UniqueKeys(collection string, data json.RawMessage) (map[string]string, error) {
	indexes := s[collection]
	if len(indexes) == 0 {
		return nil, nil
	}
	fields, err := Fields(data)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(indexes))
	for _, idx := range indexes {
		parts := make([]string, 0, len(idx.Fields))
		for _, f := range idx.Fields {
			v := fields[f]
			if v == "" {
				parts = nil
				break
			}
			parts = append(parts, v)
		}
		if len(parts) == 0 {
			continue
		}
		out[idx.Name] = strings.Join(parts, "\x1f")
	}
	return out, nil
}

// Fields flattens the top-level scalar fields of data into their text form.
// Nested objects and arrays are skipped.
func Fields(data json.RawMessage) (map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := scalarText(v); ok {
			out[k] = s
		}
	}
	return out, nil
}

// Matches reports whether data satisfies filter.
func Matches(data json.RawMessage, filter Filter) bool {
	if len(filter) == 0 {
		return true
	}
	fields, err := Fields(data)
	if err != nil {
		return false
	}
	for k, want := range filter {
		if fields[k] != want {
			return false
		}
	}
	return true
}

func scalarText(v json.RawMessage) (string, bool) {
	t := strings.TrimSpace(string(v))
	if t == "" || t == "null" {
		return "", true
	}
	switch t[0] {
	case '{', '[':
		return "", false
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", false
		}
		return s, true
	}
	return t, true
}
