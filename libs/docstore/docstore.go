// Package docstore is the boundary to the system of record: a durable keyed
// record store with document CRUD and query-by-filter. The store is the sole
// source of truth; it accepts concurrent writers and patches merge shallowly,
// so overlapping field updates are last-write-wins.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrNotFound = errors.New("docstore: document not found")

// Filter matches documents by JSON containment: every key/value pair must be
// contained in the document. An array value matches when each of its elements
// is contained in some element of the document's array, which makes
// Filter{"members": []any{map[string]any{"userId": u}}} a membership query.
type Filter map[string]any

// Collection is one named set of documents. Passing several filters to Find
// ORs them together.
type Collection interface {
	FindByID(ctx context.Context, id string) (map[string]any, error)
	Find(ctx context.Context, filters ...Filter) ([]map[string]any, error)
	Create(ctx context.Context, id string, doc map[string]any) error
	UpdateByID(ctx context.Context, id string, patch map[string]any) error
	UpdateMany(ctx context.Context, filter Filter, patch map[string]any) (int64, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, filter Filter) (int64, error)
}

// ToDoc round-trips a struct through JSON into the map shape collections
// store. The document carries its own "id" field.
func ToDoc(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FromDoc decodes a stored document into out.
func FromDoc(doc map[string]any, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
