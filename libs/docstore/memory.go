package docstore

import (
	"context"
	"encoding/json"
	"sync"
)

// MemCollection is an in-memory Collection with the same containment
// semantics as the JSONB implementation. Used in tests and local tooling.
type MemCollection struct {
	mu    sync.RWMutex
	docs  map[string]map[string]any
	order []string
}

func NewMemCollection() *MemCollection {
	return &MemCollection{docs: map[string]map[string]any{}}
}

func (c *MemCollection) FindByID(_ context.Context, id string) (map[string]any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (c *MemCollection) Find(_ context.Context, filters ...Filter) ([]map[string]any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []map[string]any
	for _, id := range c.order {
		doc, ok := c.docs[id]
		if !ok {
			continue
		}
		if matchesAny(doc, filters) {
			out = append(out, cloneDoc(doc))
		}
	}
	return out, nil
}

func (c *MemCollection) Create(_ context.Context, id string, doc map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = cloneDoc(doc)
	return nil
}

func (c *MemCollection) UpdateByID(_ context.Context, id string, patch map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[id]
	if !ok {
		return ErrNotFound
	}
	applyPatch(doc, patch)
	return nil
}

func (c *MemCollection) UpdateMany(_ context.Context, filter Filter, patch map[string]any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, doc := range c.docs {
		if contains(doc, map[string]any(filter)) {
			applyPatch(doc, patch)
			n++
		}
	}
	return n, nil
}

func (c *MemCollection) DeleteByID(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return ErrNotFound
	}
	delete(c.docs, id)
	return nil
}

func (c *MemCollection) DeleteMany(_ context.Context, filter Filter) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for id, doc := range c.docs {
		if contains(doc, map[string]any(filter)) {
			delete(c.docs, id)
			n++
		}
	}
	return n, nil
}

func matchesAny(doc map[string]any, filters []Filter) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if contains(doc, map[string]any(f)) {
			return true
		}
	}
	return false
}

// contains mirrors JSONB @> semantics: maps are contained when every entry is
// contained; arrays when each filter element is contained in some document
// element; scalars compare by JSON equality.
func contains(doc, filter any) bool {
	switch f := filter.(type) {
	case map[string]any:
		d, ok := doc.(map[string]any)
		if !ok {
			return false
		}
		for k, fv := range f {
			dv, ok := d[k]
			if !ok || !contains(dv, fv) {
				return false
			}
		}
		return true
	case []any:
		d, ok := doc.([]any)
		if !ok {
			return false
		}
		for _, fv := range f {
			found := false
			for _, dv := range d {
				if contains(dv, fv) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return jsonEqual(doc, filter)
	}
}

func jsonEqual(a, b any) bool {
	ra, err := json.Marshal(a)
	if err != nil {
		return false
	}
	rb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ra) == string(rb)
}

func applyPatch(doc, patch map[string]any) {
	for k, v := range patch {
		doc[k] = v
	}
}

func cloneDoc(doc map[string]any) map[string]any {
	raw, _ := json.Marshal(doc)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}

var _ Collection = (*MemCollection)(nil)
