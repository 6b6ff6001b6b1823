package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memCollection struct {
	order []string
	docs  map[string]*Document
}

// MemoryStore keeps documents in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	now         func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memCollection),
		now:         time.Now,
	}
}

func (m *MemoryStore) collection(name string) *memCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &memCollection{docs: make(map[string]*Document)}
		m.collections[name] = c
	}
	return c
}

func copyDoc(d *Document) Document {
	data := make(json.RawMessage, len(d.Data))
	copy(data, d.Data)
	return Document{ID: d.ID, Data: data, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

func (m *MemoryStore) List(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	for _, f := range filters {
		if err := f.validate(); err != nil {
			return nil, err
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return []Document{}, nil
	}

	out := make([]Document, 0, len(c.order))
	for _, id := range c.order {
		d := c.docs[id]
		match, err := matchesAll(d.Data, filters)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, copyDoc(d))
		}
	}
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	d, ok := c.docs[id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	doc := copyDoc(d)
	return &doc, nil
}

func (m *MemoryStore) Add(ctx context.Context, collection string, data any) (string, error) {
	id := uuid.New().String()
	if err := m.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (m *MemoryStore) Set(ctx context.Context, collection, id string, data any) error {
	raw, err := encodeData(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collection(collection)
	now := m.now()
	if d, ok := c.docs[id]; ok {
		d.Data = raw
		d.UpdatedAt = now
		return nil
	}
	c.docs[id] = &Document{ID: id, Data: raw, CreatedAt: now, UpdatedAt: now}
	c.order = append(c.order, id)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	fields, err := encodePartial(partial)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	d, ok := c.docs[id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}

	var current map[string]json.RawMessage
	if err := json.Unmarshal(d.Data, &current); err != nil {
		return fmt.Errorf("corrupt document %s/%s: %w", collection, id, err)
	}
	for k, v := range fields {
		current[k] = v
	}
	merged, err := json.Marshal(current)
	if err != nil {
		return err
	}
	d.Data = merged
	d.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil
	}
	if _, ok := c.docs[id]; !ok {
		return nil
	}
	delete(c.docs, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func matchesAll(data json.RawMessage, filters []Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return false, err
	}
	for _, f := range filters {
		raw, ok := fields[f.Field]
		if !ok {
			return false, nil
		}
		want, err := filterValueJSON(f.Value)
		if err != nil {
			return false, err
		}
		if !compare(raw, want, f.Op) {
			return false, nil
		}
	}
	return true, nil
}

// compare evaluates "have <op> want" on raw JSON values. Numbers compare
// numerically, strings lexicographically; anything else only supports ==.
func compare(have, want json.RawMessage, op Op) bool {
	if hn, ok := asNumber(have); ok {
		wn, ok := asNumber(want)
		if !ok {
			return false
		}
		return applyOp(hn.Cmp(wn), op)
	}

	var hs, ws string
	if json.Unmarshal(have, &hs) == nil && json.Unmarshal(want, &ws) == nil {
		return applyOp(strings.Compare(hs, ws), op)
	}

	if op != OpEq {
		return false
	}
	return bytes.Equal(bytes.TrimSpace(have), bytes.TrimSpace(want))
}

func asNumber(raw json.RawMessage) (decimal.Decimal, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' || raw[0] == '{' || raw[0] == '[' {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func applyOp(cmp int, op Op) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	}
	return false
}
