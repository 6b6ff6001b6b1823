// Package docstore is a small document-collection abstraction: JSON objects
// grouped in named collections and addressed by string ids.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by Get and Update when the document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is a stored JSON object. Data never contains the id.
type Document struct {
	ID        string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is implemented by every backend.
type Store interface {
	// List returns the documents of a collection matching all filters, in
	// insertion order.
	List(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Add stores data under a generated id.
	Add(ctx context.Context, collection string, data any) (string, error)
	// Set creates or replaces the document with the given id.
	Set(ctx context.Context, collection, id string, data any) error
	// Update merges the top-level fields of partial into an existing document.
	Update(ctx context.Context, collection, id string, partial map[string]any) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	Close() error
}

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "=="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Filter is a predicate on a top-level field.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

func (f Filter) validate() error {
	if f.Field == "" {
		return fmt.Errorf("filter field is empty")
	}
	switch f.Op {
	case OpEq, OpLt, OpLte, OpGt, OpGte:
		return nil
	}
	return fmt.Errorf("unsupported filter operator %q", f.Op)
}

// filterValueJSON renders a filter operand as raw JSON. Decimals are always
// emitted as numbers regardless of decimal's global quoting setting.
func filterValueJSON(v any) (json.RawMessage, error) {
	switch d := v.(type) {
	case decimal.Decimal:
		return json.RawMessage(d.String()), nil
	case *decimal.Decimal:
		if d == nil {
			return json.RawMessage("null"), nil
		}
		return json.RawMessage(d.String()), nil
	}
	return json.Marshal(v)
}

// encodeData marshals data into a JSON object without an "id" member.
func encodeData(data any) (json.RawMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	delete(fields, "id")
	return json.Marshal(fields)
}

func encodePartial(partial map[string]any) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(partial))
	for k, v := range partial {
		if k == "id" {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %s: %w", k, err)
		}
		out[k] = raw
	}
	return out, nil
}

// Decode unmarshals the document into dest and sets dest's "id" field.
func Decode(doc *Document, dest any) error {
	if err := json.Unmarshal(doc.Data, dest); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", doc.ID, err)
	}
	idJSON, err := json.Marshal(map[string]string{"id": doc.ID})
	if err != nil {
		return err
	}
	return json.Unmarshal(idJSON, dest)
}

// GetAs fetches and decodes a single document.
func GetAs[T any](ctx context.Context, s Store, collection, id string) (*T, error) {
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	var v T
	if err := Decode(doc, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListAs fetches and decodes every matching document.
func ListAs[T any](ctx context.Context, s Store, collection string, filters ...Filter) ([]T, error) {
	docs, err := s.List(ctx, collection, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for i := range docs {
		var v T
		if err := Decode(&docs[i], &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
