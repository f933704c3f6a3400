// Package store is the document persistence layer. Records are kept as nested
// maps in named collections, the way a hosted document database holds them,
// and every backend implements the same small Store interface.
package store

import (
	"context"
	"errors"
	"reflect"
	"time"
)

// ErrNotFound is returned when a document id does not exist in a collection.
var ErrNotFound = errors.New("document not found")

// Collection names.
const (
	CollectionUsers         = "users"
	CollectionRefreshTokens = "refreshTokens"
	CollectionPatients      = "patients"
	CollectionRecords       = "records"
	CollectionAttachments   = "attachments"
)

// Document is a stored record: its id, nested field data and store-managed timestamps.
type Document struct {
	ID        string
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter matches documents whose value at Field (a dotted path) equals Value.
type Filter struct {
	Field string
	Value any
}

// Query selects documents by equality filters. Results are ordered by
// creation time, oldest first unless Descending is set. Limit <= 0 means no limit.
type Query struct {
	Filters    []Filter
	Descending bool
	Limit      int
}

// Where is shorthand for a single-filter query.
func Where(field string, value any) Query {
	return Query{Filters: []Filter{{Field: field, Value: value}}}
}

// And adds an equality filter.
func (q Query) And(field string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: value})
	return q
}

// Store is implemented by every persistence backend.
type Store interface {
	// Create stores data under a new id in collection.
	Create(ctx context.Context, collection string, data map[string]any) (*Document, error)
	// Get returns ErrNotFound when id does not exist.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Replace overwrites the data of an existing document, keeping CreatedAt.
	Replace(ctx context.Context, collection, id string, data map[string]any) (*Document, error)
	// Delete returns ErrNotFound when id does not exist.
	Delete(ctx context.Context, collection, id string) error
	Find(ctx context.Context, collection string, q Query) ([]*Document, error)
	Close() error
}

// normalizeValue converts filter values to the plain types document data
// decodes into: named string types to string, numbers to float64.
func normalizeValue(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	default:
		return v
	}
}
