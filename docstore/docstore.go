// Package docstore is the document persistence boundary used by the app's
// data screens. Documents are schemaless field maps grouped into named
// collections.
package docstore

import (
	"context"
	"maps"
	"reflect"

	"github.com/jrsteele09/qsmate/internal/errors"
)

var (
	ErrNotFound = errors.ErrNotFound
	ErrClosed   = errors.ErrClosed
)

// Fields holds a document's values keyed by field name.
type Fields map[string]any

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	return maps.Clone(f)
}

type Document struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

// Query selects documents from Collection whose fields equal every entry in
// Where, ordered by OrderBy (ascending) and then by ID.
type Query struct {
	Collection string
	Where      map[string]any
	OrderBy    string
}

// Matches reports whether doc satisfies the query's equality filters.
func (q Query) Matches(doc Document) bool {
	for field, want := range q.Where {
		got, ok := doc.Fields[field]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

type Store interface {
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	Update(ctx context.Context, collection, id string, fields Fields) error
	Delete(ctx context.Context, collection, id string) error
	Get(ctx context.Context, collection, id string) (Document, error)
	// Watch delivers the current result set of q and then a new set after
	// every change to q's collection. Intermediate sets may be skipped by a
	// slow reader. The channel closes when ctx ends or the store closes.
	Watch(ctx context.Context, q Query) (<-chan []Document, error)
}

// Snapshot returns the first result set of a watch on q.
func Snapshot(ctx context.Context, store Store, q Query) ([]Document, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results, err := store.Watch(ctx, q)
	if err != nil {
		return nil, err
	}
	select {
	case docs, ok := <-results:
		if !ok {
			return nil, ErrClosed
		}
		return docs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
