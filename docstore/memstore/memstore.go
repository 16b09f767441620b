// Package memstore is an in-memory docstore.Store.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/qsmate/docstore"
	"github.com/jrsteele09/qsmate/internal/broadcast"
	"github.com/pkg/errors"
)

var _ docstore.Store = (*MemStore)(nil)

type collection struct {
	docs     map[string]docstore.Fields
	revision *broadcast.Latest[uint64]
}

type MemStore struct {
	lock        sync.RWMutex
	collections map[string]*collection
	closed      bool
}

func New() *MemStore {
	return &MemStore{
		collections: make(map[string]*collection),
	}
}

// Create stores fields under a new random ID.
func (ms *MemStore) Create(ctx context.Context, name string, fields docstore.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ms.lock.Lock()
	defer ms.lock.Unlock()

	if ms.closed {
		return "", docstore.ErrClosed
	}
	c := ms.collectionLocked(name)
	id := uuid.New().String()
	c.docs[id] = fields.Clone()
	ms.changedLocked(c)
	return id, nil
}

// Update merges fields into an existing document.
func (ms *MemStore) Update(ctx context.Context, name, id string, fields docstore.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.lock.Lock()
	defer ms.lock.Unlock()

	if ms.closed {
		return docstore.ErrClosed
	}
	c := ms.collectionLocked(name)
	existing, ok := c.docs[id]
	if !ok {
		return errors.Wrapf(docstore.ErrNotFound, "[MemStore Update] %s/%s", name, id)
	}
	merged := existing.Clone()
	for k, v := range fields {
		merged[k] = v
	}
	c.docs[id] = merged
	ms.changedLocked(c)
	return nil
}

func (ms *MemStore) Delete(ctx context.Context, name, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.lock.Lock()
	defer ms.lock.Unlock()

	if ms.closed {
		return docstore.ErrClosed
	}
	c := ms.collectionLocked(name)
	if _, ok := c.docs[id]; !ok {
		return errors.Wrapf(docstore.ErrNotFound, "[MemStore Delete] %s/%s", name, id)
	}
	delete(c.docs, id)
	ms.changedLocked(c)
	return nil
}

func (ms *MemStore) Get(ctx context.Context, name, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}
	ms.lock.RLock()
	defer ms.lock.RUnlock()

	c, ok := ms.collections[name]
	if !ok {
		return docstore.Document{}, errors.Wrapf(docstore.ErrNotFound, "[MemStore Get] %s/%s", name, id)
	}
	fields, ok := c.docs[id]
	if !ok {
		return docstore.Document{}, errors.Wrapf(docstore.ErrNotFound, "[MemStore Get] %s/%s", name, id)
	}
	return docstore.Document{ID: id, Fields: fields.Clone()}, nil
}

// Watch re-runs q whenever its collection changes. Writers never wait on
// watchers: change signals coalesce, and an unchanged result set is not
// redelivered.
func (ms *MemStore) Watch(ctx context.Context, q docstore.Query) (<-chan []docstore.Document, error) {
	if q.Collection == "" {
		return nil, errors.New("[MemStore Watch] collection is required")
	}
	ms.lock.Lock()
	if ms.closed {
		ms.lock.Unlock()
		return nil, docstore.ErrClosed
	}
	changes := ms.collectionLocked(q.Collection).revision.Watch(ctx)
	ms.lock.Unlock()

	out := make(chan []docstore.Document)
	go func() {
		defer close(out)
		var last []docstore.Document
		first := true
		for range changes {
			docs := ms.query(q)
			if !first && reflect.DeepEqual(docs, last) {
				continue
			}
			select {
			case out <- docs:
				first = false
				last = docs
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close ends every watch. Later writes fail with docstore.ErrClosed.
func (ms *MemStore) Close() {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	if ms.closed {
		return
	}
	ms.closed = true
	for _, c := range ms.collections {
		c.revision.Close()
	}
}

func (ms *MemStore) query(q docstore.Query) []docstore.Document {
	ms.lock.RLock()
	defer ms.lock.RUnlock()

	docs := make([]docstore.Document, 0)
	c, ok := ms.collections[q.Collection]
	if !ok {
		return docs
	}
	for id, fields := range c.docs {
		doc := docstore.Document{ID: id, Fields: fields.Clone()}
		if q.Matches(doc) {
			docs = append(docs, doc)
		}
	}

	slices.SortFunc(docs, func(a, b docstore.Document) int {
		if q.OrderBy != "" {
			if n := compareValues(a.Fields[q.OrderBy], b.Fields[q.OrderBy]); n != 0 {
				return n
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return docs
}

func (ms *MemStore) collectionLocked(name string) *collection {
	c, ok := ms.collections[name]
	if !ok {
		c = &collection{
			docs:     make(map[string]docstore.Fields),
			revision: broadcast.NewLatest[uint64](0),
		}
		ms.collections[name] = c
	}
	return c
}

func (ms *MemStore) changedLocked(c *collection) {
	c.revision.Publish(c.revision.Current() + 1)
}

// compareValues orders the field types the app stores. Missing values sort
// first; mixed or unknown types fall back to their printed form.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return cmp.Compare(av, bv)
		}
	case int:
		if bv, ok := b.(int); ok {
			return cmp.Compare(av, bv)
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return cmp.Compare(av, bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return cmp.Compare(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
