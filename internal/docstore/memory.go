package docstore

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with in-process maps. It backs tests and local
// development; behavior matches the PostgreSQL store, including full-snapshot
// live-query delivery.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	subs        map[int]*memorySubscription
	nextSubID   int
	closed      bool

	// NowFunc supplies the server-timestamp clock; overridable in tests.
	NowFunc func() time.Time
}

// NewMemoryStore returns an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Document),
		subs:        make(map[int]*memorySubscription),
		NowFunc:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}

// Get retrieves a document by collection and id.
func (s *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return copyDocument(doc), nil
}

// Set writes a document, optionally shallow-merging over an existing one.
func (s *MemoryStore) Set(_ context.Context, collection, id string, data map[string]any, merge bool) error {
	s.mu.Lock()
	s.applySet(collection, id, data, merge, s.now())
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

// Update modifies fields of an existing document.
func (s *MemoryStore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	if _, ok := s.collections[collection][id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.applySet(collection, id, fields, true, s.now())
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

// Delete removes a document. Deleting an absent document is not an error.
func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	if docs, ok := s.collections[collection]; ok {
		delete(docs, id)
	}
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

// Add creates a document with a generated id.
func (s *MemoryStore) Add(_ context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()

	s.mu.Lock()
	s.applySet(collection, id, data, false, s.now())
	s.mu.Unlock()

	s.notify(collection)
	return id, nil
}

// ApplyBatch applies all writes under one lock acquisition so observers never
// see a partial batch.
func (s *MemoryStore) ApplyBatch(_ context.Context, writes []Write) error {
	now := s.now()
	touched := make(map[string]struct{})

	s.mu.Lock()
	for _, w := range writes {
		id := w.ID
		if id == "" {
			id = uuid.NewString()
		}
		s.applySet(w.Collection, id, w.Data, w.Merge, now)
		touched[w.Collection] = struct{}{}
	}
	s.mu.Unlock()

	for collection := range touched {
		s.notify(collection)
	}
	return nil
}

// Query returns all documents of a collection matching the filters.
func (s *MemoryStore) Query(_ context.Context, collection string, filters []Filter, order *Order) ([]Document, error) {
	s.mu.RLock()
	docs := s.queryLocked(collection, filters, order)
	s.mu.RUnlock()
	return docs, nil
}

// LiveQuery registers a subscription and delivers the current result set
// immediately, then again after every write touching the collection.
func (s *MemoryStore) LiveQuery(ctx context.Context, collection string, filters []Filter, order *Order) (Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.nextSubID++
	sub := &memorySubscription{
		store:      s,
		id:         s.nextSubID,
		collection: collection,
		filters:    filters,
		order:      order,
		snapshots:  make(chan Snapshot, 1),
		dirty:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	s.subs[sub.id] = sub
	s.mu.Unlock()

	go sub.run(ctx)
	return sub, nil
}

// Close shuts down the store and all live subscriptions.
func (s *MemoryStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := make([]*memorySubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// applySet writes a document under the held lock.
func (s *MemoryStore) applySet(collection, id string, data map[string]any, merge bool, now time.Time) {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]Document)
		s.collections[collection] = docs
	}

	resolved := resolveServerTimestamps(data, now)

	existing, exists := docs[id]
	if merge && exists {
		merged := copyData(existing.Data)
		for k, v := range resolved {
			merged[k] = v
		}
		existing.Data = merged
		existing.UpdateTime = now
		docs[id] = existing
		return
	}

	create := now
	if exists {
		create = existing.CreateTime
	}
	docs[id] = Document{
		ID:         id,
		Data:       copyData(resolved),
		CreateTime: create,
		UpdateTime: now,
	}
}

func (s *MemoryStore) queryLocked(collection string, filters []Filter, order *Order) []Document {
	var out []Document
	for _, doc := range s.collections[collection] {
		if matchesFilters(doc.Data, filters) {
			out = append(out, copyDocument(doc))
		}
	}
	if order != nil {
		sortDocuments(out, *order)
	} else {
		// Stable iteration for callers that sort client-side.
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	return out
}

func (s *MemoryStore) notify(collection string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if sub.collection != collection {
			continue
		}
		select {
		case sub.dirty <- struct{}{}:
		default:
		}
	}
}

func (s *MemoryStore) removeSub(id int) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

type memorySubscription struct {
	store      *MemoryStore
	id         int
	collection string
	filters    []Filter
	order      *Order

	snapshots chan Snapshot
	dirty     chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func (m *memorySubscription) run(ctx context.Context) {
	defer close(m.snapshots)
	defer m.store.removeSub(m.id)

	for {
		m.store.mu.RLock()
		docs := m.store.queryLocked(m.collection, m.filters, m.order)
		m.store.mu.RUnlock()

		select {
		case m.snapshots <- Snapshot{Docs: docs}:
		case <-m.done:
			return
		case <-ctx.Done():
			return
		}

		select {
		case <-m.dirty:
		case <-m.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *memorySubscription) Snapshots() <-chan Snapshot { return m.snapshots }

func (m *memorySubscription) Err() error { return nil }

func (m *memorySubscription) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

func matchesFilters(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		switch f.Op {
		case OpEqual:
			if !reflect.DeepEqual(normalize(data[f.Field]), normalize(f.Value)) {
				return false
			}
		case OpArrayContains:
			found := false
			for _, item := range StringSlice(data, f.Field) {
				if item == f.Value {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// normalize widens numeric types so values survive a JSON round trip intact.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

func sortDocuments(docs []Document, order Order) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, _ := docs[i].Data[order.Field].(string)
		b, _ := docs[j].Data[order.Field].(string)
		if order.Desc {
			return a > b
		}
		return a < b
	})
}

func copyDocument(doc Document) Document {
	doc.Data = copyData(doc.Data)
	return doc
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch typed := v.(type) {
		case map[string]any:
			inner := make(map[string]any, len(typed))
			for ik, iv := range typed {
				inner[ik] = iv
			}
			out[k] = inner
		case map[string]int:
			inner := make(map[string]int, len(typed))
			for ik, iv := range typed {
				inner[ik] = iv
			}
			out[k] = inner
		case []string:
			out[k] = append([]string(nil), typed...)
		case []any:
			out[k] = append([]any(nil), typed...)
		default:
			out[k] = v
		}
	}
	return out
}
