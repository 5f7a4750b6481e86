// Package inmemstore is an in-memory document store used in tests and local development.
package inmemstore

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/internquest/backend/core"
)

type (
	collection map[string]map[string]interface{}

	// subscriber queues created documents for one watcher.
	subscriber struct {
		mu     sync.Mutex
		queue  []core.Document
		signal chan struct{}
	}

	Store struct {
		mu          sync.RWMutex
		collections map[string]collection
		subscribers map[string][]*subscriber
		emulator    bool
		nowFunc     func() time.Time
	}
)

var (
	_ core.DocStore   = (*Store)(nil)
	_ core.DocWatcher = (*Store)(nil)
)

// New creates an empty store. emulator is what Emulator reports.
func New(emulator bool) *Store {
	return &Store{
		collections: make(map[string]collection),
		subscribers: make(map[string][]*subscriber),
		emulator:    emulator,
		nowFunc:     time.Now,
	}
}

// SetNowFunc replaces the clock used for server timestamps.
func (s *Store) SetNowFunc(now func() time.Time) { s.nowFunc = now }

func (s *Store) Emulator() bool { return s.emulator }

func (s *Store) Get(_ context.Context, coll, id string) (core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.collections[coll][id]
	if !ok {
		return core.Document{}, core.ErrDocNotFound
	}
	return core.Document{ID: id, Data: copyMap(data)}, nil
}

func (s *Store) Create(_ context.Context, coll, id string, data map[string]interface{}) error {
	s.mu.Lock()
	c, ok := s.collections[coll]
	if !ok {
		c = make(collection)
		s.collections[coll] = c
	}
	if _, exists := c[id]; exists {
		s.mu.Unlock()
		return core.ErrDocExists
	}
	stored := core.ResolveTimestamps(copyMap(data), s.nowFunc().UTC())
	if stored == nil {
		stored = make(map[string]interface{})
	}
	c[id] = stored
	subs := append([]*subscriber(nil), s.subscribers[coll]...)
	doc := core.Document{ID: id, Data: copyMap(stored)}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.push(doc)
	}
	return nil
}

// Put writes a document, replacing any existing one. Put does not notify watchers.
func (s *Store) Put(coll, id string, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[coll]
	if !ok {
		c = make(collection)
		s.collections[coll] = c
	}
	c[id] = core.ResolveTimestamps(copyMap(data), s.nowFunc().UTC())
}

func (s *Store) FindEqual(_ context.Context, coll, field string, value interface{}, limit int) ([]core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []core.Document
	for _, id := range s.sortedIDs(coll) {
		data := s.collections[coll][id]
		if v, ok := data[field]; ok && equal(v, value) {
			docs = append(docs, core.Document{ID: id, Data: copyMap(data)})
			if limit > 0 && len(docs) == limit {
				break
			}
		}
	}
	return docs, nil
}

func (s *Store) Page(_ context.Context, coll, startAfter string, limit int) ([]core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.sortedIDs(coll)
	start := sort.SearchStrings(ids, startAfter)
	for start < len(ids) && ids[start] <= startAfter {
		start++
	}
	ids = ids[start:]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	docs := make([]core.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, core.Document{ID: id, Data: copyMap(s.collections[coll][id])})
	}
	return docs, nil
}

func (s *Store) Commit(_ context.Context, writes []core.DocWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range writes {
		if _, ok := s.collections[w.Collection][w.ID]; !ok {
			return core.ErrDocNotFound
		}
	}

	now := s.nowFunc().UTC()
	for _, w := range writes {
		data := s.collections[w.Collection][w.ID]
		for _, field := range w.Unset {
			delete(data, field)
		}
		for k, v := range core.ResolveTimestamps(copyMap(w.Set), now) {
			data[k] = v
		}
	}
	return nil
}

// WatchCreates calls fn, in creation order, for each document created in coll until ctx is done.
func (s *Store) WatchCreates(ctx context.Context, coll string, fn func(core.Document)) error {
	sub := &subscriber{signal: make(chan struct{}, 1)}

	s.mu.Lock()
	s.subscribers[coll] = append(s.subscribers[coll], sub)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subscribers[coll]
		for i, other := range subs {
			if other == sub {
				s.subscribers[coll] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.signal:
			for _, doc := range sub.drain() {
				fn(doc)
			}
		}
	}
}

// Len returns the number of documents in coll.
func (s *Store) Len(coll string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[coll])
}

func (s *Store) sortedIDs(coll string) []string {
	ids := make([]string, 0, len(s.collections[coll]))
	for id := range s.collections[coll] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (sub *subscriber) push(doc core.Document) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, doc)
	sub.mu.Unlock()

	select {
	case sub.signal <- struct{}{}:
	default:
	}
}

func (sub *subscriber) drain() []core.Document {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	docs := sub.queue
	sub.queue = nil
	return docs
}

func equal(a, b interface{}) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return copyMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
