package virtual

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// mockPublisher records bus traffic for a virtual service.
type mockPublisher struct {
	mu        sync.Mutex
	published map[string]map[string]any
	sets      []string
	removed   []string
	writeFns  map[string]func(path string, value any)
	setErr    error

	// failAfter makes SetValue fail once this many sets succeeded; 0 disables it.
	failAfter    int
	disconnected bool
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{
		published: make(map[string]map[string]any),
		writeFns:  make(map[string]func(string, any)),
	}
}

func (m *mockPublisher) PublishService(service string, values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]any, len(values))
	for k, v := range values {
		cp[k] = v
	}
	m.published[service] = cp
	return nil
}

func (m *mockPublisher) SetValue(service, path string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	if m.failAfter > 0 && len(m.sets) >= m.failAfter {
		return errors.New("publish failed")
	}
	m.sets = append(m.sets, service+path)
	return nil
}

func (m *mockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disconnected
}

func (m *mockPublisher) RemoveService(service string, _ []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, service)
	delete(m.published, service)
	return nil
}

func (m *mockPublisher) SubscribeWrites(service string, fn func(path string, value any)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeFns[service] = fn
	return nil
}

func (m *mockPublisher) UnsubscribeWrites(service string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.writeFns, service)
	return nil
}

func (m *mockPublisher) write(service, path string, value any) {
	m.mu.Lock()
	fn := m.writeFns[service]
	m.mu.Unlock()
	if fn != nil {
		fn(path, value)
	}
}

// memoryRepository is an in-memory Repository and ValueStore.
type memoryRepository struct {
	mu      sync.Mutex
	entries map[string]Entry
	values  map[string]map[string]any
	listErr error
}

func newMemoryRepository(entries ...Entry) *memoryRepository {
	r := &memoryRepository{entries: make(map[string]Entry), values: make(map[string]map[string]any)}
	for _, e := range entries {
		r.entries[e.LocalID] = e
	}
	return r
}

func (r *memoryRepository) List(context.Context) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalID < out[j].LocalID })
	return out, nil
}

func (r *memoryRepository) Get(_ context.Context, localID string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[localID]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return e, nil
}

func (r *memoryRepository) Upsert(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.LocalID] = e
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, localIDs ...string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range localIDs {
		if _, ok := r.entries[id]; ok {
			delete(r.entries, id)
			n++
		}
		delete(r.values, id)
	}
	return n, nil
}

func (r *memoryRepository) SaveValues(_ context.Context, localID string, values map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[localID] = values
	return nil
}

func (r *memoryRepository) LoadValues(_ context.Context, localID string) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[localID], nil
}
